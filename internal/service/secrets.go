package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/talx-hub/payment-scheduler/internal/service/config"
)

var errEmptySecret = errors.New("secret has no string value")

type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

type schedulerSecret struct {
	DatabaseURI string `json:"databaseUri"`
	SecretKey   string `json:"secretKey"`
}

// awsConfig loads the default AWS config. An endpoint override points the
// SDK at a local stack with static test credentials.
func awsConfig(ctx context.Context, endpoint string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load aws config: %w", err)
	}

	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
		cfg.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
	}
	return cfg, nil
}

// applySecret overlays the values of the named secret onto cfg. Fields the
// secret leaves empty keep their configured value.
func applySecret(ctx context.Context, sm SecretsClient, name string, cfg *config.Config, log *slog.Logger) error {
	resp, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if resp.SecretString == nil {
		return fmt.Errorf("%w: %s", errEmptySecret, name)
	}

	var s schedulerSecret
	if err := json.Unmarshal([]byte(*resp.SecretString), &s); err != nil {
		return fmt.Errorf("failed to parse secret JSON: %w", err)
	}

	if s.DatabaseURI != "" {
		cfg.DatabaseURI = s.DatabaseURI
	}
	if s.SecretKey != "" {
		cfg.SecretKey = s.SecretKey
	}
	log.LogAttrs(ctx,
		slog.LevelInfo,
		"applied secret",
		slog.String("secret", name),
		slog.Bool("database_uri", s.DatabaseURI != ""),
		slog.Bool("secret_key", s.SecretKey != ""),
	)
	return nil
}
