// Package pgcontainer runs a throwaway postgres in docker for integration tests.
package pgcontainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/talx-hub/payment-scheduler/internal/model"
)

const (
	defaultTag = "16-alpine"
	pgPort     = "5432/tcp"

	testDBName       = "test"
	testUserName     = "test"
	testUserPassword = "test"
)

var ErrNotRunning = errors.New("postgres container is not running")

type PGContainer struct {
	log       *slog.Logger
	pool      *dockertest.Pool
	container *dockertest.Resource
	hostPort  string
}

func New(log *slog.Logger) *PGContainer {
	return &PGContainer{log: log}
}

// RunContainer starts postgres and creates the test user and database.
func (c *PGContainer) RunContainer() error {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return fmt.Errorf("failed to initialize a docker pool: %w", err)
	}
	if err = pool.Client.Ping(); err != nil {
		return fmt.Errorf("docker is unavailable: %w", err)
	}
	c.pool = pool

	c.container, err = pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: "postgres",
			Tag:        imageTag(),
			Env: []string{
				"POSTGRES_USER=postgres",
				"POSTGRES_PASSWORD=postgres",
			},
			ExposedPorts: []string{pgPort},
		},
		func(config *docker.HostConfig) {
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to run postgres container: %w", err)
	}
	c.hostPort = c.container.GetHostPort(pgPort)

	pool.MaxWait = 30 * time.Second
	var conn *pgx.Conn
	if err = pool.Retry(func() error {
		conn, err = pgx.Connect(context.TODO(), c.dsn("postgres", "postgres", "postgres"))
		if err != nil {
			return fmt.Errorf("failed to connect to the DB: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}
	defer func() {
		if err := conn.Close(context.TODO()); err != nil {
			c.log.LogAttrs(context.TODO(),
				slog.LevelWarn,
				"failed to close the super user connection",
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}()

	return createTestDB(conn)
}

// GetDSN returns the DSN of the test database owned by the test user.
func (c *PGContainer) GetDSN() string {
	return c.dsn(testUserName, testUserPassword, testDBName)
}

func (c *PGContainer) Close() {
	if c.pool == nil || c.container == nil {
		return
	}
	if err := c.pool.Purge(c.container); err != nil {
		c.log.LogAttrs(context.TODO(),
			slog.LevelError,
			"failed to purge the postgres container",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

func (c *PGContainer) dsn(user, password, db string) string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, c.hostPort, db)
}

// imageTag reads POSTGRES_TAG from the environment or a local .env file.
func imageTag() string {
	_ = godotenv.Load(".env")
	if tag := os.Getenv("POSTGRES_TAG"); tag != "" {
		return tag
	}
	return defaultTag
}

func createTestDB(conn *pgx.Conn) error {
	const (
		createUser = `CREATE USER %s PASSWORD '%s';`
		createDB   = `CREATE DATABASE %s OWNER %s ENCODING 'UTF8';`
	)

	ctx, cancel := context.WithTimeout(context.Background(), model.DefaultTimeout)
	defer cancel()
	if _, err := conn.Exec(ctx, fmt.Sprintf(createUser, testUserName, testUserPassword)); err != nil {
		return fmt.Errorf("failed to create a test user: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(createDB, testDBName, testUserName)); err != nil {
		return fmt.Errorf("failed to create a test DB: %w", err)
	}
	return nil
}
