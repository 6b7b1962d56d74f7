package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/utils/logger"
)

const (
	RunModeCron   = "cron"
	RunModeOnce   = "once"
	RunModeLambda = "lambda"

	maxPageSize = 1000
)

type Config struct {
	loc *time.Location

	RunMode        string `env:"RUN_MODE"        envDefault:"cron"`
	RunAddr        string `env:"RUN_ADDRESS"     envDefault:"localhost:8080"`
	CronExpression string `env:"CRON_EXPRESSION" envDefault:"0 0 6 * * *"`
	Timezone       string `env:"TIMEZONE"        envDefault:"UTC"`
	LogLevel       string `env:"LOG_LEVEL"       envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT"      envDefault:"text"`
	DatabaseURI    string `env:"DATABASE_URI"    envDefault:""`
	SecretKey      string `env:"SECRET_KEY"      envDefault:""`

	OrderServiceAddr          string        `env:"ORDER_SERVICE_ADDRESS"           envDefault:"localhost:8081"`
	ScheduledOrderServiceAddr string        `env:"SCHEDULED_ORDER_SERVICE_ADDRESS" envDefault:"localhost:8082"`
	OutboundServiceAddr       string        `env:"OUTBOUND_SERVICE_ADDRESS"        envDefault:"localhost:8083"`
	LimitsServiceAddr         string        `env:"LIMITS_SERVICE_ADDRESS"          envDefault:"localhost:8084"`
	HTTPTimeout               time.Duration `env:"HTTP_TIMEOUT"                    envDefault:"10s"`

	AWSSecretName string `env:"AWS_SECRET_NAME" envDefault:""`
	AWSEndpoint   string `env:"AWS_ENDPOINT"    envDefault:""`

	PageSize    int `env:"PAGE_SIZE"   envDefault:"100"`
	Concurrency int `env:"CONCURRENCY" envDefault:"8"`

	RetryMaxAttempts       int           `env:"RETRY_MAX_ATTEMPTS"       envDefault:"3"`
	RetryBackoffDelay      time.Duration `env:"RETRY_BACKOFF_DELAY"      envDefault:"1s"`
	RetryBackoffMultiplier float64       `env:"RETRY_BACKOFF_MULTIPLIER" envDefault:"2"`
	RetryBackoffMax        time.Duration `env:"RETRY_BACKOFF_MAX"        envDefault:"30s"`
	RetryReasonCodes       []string      `env:"RETRY_REASON_CODES"       envSeparator:","`
	RetryFaultKinds        []string      `env:"RETRY_FAULT_KINDS"        envSeparator:"," envDefault:"timeout,connection,http_502,http_503,http_504"` //nolint:lll // tag

	LimitChecksEnabled bool `env:"LIMIT_CHECKS_ENABLED" envDefault:"false"`

	FilterPaymentTypes []string `env:"FILTER_PAYMENT_TYPES" envSeparator:","`
	FilterStatuses     []string `env:"FILTER_STATUSES"      envSeparator:"," envDefault:"READY"`
}

// Filter is the order source selection derived from the config.
func (c *Config) Filter() model.OrderFilter {
	return model.OrderFilter{
		PaymentTypes: c.FilterPaymentTypes,
		Statuses:     c.FilterStatuses,
	}
}

// Location defines "today" for the runs. It is set by Build.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c *Config) LogLevelValue() slog.Level {
	l, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

type Builder struct {
	cfg  *Config
	log  *slog.Logger
	errs []error
}

func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{
		cfg: &Config{},
		log: log,
	}
}

// FromDotEnv loads .env from the working directory when there is one.
// Variables already set in the environment win.
func (b *Builder) FromDotEnv(filenames ...string) *Builder {
	if err := godotenv.Load(filenames...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			b.log.LogAttrs(context.Background(), slog.LevelDebug, "no .env file found")
			return b
		}
		b.fail("failed to load .env", err)
	}
	return b
}

func (b *Builder) FromEnv() *Builder {
	if err := env.Parse(b.cfg); err != nil {
		b.fail("failed to parse config", err)
	}
	return b
}

// FromFlags overrides the most used settings from command line args,
// normally os.Args[1:].
func (b *Builder) FromFlags(args []string) *Builder {
	flags := flag.NewFlagSet("payment-scheduler", flag.ContinueOnError)
	flags.StringVar(&b.cfg.RunMode, "m", b.cfg.RunMode, "Run mode: cron, once or lambda")
	flags.StringVar(&b.cfg.RunAddr, "a", b.cfg.RunAddr, "Admin listen address")
	flags.StringVar(&b.cfg.CronExpression, "c", b.cfg.CronExpression, "Cron expression")
	flags.StringVar(&b.cfg.Timezone, "z", b.cfg.Timezone, "Timezone that defines today")
	flags.StringVar(&b.cfg.DatabaseURI, "d", b.cfg.DatabaseURI, "Database URI")
	flags.StringVar(&b.cfg.SecretKey, "k", b.cfg.SecretKey, "Secret key")
	flags.StringVar(&b.cfg.LogLevel, "l", b.cfg.LogLevel, "Log level")
	flags.IntVar(&b.cfg.PageSize, "p", b.cfg.PageSize, "Page size")
	flags.IntVar(&b.cfg.Concurrency, "w", b.cfg.Concurrency, "Workers per page")

	if err := flags.Parse(args); err != nil {
		b.fail("failed to parse flags", err)
	}
	return b
}

// Build validates the collected config.
func (b *Builder) Build() (*Config, error) {
	if len(b.errs) != 0 {
		return nil, errors.Join(b.errs...)
	}

	c := b.cfg
	switch c.RunMode {
	case RunModeCron, RunModeOnce, RunModeLambda:
	default:
		return nil, fmt.Errorf("unknown run mode %q", c.RunMode)
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		return nil, fmt.Errorf("page size must be within 1..%d, got %d", maxPageSize, c.PageSize)
	}
	if c.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("retry max attempts must be positive, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBackoffMultiplier < 1 {
		return nil, fmt.Errorf("retry backoff multiplier must be at least 1, got %v", c.RetryBackoffMultiplier)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return nil, err //nolint: wrapcheck // already descriptive
	}
	if !logger.ValidFormat(c.LogFormat) {
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	c.loc = loc
	return c, nil
}

func (b *Builder) fail(msg string, err error) {
	b.log.LogAttrs(context.Background(),
		slog.LevelError, msg, slog.Any(model.KeyLoggerError, err))
	b.errs = append(b.errs, fmt.Errorf("%s: %w", msg, err))
}
