package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/talx-hub/payment-scheduler/internal/api/handlers"
	"github.com/talx-hub/payment-scheduler/internal/dbmanager"
	"github.com/talx-hub/payment-scheduler/internal/gateway"
	"github.com/talx-hub/payment-scheduler/internal/httpclient"
	"github.com/talx-hub/payment-scheduler/internal/iterator"
	"github.com/talx-hub/payment-scheduler/internal/limits"
	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/orchestrator"
	"github.com/talx-hub/payment-scheduler/internal/recurrence"
	"github.com/talx-hub/payment-scheduler/internal/repo"
	"github.com/talx-hub/payment-scheduler/internal/router"
	"github.com/talx-hub/payment-scheduler/internal/service/config"
	"github.com/talx-hub/payment-scheduler/internal/trigger"
	"github.com/talx-hub/payment-scheduler/internal/utils/auth"
	"github.com/talx-hub/payment-scheduler/internal/utils/logger"
)

// ServiceName signs outgoing service tokens.
const ServiceName = "payment-scheduler"

const shutdownTimeout = 10 * time.Second

// backend holds the order side collaborators: either the remote services or
// the Postgres repositories.
type backend struct {
	source    iterator.OrderSource
	updater   orchestrator.OrderUpdater
	recorder  orchestrator.TransactionRecorder
	validator recurrence.DateValidator
	db        handlers.Pinger
	close     func()
}

type Service struct {
	cfg     *config.Config
	log     *slog.Logger
	trigger *trigger.Trigger
	handler *handlers.HTTPHandler
	close   func()
}

// Run loads the config from .env, the environment and args, then runs the
// scheduler in the configured mode until ctx is done.
func Run(ctx context.Context, args []string) error {
	cfg, err := config.NewBuilder(slog.Default()).
		FromDotEnv().
		FromEnv().
		FromFlags(args).
		Build()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(cfg.LogLevelValue(), cfg.LogFormat)
	slog.SetDefault(log)

	if cfg.AWSSecretName != "" {
		awsCfg, err := awsConfig(ctx, cfg.AWSEndpoint)
		if err != nil {
			return err
		}
		if err = applySecret(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.AWSSecretName, cfg, log); err != nil {
			return err
		}
	}

	s, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Run(ctx)
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Service, error) {
	tokens := auth.NewTokenSource(ServiceName, []byte(cfg.SecretKey))

	b, err := newBackend(ctx, cfg, tokens, log)
	if err != nil {
		return nil, err
	}

	outbound, err := httpclient.New(cfg.OutboundServiceAddr, cfg.HTTPTimeout, tokens, log)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("invalid outbound service address: %w", err)
	}
	var limitsClient limits.Client
	if cfg.LimitChecksEnabled {
		c, err := httpclient.New(cfg.LimitsServiceAddr, cfg.HTTPTimeout, tokens, log)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("invalid limits service address: %w", err)
		}
		limitsClient = httpclient.NewLimitsClient(c)
	}

	gw := gateway.New(httpclient.NewOutboundClient(outbound), gateway.Config{
		RetryableReasonCodes: cfg.RetryReasonCodes,
		RetryableFaultKinds:  cfg.RetryFaultKinds,
		MaxAttempts:          cfg.RetryMaxAttempts,
		BackoffDelay:         cfg.RetryBackoffDelay,
		BackoffMultiplier:    cfg.RetryBackoffMultiplier,
		MaxBackoffDelay:      cfg.RetryBackoffMax,
	}, log)

	orch := orchestrator.New(orchestrator.Dependencies{
		Source:   b.source,
		Updater:  b.updater,
		Recorder: b.recorder,
		Gateway:  gw,
		Adjuster: recurrence.NewAdjuster(b.validator, log),
		Limits:   limits.NewChecker(limitsClient, cfg.LimitChecksEnabled, log),
	}, orchestrator.Config{
		Location:    cfg.Location(),
		Filter:      cfg.Filter(),
		PageSize:    cfg.PageSize,
		Concurrency: cfg.Concurrency,
	}, log)

	t, err := trigger.New(orch, cfg.CronExpression, cfg.Location(), log)
	if err != nil {
		b.close()
		return nil, err //nolint: wrapcheck // already descriptive
	}

	return &Service{
		cfg:     cfg,
		log:     log,
		trigger: t,
		handler: handlers.New(t, b.db),
		close:   b.close,
	}, nil
}

func newBackend(ctx context.Context, cfg *config.Config, tokens httpclient.TokenProvider, log *slog.Logger,
) (backend, error) {
	if cfg.DatabaseURI != "" {
		return newDBBackend(ctx, cfg.DatabaseURI, log)
	}

	orders, err := httpclient.New(cfg.OrderServiceAddr, cfg.HTTPTimeout, tokens, log)
	if err != nil {
		return backend{}, fmt.Errorf("invalid order service address: %w", err)
	}
	scheduled, err := httpclient.New(cfg.ScheduledOrderServiceAddr, cfg.HTTPTimeout, tokens, log)
	if err != nil {
		return backend{}, fmt.Errorf("invalid scheduled order service address: %w", err)
	}

	orderClient := httpclient.NewOrderClient(orders)
	scheduledClient := httpclient.NewScheduledOrderClient(scheduled)
	return backend{
		source:    orderClient,
		updater:   orderClient,
		recorder:  scheduledClient,
		validator: scheduledClient,
		close:     func() {},
	}, nil
}

func newDBBackend(ctx context.Context, dsn string, log *slog.Logger) (backend, error) {
	ctx, cancel := context.WithTimeout(ctx, model.DefaultTimeout)
	defer cancel()

	dbManager := dbmanager.New(dsn, log).
		Connect(ctx).
		Ping(ctx).
		ApplyMigrations(ctx)
	if err := dbManager.Error(); err != nil {
		dbManager.Close()
		return backend{}, fmt.Errorf("db connection error: %w", err)
	}
	pool, err := dbManager.GetPool(ctx)
	if err != nil {
		dbManager.Close()
		return backend{}, fmt.Errorf("failed to get DB pool: %w", err)
	}

	orders := repo.NewOrderRepository(pool, log)
	return backend{
		source:    orders,
		updater:   orders,
		recorder:  repo.NewTransactionRepository(pool, log),
		validator: repo.NewCalendarRepository(pool, log),
		db:        pool,
		close:     dbManager.Close,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	switch s.cfg.RunMode {
	case config.RunModeOnce:
		_, err := s.RunOnce(ctx)
		return err
	case config.RunModeLambda:
		s.log.LogAttrs(ctx, slog.LevelInfo, "starting lambda handler")
		lambda.StartWithOptions(s.trigger.Fire,
			lambda.WithContext(ctx),
			lambda.WithEnableSIGTERM(s.Close),
		)
		return nil
	default:
		return s.runCron(ctx)
	}
}

// RunOnce fires a single run and logs its report.
func (s *Service) RunOnce(ctx context.Context) (orchestrator.Report, error) {
	report, err := s.trigger.Fire(ctx)
	if err != nil {
		return report, err //nolint: wrapcheck // error from trigger is descriptive
	}
	s.log.LogAttrs(ctx,
		slog.LevelInfo,
		"run finished",
		slog.Int("fetched", report.Fetched),
		slog.Int("due", report.Due),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("rejected", report.Rejected),
		slog.Int("ended", report.Ended),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// Handler is the admin HTTP surface.
func (s *Service) Handler() http.Handler {
	rr := router.New([]byte(s.cfg.SecretKey), s.log)
	rr.SetRouter(s.handler)
	return rr.GetRouter()
}

func (s *Service) runCron(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.RunAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: model.DefaultTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.log.LogAttrs(ctx, slog.LevelInfo, "admin server started", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	triggerDone := make(chan struct{})
	go func() {
		s.trigger.Start(ctx)
		close(triggerDone)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("listen and serve error: %w", err)
		}
	}
	cancel()
	<-triggerDone

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		s.log.LogAttrs(shutdownCtx,
			slog.LevelError,
			"failed to shut down admin server",
			slog.Any(model.KeyLoggerError, shutdownErr),
		)
	}
	return err
}

func (s *Service) Close() {
	if s.close != nil {
		s.close()
	}
}
