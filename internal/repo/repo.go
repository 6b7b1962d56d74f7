package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/talx-hub/payment-scheduler/internal/model"
)

type connectionPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type DB struct {
	pool connectionPool
	log  *slog.Logger
}

// WithTX runs f inside a transaction that is committed when f succeeds and
// rolled back otherwise.
func WithTX[T any](ctx context.Context,
	pool connectionPool, log *slog.Logger, f func(ctx context.Context, tx connectionPool) (T, error),
) (T, error) {
	var zero T

	tx, err := pool.Begin(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to begin TX: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.LogAttrs(ctx,
				slog.LevelError,
				"failed to rollback TX",
				slog.Any(model.KeyLoggerError, rbErr),
			)
		}
	}()

	res, err := f(ctx, tx)
	if err != nil {
		return zero, err
	}

	if err = tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit TX: %w", err)
	}
	return res, nil
}

const maxAttemptCount = 4

// retryDelay is the pause after failed attempt n (0-based): 1s, 3s, 5s.
var retryDelay = func(n int) time.Duration {
	return time.Duration(n*2+1) * time.Second
}

// WithRetry repeats dbQuery while it fails with a transient postgres error,
// up to maxAttemptCount attempts. It stops early when ctx is done.
func WithRetry[T any](ctx context.Context, log *slog.Logger, dbQuery func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		res, err := dbQuery()
		if err == nil {
			return res, nil
		}
		if !isRetryableError(err) {
			return zero, fmt.Errorf("on attempt #%d error occurred: %w", attempt, err)
		}
		if attempt+1 >= maxAttemptCount {
			return zero, fmt.Errorf("failed to reattempt query to the DB: %w", err)
		}

		delay := retryDelay(attempt)
		log.LogAttrs(ctx,
			slog.LevelWarn,
			"transient DB error, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any(model.KeyLoggerError, err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("DB retry aborted: %w", errors.Join(ctx.Err(), err))
		case <-timer.C:
		}
	}
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	switch pgErr.Code {
	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.SQLServerRejectedEstablishmentOfSQLConnection,
		pgerrcode.TransactionResolutionUnknown,
		pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected:
		return true
	default:
		return false
	}
}
