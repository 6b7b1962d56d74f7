package repo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/payment-scheduler/internal/dbmanager"
	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/utils/pgcontainer"
)

const testDefaultTimeout = 15 * time.Second

var getDBManager func() *dbmanager.DBManager

func runMain(m *testing.M, log *slog.Logger) int {
	pg := pgcontainer.New(log)
	defer pg.Close()

	if err := pg.RunContainer(); err != nil {
		log.LogAttrs(context.TODO(),
			slog.LevelWarn,
			"postgres container unavailable, integration tests are skipped",
			slog.Any(model.KeyLoggerError, err),
		)
		return m.Run()
	}

	db, err := initDBManager(pg.GetDSN(), log)
	if err != nil {
		log.LogAttrs(context.TODO(),
			slog.LevelError,
			"failed to init test DB",
			slog.Any(model.KeyLoggerError, err),
		)
		return 1
	}
	defer db.Close()
	getDBManager = func() *dbmanager.DBManager {
		return db
	}

	return m.Run()
}

func initDBManager(dsn string, log *slog.Logger) (*dbmanager.DBManager, error) {
	db := dbmanager.New(dsn, log)

	ctx, cancel := context.WithTimeout(context.Background(), testDefaultTimeout)
	defer cancel()

	db.Connect(ctx).Ping(ctx).ApplyMigrations(ctx)
	if err := db.Error(); err != nil {
		return nil, fmt.Errorf("failed to prepare test DB using dsn %s: %w", dsn, err)
	}
	return db, nil
}

func loadFixtureFile(conn *pgxpool.Pool, filepath string) error {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read fixture file: %w", err)
	}

	queries := strings.Split(string(content), ";")

	for _, rawQuery := range queries {
		query := strings.TrimSpace(rawQuery)
		if query == "" {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), testDefaultTimeout)
		_, err := conn.Exec(ctx, query)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to execute query [%s]: %w", query, err)
		}
	}

	return nil
}

// setupRepo truncates every table, loads fixtures and builds the repository.
// It skips the test when no database is running.
func setupRepo[T any](t *testing.T,
	repoConstructor func(pool connectionPool, log *slog.Logger) T,
	fixtures ...string,
) (T, context.Context, *pgxpool.Pool) {
	t.Helper()

	if getDBManager == nil {
		t.Skip("postgres container is not running")
	}
	pool, err := getDBManager().GetPool(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), testDefaultTimeout)
	t.Cleanup(cancel)

	_, err = pool.Exec(ctx,
		`TRUNCATE payment_orders, restricted_dates, scheduled_payment_transactions`)
	require.NoError(t, err)
	for _, f := range fixtures {
		require.NoError(t, loadFixtureFile(pool, f))
	}

	return repoConstructor(pool, slog.Default()), ctx, pool
}
