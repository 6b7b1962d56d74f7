package dbmanager

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/talx-hub/payment-scheduler/internal/model"
)

type queryStartKey struct{}

// queryTracer logs statements at debug level and failed ones at warn.
type queryTracer struct {
	log *slog.Logger
}

func (t *queryTracer) TraceQueryStart(
	ctx context.Context,
	_ *pgx.Conn,
	data pgx.TraceQueryStartData,
) context.Context {
	t.log.LogAttrs(ctx,
		slog.LevelDebug,
		"running query",
		slog.String("query", data.SQL),
		slog.Int("args", len(data.Args)),
	)
	return context.WithValue(ctx, queryStartKey{}, time.Now())
}

func (t *queryTracer) TraceQueryEnd(
	ctx context.Context,
	_ *pgx.Conn,
	data pgx.TraceQueryEndData,
) {
	var elapsed time.Duration
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		elapsed = time.Since(start)
	}
	if data.Err != nil {
		t.log.LogAttrs(ctx,
			slog.LevelWarn,
			"query failed",
			slog.Duration("elapsed", elapsed),
			slog.Any(model.KeyLoggerError, data.Err),
		)
		return
	}
	t.log.LogAttrs(ctx,
		slog.LevelDebug,
		"query done",
		slog.Duration("elapsed", elapsed),
		slog.String("tag", data.CommandTag.String()),
	)
}
