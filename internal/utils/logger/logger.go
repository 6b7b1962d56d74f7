package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/talx-hub/payment-scheduler/internal/model"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// New logs to stdout. JSON suits collected logs (lambda, containers), text
// suits terminals.
func New(logLevel slog.Level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, logLevel, format)
}

func NewWithWriter(w io.Writer, logLevel slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel}
	if strings.EqualFold(format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return l, nil
}

func ValidFormat(format string) bool {
	return strings.EqualFold(format, FormatText) || strings.EqualFold(format, FormatJSON)
}

func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, model.KeyContextLogger, log)
}

// FromContext returns the logger put by WithContext, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(model.KeyContextLogger).(*slog.Logger); ok && log != nil {
		return log
	}
	return slog.Default()
}
