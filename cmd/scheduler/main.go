package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.Run(ctx, os.Args[1:]); err != nil {
		slog.Default().LogAttrs(ctx,
			slog.LevelError,
			"payment scheduler stopped",
			slog.Any(model.KeyLoggerError, err),
		)
		stop()
		os.Exit(1)
	}
}
