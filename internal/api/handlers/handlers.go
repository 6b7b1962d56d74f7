package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/orchestrator"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
	"github.com/talx-hub/payment-scheduler/internal/utils/logger"
)

type RunTrigger interface {
	Fire(ctx context.Context) (orchestrator.Report, error)
	Next(now time.Time) time.Time
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	runs RunTrigger
	db   Pinger
}

// New builds the admin handler. db may be nil when no database is in use.
func New(runs RunTrigger, db Pinger) *HTTPHandler {
	return &HTTPHandler{
		runs: runs,
		db:   db,
	}
}

func (h *HTTPHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), model.DefaultTimeout)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		logger.FromContext(r.Context()).LogAttrs(ctx,
			slog.LevelError,
			"failed to ping the DB",
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "DB is unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// TriggerRun starts a run and answers with its report once it completes.
// The run is not cancelled when the caller goes away.
func (h *HTTPHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	actor, _ := r.Context().Value(model.KeyContextActor).(string)
	log.LogAttrs(r.Context(),
		slog.LevelInfo,
		"manual run requested",
		slog.String("actor", actor),
	)

	ctx := logger.WithContext(context.WithoutCancel(r.Context()), log)
	report, err := h.runs.Fire(ctx)
	if errors.Is(err, serviceerrs.ErrRunInProgress) {
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		log.LogAttrs(r.Context(),
			slog.LevelError,
			"manual run failed",
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "run failed", http.StatusInternalServerError)
		return
	}

	writeJSON(r.Context(), w, report)
}

type nextRun struct {
	NextRun time.Time `json:"nextRun"`
}

func (h *HTTPHandler) NextRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, nextRun{NextRun: h.runs.Next(time.Now())})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, v any) {
	w.Header().Set(model.HeaderContentType, "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(ctx).LogAttrs(ctx,
			slog.LevelError,
			"failed to write response",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}
