package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talx-hub/payment-scheduler/internal/api/middlewares"
)

type CustomRouter struct {
	router *chi.Mux
	logger *slog.Logger
	secret []byte
}

// New builds the admin router. With an empty secret the run endpoints are
// left unauthenticated.
func New(secret []byte, log *slog.Logger) *CustomRouter {
	if log == nil {
		log = slog.Default()
	}
	router := &CustomRouter{
		router: chi.NewRouter(),
		logger: log,
		secret: secret,
	}

	return router
}

type RunsHandler interface {
	TriggerRun(w http.ResponseWriter, r *http.Request)
	NextRun(w http.ResponseWriter, r *http.Request)
}

type HealthHandler interface {
	Ping(w http.ResponseWriter, r *http.Request)
}

type Handler interface {
	RunsHandler
	HealthHandler
}

func (cr *CustomRouter) SetRouter(h Handler) {
	cr.router.Use(
		middleware.RequestID,
		middlewares.RequestLogger(cr.logger),
		middleware.Recoverer,
	)

	cr.router.Route("/api/runs", func(r chi.Router) {
		if len(cr.secret) != 0 {
			r.Use(middlewares.Authentication(cr.secret, cr.logger))
		}
		r.Post("/", h.TriggerRun)
		r.Get("/next", h.NextRun)
	})
	cr.router.Get("/ping", h.Ping)

	cr.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w,
			http.StatusText(http.StatusMethodNotAllowed),
			http.StatusMethodNotAllowed)
	})
}

func (cr *CustomRouter) GetRouter() *chi.Mux {
	return cr.router
}
