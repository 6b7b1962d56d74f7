package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/utils/auth"
	"github.com/talx-hub/payment-scheduler/internal/utils/logger"
)

const bearerPrefix = "Bearer "

// Authentication accepts requests carrying a service token signed with
// secret and stores the calling service under model.KeyContextActor.
func Authentication(secret []byte, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		authFunc := func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(model.HeaderAuthorization)
			if !strings.HasPrefix(header, bearerPrefix) {
				log.LogAttrs(r.Context(),
					slog.LevelWarn,
					"failed to find token in request",
				)
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}

			claims, err := auth.CheckToken(strings.TrimPrefix(header, bearerPrefix), secret)
			if err != nil {
				log.LogAttrs(r.Context(),
					slog.LevelWarn,
					"authentication failed",
					slog.Any(model.KeyLoggerError, err),
				)
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), model.KeyContextActor, claims.Service)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(authFunc)
	}
}

// RequestLogger puts a logger tagged with the chi request id into the
// request context.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := log.With(slog.String("request_id", middleware.GetReqID(r.Context())))
			next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), l)))
		})
	}
}
