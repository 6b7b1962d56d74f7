package middlewares

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/utils/auth"
)

func TestAuthentication(t *testing.T) {
	secret := []byte("secret")
	valid, err := auth.BuildServiceToken("ops-console", secret, time.Minute)
	require.NoError(t, err)
	expired, err := auth.BuildServiceToken("ops-console", secret, -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.BuildServiceToken("ops-console", []byte("other"), time.Minute)
	require.NoError(t, err)

	var actor any
	h := Authentication(secret, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = r.Context().Value(model.KeyContextActor)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{name: "valid token", header: "Bearer " + valid, wantCode: http.StatusNoContent},
		{name: "no header", header: "", wantCode: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, wantCode: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + foreign, wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor = nil
			req := httptest.NewRequest(http.MethodPost, "/api/runs", http.NoBody)
			if tt.header != "" {
				req.Header.Set(model.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusNoContent {
				assert.Equal(t, "ops-console", actor)
			} else {
				assert.Nil(t, actor)
			}
		})
	}
}
