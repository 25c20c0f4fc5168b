package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-bff/internal/http/handler"
)

func healthEngine(checks ...handler.HealthCheck) http.Handler {
	h := handler.NewHealthHandler(nil, checks...)
	r := newEngine(nil)
	r.GET("/api/health", h.Health)
	return r
}

func TestHealthAllChecksPass(t *testing.T) {
	ok := func(context.Context) error { return nil }
	r := healthEngine(handler.HealthCheck{Name: "postgres", Check: ok}, handler.HealthCheck{Name: "openclaw", Check: ok})

	w := doJSON(t, r, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "ok", body["status"])
	checks := body["checks"].(map[string]any)
	require.Len(t, checks, 2)
	require.Equal(t, "ok", checks["postgres"].(map[string]any)["status"])
}

func TestHealthReportsDegraded(t *testing.T) {
	r := healthEngine(
		handler.HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		handler.HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	w := doJSON(t, r, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	require.Equal(t, "degraded", body["status"])
	redis := body["checks"].(map[string]any)["redis"].(map[string]any)
	require.Equal(t, "error", redis["status"])
	require.Equal(t, "connection refused", redis["error"])
	require.Equal(t, "ok", body["checks"].(map[string]any)["postgres"].(map[string]any)["status"])
}

func TestHealthProbeHonorsTimeout(t *testing.T) {
	r := healthEngine(handler.HealthCheck{Name: "authentik", Check: func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		require.True(t, hasDeadline)
		return nil
	}})

	w := doJSON(t, r, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
