package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const probeTimeout = 3 * time.Second

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type checkResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthHandler aggregates dependency probes.
type HealthHandler struct {
	Checks []HealthCheck
	Tracer trace.Tracer
}

func NewHealthHandler(tracer trace.Tracer, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{Checks: checks, Tracer: tracer}
}

// Health runs every probe in parallel and answers 503 when any fails.
func (h *HealthHandler) Health(c *gin.Context) {
	tracer := h.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/smallbiznis/valora-bff/internal/http/handler")
	}

	var (
		mu      sync.Mutex
		results = make(map[string]checkResult, len(h.Checks))
		healthy = true
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	for _, check := range h.Checks {
		g.Go(func() error {
			ctx, span := tracer.Start(ctx, "health."+check.Name)
			defer span.End()
			ctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			start := time.Now()
			err := check.Check(ctx)
			res := checkResult{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				res.Status = "error"
				res.Error = err.Error()
			}

			mu.Lock()
			results[check.Name] = res
			if err != nil {
				healthy = false
			}
			mu.Unlock()
			// Probe failures are reported, not propagated, so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"checks":    results,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
