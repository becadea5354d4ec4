package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readinessTimeout = 2 * time.Second

// Pinger is anything the readiness probe can reach: the pgx pool, the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	db       Pinger
	cache    Pinger
	gatherer prometheus.Gatherer
	started  time.Time
	version  string
}

// NewHealthHandlers creates a new health handlers instance. cache may be nil
// when Redis is not configured.
func NewHealthHandlers(db Pinger, cache Pinger, gatherer prometheus.Gatherer, version string) *HealthHandlers {
	return &HealthHandlers{
		db:       db,
		cache:    cache,
		gatherer: gatherer,
		started:  time.Now(),
		version:  version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
}

// LivenessCheck handles GET /health
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, &HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.version,
	})
}

// ReadinessCheck handles GET /health/ready. Postgres and Redis must both answer.
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	health := &HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.version,
	}

	check := func(name string, p Pinger) {
		if p == nil {
			health.Services[name] = "disabled"
			return
		}
		if err := p.Ping(ctx); err != nil {
			health.Services[name] = "unhealthy"
			health.Status = "not_ready"
			return
		}
		health.Services[name] = "healthy"
	}
	check("database", h.db)
	check("redis", h.cache)

	statusCode := http.StatusOK
	if health.Status != "ready" {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, health)
}

// Metrics handles GET /metrics in the Prometheus exposition format.
func (h *HealthHandlers) Metrics() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}
