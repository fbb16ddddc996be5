package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Pinger is anything the health endpoint can probe: the pool itself, or the
// tariff cache backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports pool statistics and the result of pinging the
// database plus any extra dependencies. Any failed ping yields 503.
func HealthHandler(pool *pgxpool.Pool, extra map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]Pinger, len(extra)+1)
		if pool != nil {
			checks["database"] = pool
		}
		for name, p := range extra {
			checks[name] = p
		}
		status, results := probe(ctx, checks)

		body := map[string]interface{}{"status": "healthy", "checks": results}
		if pool != nil {
			stats := GetPoolStats(pool)
			if results["database"] != "ok" {
				stats.Healthy = false
			}
			body["pool"] = stats
		}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		return c.JSON(status, body)
	}
}

func probe(ctx context.Context, checks map[string]Pinger) (int, map[string]string) {
	status := http.StatusOK
	results := make(map[string]string, len(checks))
	for name, p := range checks {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	return status, results
}
