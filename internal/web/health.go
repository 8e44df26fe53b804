package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	healthTimeout = 5 * time.Second

	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// CheckFunc reports the health of a dependency such as Redis.
type CheckFunc func(ctx context.Context) error

type healthResponse struct {
	Checks   map[string]healthCheck `json:"checks,omitempty"`
	Status   string                 `json:"status"`
	Visitors int                    `json:"visitors"`
}

type healthCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	resp := runChecks(r.Context(), s.cfg.checks, s.logger)
	resp.Visitors = s.visitors.len()

	status := http.StatusOK
	if resp.Status == statusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// runChecks executes all checks in parallel.
func runChecks(ctx context.Context, checks map[string]CheckFunc, logger *slog.Logger) *healthResponse {
	if len(checks) == 0 {
		return &healthResponse{Status: statusHealthy}
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]healthCheck, len(checks))
		failed  bool
	)

	for name, check := range checks {
		wg.Go(func() {
			result := healthCheck{Status: statusHealthy}
			if err := check(ctx); err != nil {
				result = healthCheck{Status: statusUnhealthy, Error: err.Error()}
				logger.WarnContext(ctx, "health check failed",
					slog.String("check", name),
					slog.Any("error", err),
				)
			}

			mu.Lock()
			results[name] = result
			failed = failed || result.Status == statusUnhealthy
			mu.Unlock()
		})
	}
	wg.Wait()

	status := statusHealthy
	if failed {
		status = statusUnhealthy
	}
	return &healthResponse{Status: status, Checks: results}
}
