package handler

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// HealthChecker is the liveness hook each backing dependency exposes.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports whether the key store and the cache are reachable.
// Nil dependencies are skipped, so a partially wired service still answers.
type HealthHandler struct {
	DB    HealthChecker
	Cache HealthChecker
}

type healthComponent struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	components := []healthComponent{}
	check := func(name string, dep HealthChecker) {
		if dep == nil {
			return
		}
		if err := dep.HealthCheck(ctx); err != nil {
			status = http.StatusServiceUnavailable
			components = append(components, healthComponent{Name: name, Status: "unhealthy", Error: err.Error()})
			return
		}
		components = append(components, healthComponent{Name: name, Status: "healthy"})
	}

	check("database", h.DB)
	check("redis", h.Cache)

	writeJSON(w, status, map[string]any{
		"status":     statusLabel(status),
		"components": components,
		"checked_at": time.Now().UTC(),
	})
}

func statusLabel(code int) string {
	if code == http.StatusOK {
		return "healthy"
	}
	return "unhealthy"
}
