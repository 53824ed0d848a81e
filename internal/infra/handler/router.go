package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig bundles handler dependencies.
type RouterConfig struct {
	APIKeyHandler *APIKeyHandler
	HealthHandler *HealthHandler

	APIBasePath string
	Middlewares []func(http.Handler) http.Handler

	// AuthMiddleware and RateLimitMiddleware apply to the key routes only,
	// in that order, so the limiter sees the authenticated key record.
	AuthMiddleware      func(http.Handler) http.Handler
	RateLimitMiddleware func(http.Handler) http.Handler

	PrometheusHandler http.Handler
}

// NewRouter wires handlers and middlewares. Key management routes sit behind
// AuthMiddleware when one is given; health and metrics stay open.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	for _, mw := range cfg.Middlewares {
		if mw == nil {
			continue
		}
		r.Use(mw)
	}

	apiBasePath := normalizeAPIBasePath(cfg.APIBasePath)
	if apiBasePath == "" {
		apiBasePath = "/"
	}
	r.Route(apiBasePath, func(api chi.Router) {
		if cfg.HealthHandler != nil {
			api.Get("/health", cfg.HealthHandler.ServeHTTP)
		}
		if cfg.APIKeyHandler != nil {
			if cfg.AuthMiddleware != nil || cfg.RateLimitMiddleware != nil {
				api.Group(func(keys chi.Router) {
					if cfg.AuthMiddleware != nil {
						keys.Use(cfg.AuthMiddleware)
					}
					if cfg.RateLimitMiddleware != nil {
						keys.Use(cfg.RateLimitMiddleware)
					}
					cfg.APIKeyHandler.RegisterRoutes(keys)
				})
			} else {
				cfg.APIKeyHandler.RegisterRoutes(api)
			}
		}
	})

	if cfg.PrometheusHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.PrometheusHandler)
	}

	return r
}
