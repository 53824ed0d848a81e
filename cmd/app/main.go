package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"stackagent/internal/infra/handler"
	infraPostgres "stackagent/internal/infra/postgres"
	infraRedis "stackagent/internal/infra/redis"
	"stackagent/internal/platform/cache"
	"stackagent/internal/platform/config"
	"stackagent/internal/platform/database"
	"stackagent/internal/platform/logger"
	"stackagent/internal/platform/metrics"
	"stackagent/internal/platform/server"
	"stackagent/internal/platform/telemetry"
	usecaseAPIKey "stackagent/internal/usecase/api_key"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sentryEnabled, err := telemetry.InitSentry(cfg.Sentry)
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	if sentryEnabled {
		defer telemetry.Flush(2 * time.Second)
	}

	log := logger.New(logger.Config{
		Level:  logger.Level(cfg.App.LogLevel),
		Format: logger.Format(cfg.App.LogFormat),
	})
	if sentryEnabled {
		log = logger.WrapWithSentry(log)
	}
	logger.SetDefault(log)

	db, err := database.New(ctx, database.Config{
		ConnectionString: cfg.Database.ConnectionString(),
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		ConnectTimeout:   cfg.Database.ConnectTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.New(cache.Config{
		Address:      cfg.Redis.Address(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("failed to close redis", "error", err)
		}
	}()

	var httpMetrics *metrics.HTTPMetrics
	if cfg.App.EnableMetrics {
		httpMetrics = metrics.NewHTTPMetrics()
	}

	keyRepo := infraPostgres.NewAPIKeyRepository(db.Pool)
	keyService := usecaseAPIKey.NewService(usecaseAPIKey.Config{
		Repo:        keyRepo,
		KeyPrefix:   cfg.App.APIKeyPrefix,
		VerifyCache: infraRedis.NewVerifyCache(redisClient, cfg.App.VerifyCacheTTL),
		ListCache:   infraRedis.NewKeyListCache(redisClient, cfg.App.KeyListCacheTTL),
		Observer:    httpMetrics,
		Logger:      log,
	})

	apiKeyHandler := handler.NewAPIKeyHandler(keyService, cfg.App.APIKeyTTL)
	healthHandler := &handler.HealthHandler{
		DB:    db,
		Cache: redisClient,
	}

	middlewares := []func(http.Handler) http.Handler{
		server.RequestLogger(log),
		server.Recoverer(log),
		server.SecurityHeaders(),
		server.CORS(cfg.App.CORSOrigins),
	}
	if httpMetrics != nil {
		middlewares = append(middlewares, httpMetrics.Middleware)
	}

	var authMiddleware func(http.Handler) http.Handler
	if cfg.App.APIKeyRequired {
		authMiddleware = server.APIKeyAuth(keyService, log)
	}

	// The limiter sits behind auth on the key routes so authenticated
	// callers are bucketed by key ID rather than by client IP.
	var rateLimitMiddleware func(http.Handler) http.Handler
	if cfg.App.RateLimitEnabled {
		rateLimitMiddleware = server.RateLimit(server.RateLimitConfig{
			Cache:  redisClient,
			Limit:  cfg.App.RateLimitMaxRequests,
			Window: cfg.App.RateLimitWindow,
			Logger: log,
		})
	}

	routerCfg := handler.RouterConfig{
		APIKeyHandler:       apiKeyHandler,
		HealthHandler:       healthHandler,
		APIBasePath:         cfg.App.APIBasePath,
		Middlewares:         middlewares,
		AuthMiddleware:      authMiddleware,
		RateLimitMiddleware: rateLimitMiddleware,
	}
	if httpMetrics != nil {
		routerCfg.PrometheusHandler = httpMetrics.Handler()
	}
	router := handler.NewRouter(routerCfg)

	srv := server.New(server.Config{
		Address:      cfg.Server.Address(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, router, log)

	return srv.ListenAndServeWithGracefulShutdown()
}
