// Package observability provides structured logging and health/readiness
// checks for the acquisition server. Prometheus metrics are registered by the
// packages that own them; this package covers the remaining cross-cutting
// concerns.
//
// # Logging
//
// Initialize the logger once at application startup:
//
//	logger, err := observability.InitLogger("production")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Use structured logging throughout the application:
//
//	logger.Info("serving update",
//	    zap.String("deployment_key", key),
//	    zap.String("label", label),
//	)
//
// Use context-aware logging:
//
//	logger := observability.LoggerFromContext(ctx)
//	logger.Info("operation completed")
//
// Request-scoped fields travel through the context. Middleware stores the
// request ID with ContextWithRequestID and WithContext picks it up:
//
//	ctx := observability.ContextWithRequestID(r.Context(), requestID)
//	logger.WithContext(ctx).Info("update check served")
//
// # Health Checks
//
// Create a health checker with registered checks:
//
//	healthChecker := observability.NewHealthChecker("v1.0.0")
//
//	// Release history store must answer before we report ready
//	healthChecker.RegisterReadinessCheck("storage", observability.StorageHealthCheck(func(ctx context.Context) error {
//	    return store.Health(ctx)
//	}))
//
//	// Redis is optional for serving but tracked as a component
//	healthChecker.RegisterReadinessCheck("redis", observability.CacheHealthCheck(func(ctx context.Context) error {
//	    return cacheManager.Ping(ctx)
//	}))
//
// Run the checks from an HTTP handler:
//
//	health := healthChecker.CheckHealth(r.Context())
//	readiness := healthChecker.CheckReadiness(r.Context())
//
// Checks execute concurrently under a shared timeout, so a hung component
// turns into an "unhealthy" entry instead of a stalled endpoint.
package observability
