// Package server provides HTTP server infrastructure for the acquisition
// service. It includes Gin-based routing, middleware setup, and graceful
// shutdown handling.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/otapush/acquisition/internal/acquisition"
	"github.com/otapush/acquisition/internal/cache"
	"github.com/otapush/acquisition/internal/config"
	"github.com/otapush/acquisition/internal/metrics"
	"github.com/otapush/acquisition/internal/middleware"
	"github.com/otapush/acquisition/internal/observability"
	"github.com/otapush/acquisition/internal/storage"
)

// Version is the service version reported by the health endpoints.
// Set at build time via -ldflags "-X github.com/otapush/acquisition/internal/server.Version=v1.2.3".
var Version = "dev"

// Server represents the HTTP server for the acquisition service.
// It encapsulates the Gin router, configuration, logger, and server state.
//
// The server provides:
//   - Update check endpoints (legacy and versioned paths)
//   - Deployment status report endpoints
//   - Health check endpoints (/health, /ready)
//   - Prometheus metrics endpoint (/metrics)
//   - Request logging and recovery middleware
//   - Graceful shutdown support
//
// Example:
//
//	cfg, err := config.Load("config/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	logger, _ := zap.NewProduction()
//	srv, err := server.New(cfg, logger, store, cacheManager, metricsStore)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
type Server struct {
	config       *config.Config
	logger       *zap.Logger
	router       *gin.Engine
	httpServer   *http.Server
	metrics      *Metrics
	handler      *acquisition.Handler
	store        storage.Storage
	cacheManager *cache.Manager
	healthCheck  *observability.HealthChecker
	rateLimiter  *middleware.RateLimiter

	shutdownOnce sync.Once
}

// Metrics holds the Prometheus collectors for HTTP server observability.
// Endpoint-specific metrics (update check outcomes, cache tier hits, report
// dispatches) live with the packages that produce them.
type Metrics struct {
	// RequestsTotal counts HTTP requests by method, path, and status
	RequestsTotal *prometheus.CounterVec

	// RequestDuration tracks request latency distribution
	RequestDuration *prometheus.HistogramVec

	// ActiveRequests tracks the number of requests currently in flight
	ActiveRequests prometheus.Gauge
}

// New creates a new Server instance with the given dependencies.
// It panics if cfg, logger, or store is nil. A nil cacheManager runs the
// service without the distributed cache tier; a nil metricsStore records no
// deployment counters.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	store storage.Storage,
	cacheManager *cache.Manager,
	metricsStore metrics.Store,
) (*Server, error) {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if store == nil {
		panic("storage cannot be nil")
	}
	if cacheManager == nil {
		cacheManager = cache.NewManager(nil, logger)
	}

	gin.SetMode(cfg.Server.GinMode)

	s := &Server{
		config:       cfg,
		logger:       logger,
		store:        store,
		cacheManager: cacheManager,
	}

	handler, err := acquisition.NewHandler(store, cacheManager, metricsStore, acquisition.Options{
		UpdateCheckMemTTL: cfg.Acquisition.UpdateCheckMemTTL(),
		DiffPackageMemTTL: cfg.Acquisition.DiffPackageMemTTL(),
		ProxyURL:          cfg.Acquisition.ProxyURL,
		DispatchTimeout:   cfg.Acquisition.DispatchTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create acquisition handler: %w", err)
	}
	s.handler = handler

	if cfg.RateLimit.Enabled && cacheManager.Enabled() {
		limiter, err := middleware.NewRateLimiter(&middleware.RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			RedisClient:       cacheManager.OpsClient(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		s.rateLimiter = limiter
	}

	s.initMetrics()
	s.initHealthChecker()

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// initMetrics initializes the Prometheus collectors for HTTP observability.
// Metrics are skipped entirely when disabled in configuration.
func (s *Server) initMetrics() {
	if !s.config.Observability.Metrics.Enabled {
		return
	}

	namespace := s.config.Observability.Metrics.Namespace
	subsystem := s.config.Observability.Metrics.Subsystem

	s.metrics = &Metrics{
		RequestsTotal: registerCollector(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		)),
		RequestDuration: registerCollector(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		)),
		ActiveRequests: registerCollector(prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_active_requests",
				Help:      "Number of HTTP requests currently being processed",
			},
		)),
	}
}

// registerCollector registers c with the default registry. When an earlier
// server instance already registered the collector, the existing one is
// reused.
func registerCollector[C prometheus.Collector](c C) C {
	err := prometheus.Register(c)
	if err == nil {
		return c
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}

// initHealthChecker registers the component checks behind /health and /ready.
func (s *Server) initHealthChecker() {
	s.healthCheck = observability.NewHealthChecker(Version)

	s.healthCheck.RegisterHealthCheck("storage", observability.StorageHealthCheck(s.store.Health))
	s.healthCheck.RegisterReadinessCheck("storage", observability.StorageHealthCheck(s.store.Health))

	if s.cacheManager.Enabled() {
		s.healthCheck.RegisterHealthCheck("redis", observability.CacheHealthCheck(s.cacheManager.Ping))
		s.healthCheck.RegisterReadinessCheck("redis", observability.CacheHealthCheck(s.cacheManager.Ping))
	}
}

// setupMiddleware configures the middleware chain for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware())
	s.router.Use(middleware.RequestID())
	s.router.Use(s.loggingMiddleware())

	if s.metrics != nil {
		s.router.Use(s.metricsMiddleware())
	}

	s.router.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()))

	if s.rateLimiter != nil {
		s.router.Use(s.rateLimiter.Middleware())
	}
}

// Start starts the HTTP server and blocks until shutdown.
// It handles SIGINT and SIGTERM for graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting HTTP server",
			zap.String("addr", addr),
			zap.String("mode", s.config.Server.GinMode),
		)
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the server using the configured timeout.
func (s *Server) Shutdown() error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return s.ShutdownWithContext(ctx)
}

// ShutdownWithContext gracefully shuts down the server, bounded by ctx.
// The HTTP listener stops first so no new work arrives, then the handler
// drains its queued post-response operations (counter writes, cache
// write-backs). Safe to call multiple times.
func (s *Server) ShutdownWithContext(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutting down HTTP server")

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				shutdownErr = fmt.Errorf("failed to shutdown http server: %w", err)
				return
			}
		}

		if err := s.handler.Drain(ctx); err != nil {
			shutdownErr = fmt.Errorf("failed to drain dispatcher: %w", err)
			return
		}

		s.logger.Info("HTTP server stopped")
	})

	return shutdownErr
}

// Router returns the Gin router for testing purposes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Config returns the server configuration.
func (s *Server) Config() *config.Config {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *zap.Logger {
	return s.logger
}

// HealthCheck returns the health checker.
func (s *Server) HealthCheck() *observability.HealthChecker {
	return s.healthCheck
}

// SetHTTPServer sets the underlying HTTP server. Used by tests to exercise
// shutdown without binding a listener.
func (s *Server) SetHTTPServer(srv *http.Server) {
	s.httpServer = srv
}

// RecoveryMiddleware returns the panic recovery middleware for testing.
func (s *Server) RecoveryMiddleware() gin.HandlerFunc {
	return s.recoveryMiddleware()
}

// LoggingMiddleware returns the request logging middleware for testing.
func (s *Server) LoggingMiddleware() gin.HandlerFunc {
	return s.loggingMiddleware()
}

// MetricsMiddleware returns the metrics collection middleware for testing.
func (s *Server) MetricsMiddleware() gin.HandlerFunc {
	return s.metricsMiddleware()
}

// recoveryMiddleware recovers from panics and returns a 500 error.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.String("client_ip", c.ClientIP()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs each HTTP request with structured fields.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
			zap.Int("body_size", c.Writer.Size()),
			zap.String("user_agent", c.Request.UserAgent()),
		}

		if requestID := c.GetString(middleware.RequestIDKey); requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}

		for _, e := range c.Errors.Errors() {
			fields = append(fields, zap.String("error", e))
		}

		s.logger.Info("HTTP request", fields...)
	}
}

// metricsMiddleware records Prometheus metrics for each request.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.metrics == nil {
			c.Next()
			return
		}

		start := time.Now()

		// Use the route template so path cardinality stays bounded
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		s.metrics.ActiveRequests.Inc()
		defer s.metrics.ActiveRequests.Dec()

		c.Next()

		status := fmt.Sprintf("%d", c.Writer.Status())
		duration := time.Since(start).Seconds()

		s.metrics.RequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		s.metrics.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
	}
}
