// Package main is the entry point for the OTA acquisition service.
// It serves the mobile-client-facing side of the update platform: clients
// poll with a deployment key and their installed identity, and the service
// answers with the newest compatible bundle, recording download and install
// counters as they come in.
//
// The application performs the following initialization sequence:
//  1. Load configuration from config file and environment variables
//  2. Initialize structured logging with zap
//  3. Open the release history backend (memory or MongoDB)
//  4. Connect the Redis cache manager (ops + metrics databases)
//  5. Configure the HTTP server with routes and middleware
//  6. Start the cache invalidation listener
//  7. Serve until SIGINT/SIGTERM, then drain and close everything
//
// Example usage:
//
//	# Start with default config
//	./acquisition
//
//	# Start with custom config file
//	./acquisition --config=/etc/otapush/config.yaml
//
//	# Start with environment variable overrides
//	export REDIS_HOST=redis.example.com
//	export MONGO_URI=mongodb://mongo.example.com:27017
//	./acquisition
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/otapush/acquisition/internal/cache"
	"github.com/otapush/acquisition/internal/config"
	"github.com/otapush/acquisition/internal/metrics"
	"github.com/otapush/acquisition/internal/observability"
	"github.com/otapush/acquisition/internal/server"
	"github.com/otapush/acquisition/internal/storage"
	"github.com/otapush/acquisition/internal/workers"
)

// ServiceName is the name of this service.
const ServiceName = "otapush-acquisition"

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Fprintf(os.Stdout, "%s version %s\n", ServiceName, server.Version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic. It returns an error if any
// critical initialization or runtime error occurs.
func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	obsLogger, err := observability.InitLogger(cfg.Observability.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := obsLogger.Logger
	defer func() {
		if syncErr := obsLogger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to sync logger: %v\n", syncErr)
		}
	}()

	logger.Info("Acquisition service starting",
		zap.String("service", ServiceName),
		zap.String("version", server.Version),
		zap.String("environment", cfg.Observability.Environment),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close(logger)

	return components.serve(cfg, logger)
}

// applicationComponents holds all initialized application components.
type applicationComponents struct {
	store        storage.Storage
	cacheManager *cache.Manager
	listener     *workers.InvalidationListener
	server       *server.Server
}

// initializeComponents wires storage, caches, counters, and the HTTP server.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*applicationComponents, error) {
	store, err := InitializeStorage(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	logger.Info("Release history storage initialized",
		zap.String("backend", cfg.Storage.Backend),
	)

	cacheManager, metricsStore, err := InitializeCache(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize cache manager", zap.Error(err))
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("failed to close storage during cleanup", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to initialize cache manager: %w", err)
	}

	if cacheManager.Enabled() {
		logger.Info("Distributed cache connected",
			zap.String("host", cfg.Redis.Host),
			zap.String("port", cfg.Redis.Port),
			zap.Bool("tls", cfg.Redis.EnableTLS),
		)
	} else {
		logger.Info("Distributed cache disabled; serving from storage with microcache only")
	}

	srv, err := server.New(cfg, logger, store, cacheManager, metricsStore)
	if err != nil {
		if closeErr := cacheManager.Close(); closeErr != nil {
			logger.Warn("failed to close cache manager during cleanup", zap.Error(closeErr))
		}
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("failed to close storage during cleanup", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("HTTP server created",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.GinMode),
	)

	listener, err := workers.NewInvalidationListener(&workers.InvalidationListenerConfig{
		CacheManager: cacheManager,
		Channel:      cfg.Redis.InvalidationChannel,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create invalidation listener: %w", err)
	}

	return &applicationComponents{
		store:        store,
		cacheManager: cacheManager,
		listener:     listener,
		server:       srv,
	}, nil
}

// serve runs the invalidation listener and the HTTP server until shutdown.
func (c *applicationComponents) serve(cfg *config.Config, logger *zap.Logger) error {
	listenerCtx, cancelListener := context.WithCancel(context.Background())
	defer cancelListener()

	if err := c.listener.Start(listenerCtx); err != nil {
		return fmt.Errorf("failed to start invalidation listener: %w", err)
	}

	// Blocks until SIGINT/SIGTERM or a listener error, then drains the
	// post-response dispatcher before returning.
	err := c.server.Start()

	cancelListener()
	if stopErr := c.listener.Stop(); stopErr != nil {
		logger.Warn("failed to stop invalidation listener", zap.Error(stopErr))
	}

	return err
}

// Close closes all components gracefully.
func (c *applicationComponents) Close(logger *zap.Logger) {
	if c.cacheManager != nil {
		if err := c.cacheManager.Close(); err != nil {
			logger.Warn("failed to close cache manager", zap.Error(err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}
}

// InitializeStorage opens the configured release history backend. Exported
// for testing.
func InitializeStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		return storage.NewMemoryStorage(), nil

	case config.StorageBackendMongo:
		mongoCfg := storage.DefaultMongoConfig()
		mongoCfg.URI = cfg.Storage.MongoURI
		mongoCfg.Database = cfg.Storage.MongoDatabase
		if cfg.Storage.OperationTimeout > 0 {
			mongoCfg.OperationTimeout = cfg.Storage.OperationTimeout
		}

		ctx, cancel := context.WithTimeout(context.Background(), mongoCfg.OperationTimeout)
		defer cancel()

		return storage.NewMongoStorage(ctx, mongoCfg, logger)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// InitializeCache builds the cache manager and the metrics store over it.
// Without a configured Redis host both come back disabled. Exported for
// testing.
func InitializeCache(cfg *config.Config, logger *zap.Logger) (*cache.Manager, metrics.Store, error) {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Host = cfg.Redis.Host
	if cfg.Redis.Port != "" {
		cacheCfg.Port = cfg.Redis.Port
	}
	cacheCfg.Password = cfg.Redis.Password
	cacheCfg.EnableTLS = cfg.Redis.EnableTLS
	cacheCfg.OpsDB = cfg.Redis.OpsDB
	cacheCfg.MetricsDB = cfg.Redis.MetricsDB
	if cfg.Redis.MaxRetries > 0 {
		cacheCfg.MaxRetries = cfg.Redis.MaxRetries
	}
	if cfg.Redis.DialTimeout > 0 {
		cacheCfg.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout > 0 {
		cacheCfg.ReadTimeout = cfg.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout > 0 {
		cacheCfg.WriteTimeout = cfg.Redis.WriteTimeout
	}
	if cfg.Redis.PoolSize > 0 {
		cacheCfg.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.ResponseTTL > 0 {
		cacheCfg.ResponseTTL = cfg.Redis.ResponseTTL
	}
	if cfg.Redis.DiffMapTTL > 0 {
		cacheCfg.DiffMapTTL = cfg.Redis.DiffMapTTL
	}

	manager := cache.NewManager(cacheCfg, logger)

	if !manager.Enabled() {
		return manager, metrics.NewNoopStore(), nil
	}

	// A configured cache that cannot be reached is a startup error:
	// counters would silently vanish otherwise.
	ctx, cancel := context.WithTimeout(context.Background(), cacheCfg.DialTimeout)
	defer cancel()
	if err := manager.Ping(ctx); err != nil {
		if closeErr := manager.Close(); closeErr != nil {
			logger.Warn("failed to close cache manager during cleanup", zap.Error(closeErr))
		}
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return manager, metrics.NewRedisStore(manager.MetricsClient(), logger), nil
}
