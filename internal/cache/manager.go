// Package cache implements the two tiers of update-check caching: a
// short-TTL in-process microcache in front of a shared Redis store, plus
// the diff-package-map cache consulted while an update is selected. The
// metrics counters live on a second logical database of the same store so
// that response eviction never touches them.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds configuration for the distributed cache connection.
type Config struct {
	// Host is the Redis server hostname. An empty Host disables the
	// distributed cache; every operation becomes a no-op.
	Host string

	// Port is the Redis server port.
	Port string

	// Password for Redis authentication.
	Password string

	// EnableTLS turns on TLS for the connection. The server certificate
	// is verified against the system CA pool.
	EnableTLS bool

	// OpsDB is the database number holding cached responses and diff
	// package maps.
	OpsDB int

	// MetricsDB is the database number holding deployment counters.
	MetricsDB int

	// MaxRetries is the maximum number of retries for failed commands.
	MaxRetries int

	// DialTimeout is the timeout for establishing connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// PoolSize is the maximum number of socket connections per client.
	PoolSize int

	// ResponseTTL is the expiry applied to a response-cache key on its
	// first write. Later writes to the same key never extend it.
	ResponseTTL time.Duration

	// DiffMapTTL is the expiry applied to cached diff package maps.
	DiffMapTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults. The cache stays
// disabled until a Host is set.
func DefaultConfig() *Config {
	return &Config{
		Host:         "",
		Port:         "6379",
		OpsDB:        0,
		MetricsDB:    1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		ResponseTTL:  time.Hour,
		DiffMapTTL:   5 * time.Minute,
	}
}

// Manager owns the Redis clients backing the distributed caches.
//
// Two logical clients share the manager: one on the ops database for
// cached responses and diff maps, and one on the metrics database for
// deployment counters. Without a configured Host the manager runs in a
// disabled state in which reads miss and writes are dropped, so the
// service keeps answering update checks straight from storage.
//
// Data model (ops database):
//   - deploymentKey:<D> (hash) - cached responses, field = canonical URL key
//   - diffPackageMap:<D>:<H> (string) - JSON diff map for one release
//
// Data model (metrics database):
//   - deploymentKeyLabels:<D> (hash) - per-label status counters
//   - deploymentKeyClients:<D> (hash) - active label per client
//
// Example:
//
//	cfg := DefaultConfig()
//	cfg.Host = "redis.example.com"
//	manager := NewManager(cfg, logger)
//	defer manager.Close()
//
//	resp, err := manager.GetCachedResponse(ctx, hashKey, urlKey)
type Manager struct {
	ops     redis.UniversalClient
	metrics redis.UniversalClient
	config  *Config
	logger  *zap.Logger
}

// NewManager creates a Manager from cfg. A nil cfg uses DefaultConfig.
// A cfg without a Host yields a disabled manager.
func NewManager(cfg *Config, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{config: cfg, logger: logger}
	if cfg.Host == "" {
		logger.Info("distributed cache disabled, no host configured")
		return m
	}

	m.ops = newClient(cfg, cfg.OpsDB)
	m.metrics = newClient(cfg, cfg.MetricsDB)
	return m
}

// NewManagerWithClients wires a Manager over existing clients. The ops
// client must select the ops database and the metrics client the metrics
// database.
func NewManagerWithClients(ops, metrics redis.UniversalClient, cfg *Config, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{ops: ops, metrics: metrics, config: cfg, logger: logger}
}

func newClient(cfg *Config, db int) redis.UniversalClient {
	opts := &redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           db,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}
	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.Host,
		}
	}
	return redis.NewClient(opts)
}

// Enabled reports whether a distributed cache is configured.
func (m *Manager) Enabled() bool {
	return m.ops != nil
}

// Ping verifies connectivity on both databases.
func (m *Manager) Ping(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	if err := m.ops.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping cache: %w", err)
	}
	if err := m.metrics.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping metrics database: %w", err)
	}
	return nil
}

// Close releases both client connection pools.
func (m *Manager) Close() error {
	if !m.Enabled() {
		return nil
	}
	if err := m.ops.Close(); err != nil {
		_ = m.metrics.Close()
		return fmt.Errorf("failed to close cache client: %w", err)
	}
	if err := m.metrics.Close(); err != nil {
		return fmt.Errorf("failed to close metrics client: %w", err)
	}
	return nil
}

// OpsClient exposes the client bound to the ops database, or nil when the
// manager is disabled.
func (m *Manager) OpsClient() redis.UniversalClient {
	return m.ops
}

// MetricsClient exposes the client bound to the metrics database, or nil
// when the manager is disabled.
func (m *Manager) MetricsClient() redis.UniversalClient {
	return m.metrics
}
