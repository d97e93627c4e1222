// Package config provides configuration management for the acquisition
// service. It loads configuration from YAML files and environment variables
// using Viper, with validation per section.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Release history storage backends.
const (
	StorageBackendMemory = "memory"
	StorageBackendMongo  = "mongo"
)

// Config represents the complete configuration for the acquisition service.
// It includes server settings, Redis cache configuration, release history
// storage, update check behavior, and observability options.
//
// Configuration can be loaded from:
//   - YAML file (config/config.yaml)
//   - Environment variables (prefixed with ACQUISITION_)
//   - The canonical platform variables (REDIS_HOST, REDIS_KEY, MONGO_URI, ...)
//
// Example:
//
//	cfg, err := config.Load("config/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Acquisition   AcquisitionConfig   `mapstructure:"acquisition"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the network interface to bind to (e.g., "0.0.0.0", "localhost")
	Host string `mapstructure:"host"`

	// Port is the HTTP server port (default: 3000)
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request when keep-alives are enabled
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes is the maximum size of request headers
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`

	// GinMode sets the Gin framework mode ("debug", "release", "test")
	GinMode string `mapstructure:"gin_mode"`
}

// RedisConfig contains the distributed cache configuration. An empty Host
// disables the distributed tiers; the service then answers straight from
// storage with only the in-process microcache in front.
type RedisConfig struct {
	// Host is the Redis server hostname. Empty disables the cache.
	Host string `mapstructure:"host"`

	// Port is the Redis server port
	Port string `mapstructure:"port"`

	// Password for Redis authentication. The hosted platform supplies this
	// as REDIS_KEY, which also switches the connection to TLS.
	Password string `mapstructure:"password"`

	// EnableTLS enables TLS with strict CA verification
	EnableTLS bool `mapstructure:"enable_tls"`

	// OpsDB is the database number holding cached responses and diff maps (0-15)
	OpsDB int `mapstructure:"ops_db"`

	// MetricsDB is the database number holding deployment counters (0-15)
	MetricsDB int `mapstructure:"metrics_db"`

	// MaxRetries is the maximum number of retries before giving up
	MaxRetries int `mapstructure:"max_retries"`

	// DialTimeout is the timeout for establishing new connections
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the timeout for socket writes
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// PoolSize is the maximum number of socket connections per client
	PoolSize int `mapstructure:"pool_size"`

	// ResponseTTL is the expiry applied to response-cache keys on first write
	ResponseTTL time.Duration `mapstructure:"response_ttl"`

	// DiffMapTTL is the expiry applied to cached diff package maps
	DiffMapTTL time.Duration `mapstructure:"diff_map_ttl"`

	// InvalidationChannel is the pub/sub channel the management surface
	// announces deployment changes on. Empty uses the built-in default.
	InvalidationChannel string `mapstructure:"invalidation_channel"`
}

// StorageConfig selects and configures the release history backend.
type StorageConfig struct {
	// Backend is the storage implementation: "memory" or "mongo"
	Backend string `mapstructure:"backend"`

	// MongoURI is the MongoDB connection string (mongo backend)
	MongoURI string `mapstructure:"mongo_uri"`

	// MongoDatabase is the database holding the deployments collection
	MongoDatabase string `mapstructure:"mongo_database"`

	// OperationTimeout bounds each storage operation
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// AcquisitionConfig contains update check and report behavior.
type AcquisitionConfig struct {
	// ProxyURL, when set, replaces the scheme and host of download URLs
	// so bundles are served through a CDN or reverse proxy
	ProxyURL string `mapstructure:"proxy_url"`

	// UpdateCheckMemTTLMS is the in-process cache TTL for update check
	// responses, in milliseconds. Zero disables the tier.
	UpdateCheckMemTTLMS int `mapstructure:"update_check_mem_ttl_ms"`

	// DiffPackageMemTTLMS is the in-process cache TTL for diff package
	// maps, in milliseconds. Zero disables the tier.
	DiffPackageMemTTLMS int `mapstructure:"diff_package_mem_ttl_ms"`

	// DispatchTimeout bounds each asynchronous post-response operation
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
}

// UpdateCheckMemTTL returns the update check microcache TTL as a duration.
func (a *AcquisitionConfig) UpdateCheckMemTTL() time.Duration {
	return time.Duration(a.UpdateCheckMemTTLMS) * time.Millisecond
}

// DiffPackageMemTTL returns the diff map microcache TTL as a duration.
func (a *AcquisitionConfig) DiffPackageMemTTL() time.Duration {
	return time.Duration(a.DiffPackageMemTTLMS) * time.Millisecond
}

// ObservabilityConfig contains logging and metrics configuration.
type ObservabilityConfig struct {
	// Environment selects the logger profile
	// ("development", "test", "staging", "production")
	Environment string `mapstructure:"environment"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled enables Prometheus metrics collection
	Enabled bool `mapstructure:"enabled"`

	// Path is the HTTP path for metrics endpoint (default: "/metrics")
	Path string `mapstructure:"path"`

	// Namespace is the Prometheus metrics namespace
	Namespace string `mapstructure:"namespace"`

	// Subsystem is the Prometheus metrics subsystem
	Subsystem string `mapstructure:"subsystem"`
}

// RateLimitConfig contains per-client rate limiting over the cache Redis.
// Disabled by default; most installations put the limit at the edge.
type RateLimitConfig struct {
	// Enabled enables rate limiting
	Enabled bool `mapstructure:"enabled"`

	// Requests is the maximum requests per client per window
	Requests int `mapstructure:"requests"`

	// Window is the rate limit time window
	Window time.Duration `mapstructure:"window"`
}

// platformEnvBindings maps config keys to the canonical platform environment
// variables, which ride beside the ACQUISITION_-prefixed tree. The prefixed
// form wins when both are set.
var platformEnvBindings = map[string]string{
	"redis.host":                          "REDIS_HOST",
	"redis.port":                          "REDIS_PORT",
	"redis.password":                      "REDIS_KEY",
	"acquisition.proxy_url":               "UPDATE_CHECK_PROXY_URL",
	"acquisition.update_check_mem_ttl_ms": "UPDATECHECK_MEM_TTL_MS",
	"acquisition.diff_package_mem_ttl_ms": "DIFFPACKAGE_MEM_TTL_MS",
	"storage.mongo_uri":                   "MONGO_URI",
	"storage.mongo_database":              "MONGO_DB_NAME",
}

// Load loads configuration from the specified file path and environment
// variables. Environment variables override file values and should be
// prefixed with ACQUISITION_ (e.g., ACQUISITION_SERVER_PORT=3000); the
// canonical platform variables (REDIS_HOST, REDIS_KEY, UPDATE_CHECK_PROXY_URL,
// UPDATECHECK_MEM_TTL_MS, DIFFPACKAGE_MEM_TTL_MS, MONGO_URI, MONGO_DB_NAME)
// are bound explicitly and work unprefixed.
//
// Returns an error if the configuration file cannot be read or parsed.
//
// Example:
//
//	cfg, err := config.Load("config/config.yaml")
//	if err != nil {
//	    return fmt.Errorf("failed to load config: %w", err)
//	}
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default configuration file locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/otapush")
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("ACQUISITION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range platformEnvBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Set defaults
	setDefaults(v)

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		// Config file is optional if all values come from env vars
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// REDIS_KEY is how the hosted platform hands out authenticated
	// endpoints, and those only accept TLS connections.
	if os.Getenv("REDIS_KEY") != "" {
		cfg.Redis.EnableTLS = true
	}

	return &cfg, nil
}

// setDefaults sets default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_header_bytes", 1048576) // 1MB
	v.SetDefault("server.gin_mode", "release")

	// Redis defaults
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.ops_db", 0)
	v.SetDefault("redis.metrics_db", 1)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.response_ttl", "1h")
	v.SetDefault("redis.diff_map_ttl", "5m")
	v.SetDefault("redis.enable_tls", false)
	v.SetDefault("redis.invalidation_channel", "")

	// Storage defaults
	v.SetDefault("storage.backend", StorageBackendMemory)
	v.SetDefault("storage.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("storage.mongo_database", "otapush")
	v.SetDefault("storage.operation_timeout", "5s")

	// Acquisition defaults
	v.SetDefault("acquisition.proxy_url", "")
	v.SetDefault("acquisition.update_check_mem_ttl_ms", 30000)
	v.SetDefault("acquisition.diff_package_mem_ttl_ms", 300000)
	v.SetDefault("acquisition.dispatch_timeout", "10s")

	// Observability defaults
	v.SetDefault("observability.environment", "production")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.metrics.namespace", "otapush")
	v.SetDefault("observability.metrics.subsystem", "acquisition")

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests", 1000)
	v.SetDefault("rate_limit.window", "1m")
}

// Validate validates the configuration and returns an error if any values
// are invalid. This should be called after Load() to ensure the configuration
// is valid before use.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateRedis(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateAcquisition(); err != nil {
		return err
	}

	if err := c.validateObservability(); err != nil {
		return err
	}

	if err := c.validateRateLimit(); err != nil {
		return err
	}

	return nil
}

// validateServer validates the server configuration.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.GinMode != "debug" && c.Server.GinMode != "release" && c.Server.GinMode != "test" {
		return fmt.Errorf("invalid gin_mode: %s (must be debug, release, or test)", c.Server.GinMode)
	}

	return nil
}

// validateRedis validates the Redis configuration.
func (c *Config) validateRedis() error {
	// An unset host just disables the distributed cache
	if c.Redis.Host == "" {
		return nil
	}

	if c.Redis.Port == "" {
		return fmt.Errorf("redis port cannot be empty")
	}

	if c.Redis.OpsDB < 0 || c.Redis.OpsDB > 15 {
		return fmt.Errorf("invalid redis ops_db: %d (must be 0-15)", c.Redis.OpsDB)
	}

	if c.Redis.MetricsDB < 0 || c.Redis.MetricsDB > 15 {
		return fmt.Errorf("invalid redis metrics_db: %d (must be 0-15)", c.Redis.MetricsDB)
	}

	if c.Redis.OpsDB == c.Redis.MetricsDB {
		return fmt.Errorf("redis ops_db and metrics_db must differ (both %d)", c.Redis.OpsDB)
	}

	return nil
}

// validateStorage validates the storage configuration.
func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageBackendMemory:
		return nil
	case StorageBackendMongo:
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("storage mongo_uri is required for the mongo backend")
		}
		if c.Storage.MongoDatabase == "" {
			return fmt.Errorf("storage mongo_database is required for the mongo backend")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage backend: %s (must be %s or %s)",
			c.Storage.Backend, StorageBackendMemory, StorageBackendMongo)
	}
}

// validateAcquisition validates the update check configuration.
func (c *Config) validateAcquisition() error {
	if c.Acquisition.ProxyURL != "" {
		parsed, err := url.Parse(c.Acquisition.ProxyURL)
		if err != nil {
			return fmt.Errorf("invalid acquisition proxy_url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid acquisition proxy_url: %s (must include scheme and host)", c.Acquisition.ProxyURL)
		}
	}

	if c.Acquisition.UpdateCheckMemTTLMS < 0 {
		return fmt.Errorf("invalid update_check_mem_ttl_ms: %d (must be >= 0)", c.Acquisition.UpdateCheckMemTTLMS)
	}

	if c.Acquisition.DiffPackageMemTTLMS < 0 {
		return fmt.Errorf("invalid diff_package_mem_ttl_ms: %d (must be >= 0)", c.Acquisition.DiffPackageMemTTLMS)
	}

	return nil
}

// validateObservability validates the observability configuration.
func (c *Config) validateObservability() error {
	validEnvs := map[string]bool{
		"development": true, "test": true, "staging": true, "production": true,
	}
	if !validEnvs[c.Observability.Environment] {
		return fmt.Errorf("invalid observability environment: %s", c.Observability.Environment)
	}

	if c.Observability.Metrics.Enabled && c.Observability.Metrics.Path == "" {
		return fmt.Errorf("metrics path cannot be empty when metrics are enabled")
	}

	return nil
}

// validateRateLimit validates the rate limiting configuration.
func (c *Config) validateRateLimit() error {
	if !c.RateLimit.Enabled {
		return nil
	}

	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("invalid rate_limit requests: %d (must be > 0)", c.RateLimit.Requests)
	}

	if c.RateLimit.Window < time.Second {
		return fmt.Errorf("invalid rate_limit window: %s (must be >= 1s)", c.RateLimit.Window)
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("rate limiting requires a configured redis host")
	}

	return nil
}
