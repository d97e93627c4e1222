package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/otapush/acquisition/internal/cache"
	"github.com/otapush/acquisition/internal/config"
	"github.com/otapush/acquisition/internal/metrics"
	"github.com/otapush/acquisition/internal/models"
	"github.com/otapush/acquisition/internal/storage"
)

// testConfig returns a minimal valid configuration for server tests.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			IdleTimeout:     30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxHeaderBytes:  1 << 20,
			GinMode:         "test",
		},
		Acquisition: config.AcquisitionConfig{
			UpdateCheckMemTTLMS: 30000,
			DiffPackageMemTTLMS: 300000,
			DispatchTimeout:     5 * time.Second,
		},
		Observability: config.ObservabilityConfig{
			Environment: "test",
			Metrics: config.MetricsConfig{
				Enabled:   true,
				Path:      "/metrics",
				Namespace: "otapush",
				Subsystem: "acquisition",
			},
		},
	}
}

// newTestServer builds a Server over in-memory storage and a
// miniredis-backed cache manager.
func newTestServer(t *testing.T) (*Server, *storage.MemoryStorage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Host = mr.Host()
	cacheCfg.Port = mr.Port()
	cacheManager := cache.NewManager(cacheCfg, zap.NewNop())
	t.Cleanup(func() { _ = cacheManager.Close() })

	store := storage.NewMemoryStorage()

	srv, err := New(testConfig(), zap.NewNop(), store, cacheManager, metrics.NewRedisStore(cacheManager.MetricsClient(), nil))
	require.NoError(t, err)
	return srv, store, mr
}

func TestNew_NilArguments(t *testing.T) {
	cfg := testConfig()
	store := storage.NewMemoryStorage()

	assert.Panics(t, func() {
		_, _ = New(nil, zap.NewNop(), store, nil, nil)
	})
	assert.Panics(t, func() {
		_, _ = New(cfg, nil, store, nil, nil)
	})
	assert.Panics(t, func() {
		_, _ = New(cfg, zap.NewNop(), nil, nil, nil)
	})
}

func TestNew_WithoutCacheAndMetrics(t *testing.T) {
	// A nil cache manager and metrics store run the service degraded,
	// answering straight from storage.
	srv, err := New(testConfig(), zap.NewNop(), storage.NewMemoryStorage(), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, srv)
	require.NotNil(t, srv.Router())
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Healthy", w.Body.String())
}

func TestHealthEndpoint_UnhealthyStorage(t *testing.T) {
	srv, err := New(testConfig(), zap.NewNop(), &brokenStorage{}, nil, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Unhealthy", w.Body.String())
}

// brokenStorage fails every operation.
type brokenStorage struct{}

func (b *brokenStorage) GetPackageHistory(_ context.Context, _ string) ([]models.Release, error) {
	return nil, storage.ErrStorageUnavailable
}

func (b *brokenStorage) Health(_ context.Context) error {
	return errors.New("connection refused")
}

func (b *brokenStorage) Close() error { return nil }

func TestReadinessEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)
	assert.Contains(t, w.Body.String(), "storage")
	assert.Contains(t, w.Body.String(), "redis")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRequestIDHeader(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestShutdown_Idempotent(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.SetHTTPServer(&http.Server{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, srv.ShutdownWithContext(ctx))
	// A second call must not redo the shutdown work or error.
	require.NoError(t, srv.ShutdownWithContext(ctx))
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.Router().GET("/panic", func(_ *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}
