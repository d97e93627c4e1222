package main_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	main "github.com/otapush/acquisition/cmd/acquisition"
	"github.com/otapush/acquisition/internal/config"
	"github.com/otapush/acquisition/internal/metrics"
	"github.com/otapush/acquisition/internal/storage"
)

func TestInitializeStorage_Memory(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Backend: config.StorageBackendMemory,
		},
	}

	store, err := main.InitializeStorage(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, store)

	_, ok := store.(*storage.MemoryStorage)
	assert.True(t, ok, "memory backend should produce a MemoryStorage")

	assert.NoError(t, store.Close())
}

func TestInitializeStorage_UnknownBackend(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Backend: "cassandra",
		},
	}

	store, err := main.InitializeStorage(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestInitializeCache_Disabled(t *testing.T) {
	cfg := &config.Config{}

	manager, metricsStore, err := main.InitializeCache(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, manager)
	require.NotNil(t, metricsStore)

	assert.False(t, manager.Enabled())
	_, ok := metricsStore.(*metrics.NoopStore)
	assert.True(t, ok, "disabled cache should produce a NoopStore")

	assert.NoError(t, manager.Close())
}

func TestInitializeCache_Connected(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host:         mr.Host(),
			Port:         mr.Port(),
			OpsDB:        0,
			MetricsDB:    1,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		},
	}

	manager, metricsStore, err := main.InitializeCache(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, manager)
	require.NotNil(t, metricsStore)

	assert.True(t, manager.Enabled())

	// The metrics store must land on the metrics database.
	err = metricsStore.IncrementLabelStatusCount(context.Background(), "D1", "v1", metrics.StatusDownloaded)
	require.NoError(t, err)

	assert.Equal(t, "1", mr.DB(1).HGet(metrics.LabelsKey("D1"), "v1:Downloaded"))

	assert.NoError(t, manager.Close())
}

func TestInitializeCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addrHost, addrPort := mr.Host(), mr.Port()
	mr.Close()

	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host:        addrHost,
			Port:        addrPort,
			DialTimeout: 500 * time.Millisecond,
		},
	}

	manager, metricsStore, err := main.InitializeCache(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, manager)
	assert.Nil(t, metricsStore)
}
