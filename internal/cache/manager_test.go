package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otapush/acquisition/internal/cache"
	"github.com/otapush/acquisition/internal/models"
)

func newTestManager(t *testing.T) (*cache.Manager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Host = mr.Host()
	cfg.Port = mr.Port()

	m := cache.NewManager(cfg, nil)
	require.True(t, m.Enabled())
	t.Cleanup(func() { _ = m.Close() })
	return m, mr
}

func sampleResponse() *models.CacheableResponse {
	rollout := 50
	return &models.CacheableResponse{
		StatusCode: 200,
		Body: models.CacheableBody{
			Releases: []models.Release{
				{
					Label:       "v2",
					AppVersion:  "1.0.0",
					PackageHash: "H2",
					BlobURL:     "https://blob.example.com/h2",
					Size:        1024,
					Rollout:     &rollout,
				},
				{
					Label:       "v1",
					AppVersion:  "1.0.0",
					PackageHash: "H1",
					BlobURL:     "https://blob.example.com/h1",
					Size:        512,
					IsMandatory: true,
				},
			},
		},
	}
}

func TestManagerDisabled(t *testing.T) {
	m := cache.NewManager(cache.DefaultConfig(), nil)
	ctx := context.Background()

	assert.False(t, m.Enabled())
	assert.NoError(t, m.Ping(ctx))

	got, err := m.GetCachedResponse(ctx, "deploymentKey:ABC", "fieldA")
	assert.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, m.SetCachedResponse(ctx, "deploymentKey:ABC", "fieldA", sampleResponse()))
	assert.NoError(t, m.InvalidateCache(ctx, "deploymentKey:ABC"))

	diff, err := m.GetDiffPackageMap(ctx, "ABC", "H1")
	assert.NoError(t, err)
	assert.Nil(t, diff)

	assert.NoError(t, m.SetDiffPackageMap(ctx, "ABC", "H1", map[string]models.DiffInfo{"H0": {Size: 10, URL: "u"}}))
	assert.NoError(t, m.Close())
}

func TestCachedResponseRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	hashKey := cache.DeploymentKeyHash("ABC")
	urlKey := "/updateCheck?__cacheSchema=v2&appVersion=1.0.0&deploymentKey=ABC"

	got, err := m.GetCachedResponse(ctx, hashKey, urlKey)
	require.NoError(t, err)
	assert.Nil(t, got, "empty cache should miss")

	want := sampleResponse()
	require.NoError(t, m.SetCachedResponse(ctx, hashKey, urlKey, want))

	got, err = m.GetCachedResponse(ctx, hashKey, urlKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, got)
}

func TestSetCachedResponseTTLOnFirstWriteOnly(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	hashKey := cache.DeploymentKeyHash("ABC")
	require.NoError(t, m.SetCachedResponse(ctx, hashKey, "fieldA", sampleResponse()))
	assert.Equal(t, time.Hour, m.OpsClient().TTL(ctx, hashKey).Val())

	mr.FastForward(30 * time.Minute)

	require.NoError(t, m.SetCachedResponse(ctx, hashKey, "fieldB", sampleResponse()))
	assert.Equal(t, 30*time.Minute, m.OpsClient().TTL(ctx, hashKey).Val(),
		"second write must not extend the TTL")
}

func TestInvalidateCache(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	hashKey := cache.DeploymentKeyHash("ABC")
	require.NoError(t, m.SetCachedResponse(ctx, hashKey, "fieldA", sampleResponse()))
	require.NoError(t, m.InvalidateCache(ctx, hashKey))

	got, err := m.GetCachedResponse(ctx, hashKey, "fieldA")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetCachedResponseCorruptEntry(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	hashKey := cache.DeploymentKeyHash("ABC")
	mr.HSet(hashKey, "fieldA", "{not json")

	got, err := m.GetCachedResponse(ctx, hashKey, "fieldA")
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestDiffPackageMapRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	got, err := m.GetDiffPackageMap(ctx, "ABC", "H2")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := map[string]models.DiffInfo{
		"H1": {Size: 128, URL: "https://blob.example.com/diff-h1-h2"},
	}
	require.NoError(t, m.SetDiffPackageMap(ctx, "ABC", "H2", want))

	got, err = m.GetDiffPackageMap(ctx, "ABC", "H2")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ttl := m.OpsClient().TTL(ctx, cache.DiffPackageMapKey("ABC", "H2")).Val()
	assert.Equal(t, 5*time.Minute, ttl)
}

func TestSetDiffPackageMapSkipsEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetDiffPackageMap(ctx, "ABC", "H2", nil))
	exists := m.OpsClient().Exists(ctx, cache.DiffPackageMapKey("ABC", "H2")).Val()
	assert.Zero(t, exists)
}

func TestManagerPing(t *testing.T) {
	m, _ := newTestManager(t)
	assert.NoError(t, m.Ping(context.Background()))
}

func TestReadErrorsAreSurfacedToCaller(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := cache.NewManagerWithClients(db, db, cache.DefaultConfig(), nil)

	mock.ExpectHGet("deploymentKey:ABC", "fieldA").SetErr(errors.New("connection reset"))

	got, err := m.GetCachedResponse(context.Background(), "deploymentKey:ABC", "fieldA")
	assert.Error(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteErrorsAreSurfacedToCaller(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := cache.NewManagerWithClients(db, db, cache.DefaultConfig(), nil)

	mock.ExpectExists("deploymentKey:ABC").SetErr(errors.New("connection reset"))

	err := m.SetCachedResponse(context.Background(), "deploymentKey:ABC", "fieldA", sampleResponse())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
