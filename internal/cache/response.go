package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/otapush/acquisition/internal/models"
)

// GetCachedResponse returns the cached update-check response stored under
// hashKey/urlKey, or nil on a miss. Callers treat an error like a miss;
// a broken cache never fails an update check.
func (m *Manager) GetCachedResponse(ctx context.Context, hashKey, urlKey string) (*models.CacheableResponse, error) {
	if !m.Enabled() {
		return nil, nil
	}

	raw, err := m.ops.HGet(ctx, hashKey, urlKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached response: %w", err)
	}

	var resp models.CacheableResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return &resp, nil
}

// SetCachedResponse stores resp under hashKey/urlKey. The hash expires
// ResponseTTL after its first field is written; writing further fields to
// the same hash does not extend it.
func (m *Manager) SetCachedResponse(ctx context.Context, hashKey, urlKey string, resp *models.CacheableResponse) error {
	if !m.Enabled() || resp == nil {
		return nil
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode cacheable response: %w", err)
	}

	exists, err := m.ops.Exists(ctx, hashKey).Result()
	if err != nil {
		return fmt.Errorf("failed to check cache key: %w", err)
	}

	if err := m.ops.HSet(ctx, hashKey, urlKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to write cached response: %w", err)
	}

	if exists == 0 {
		if err := m.ops.Expire(ctx, hashKey, m.config.ResponseTTL).Err(); err != nil {
			return fmt.Errorf("failed to set cache expiry: %w", err)
		}
	}
	return nil
}

// InvalidateCache drops every cached response for the deployment behind
// hashKey.
func (m *Manager) InvalidateCache(ctx context.Context, hashKey string) error {
	if !m.Enabled() {
		return nil
	}
	if err := m.ops.Del(ctx, hashKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// GetDiffPackageMap returns the cached diff package map for one release,
// or nil on a miss.
func (m *Manager) GetDiffPackageMap(ctx context.Context, deploymentKey, packageHash string) (map[string]models.DiffInfo, error) {
	if !m.Enabled() {
		return nil, nil
	}

	raw, err := m.ops.Get(ctx, DiffPackageMapKey(deploymentKey, packageHash)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read diff package map: %w", err)
	}

	var diffMap map[string]models.DiffInfo
	if err := json.Unmarshal([]byte(raw), &diffMap); err != nil {
		return nil, fmt.Errorf("failed to decode diff package map: %w", err)
	}
	return diffMap, nil
}

// SetDiffPackageMap caches the diff package map of one release for
// DiffMapTTL. Empty maps are not written.
func (m *Manager) SetDiffPackageMap(ctx context.Context, deploymentKey, packageHash string, diffMap map[string]models.DiffInfo) error {
	if !m.Enabled() || len(diffMap) == 0 {
		return nil
	}

	payload, err := json.Marshal(diffMap)
	if err != nil {
		return fmt.Errorf("failed to encode diff package map: %w", err)
	}

	key := DiffPackageMapKey(deploymentKey, packageHash)
	if err := m.ops.Set(ctx, key, payload, m.config.DiffMapTTL).Err(); err != nil {
		return fmt.Errorf("failed to write diff package map: %w", err)
	}
	return nil
}
