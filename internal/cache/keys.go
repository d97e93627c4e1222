package cache

import (
	"net/url"

	"github.com/otapush/acquisition/internal/appversion"
)

const (
	// CacheSchemaVersion is embedded in every update-check cache key.
	// Bumping it abandons all previously written response entries at once.
	CacheSchemaVersion = "v2"

	// Redis key prefixes
	deploymentKeyPrefix  = "deploymentKey:"
	diffPackageMapPrefix = "diffPackageMap:"

	// DefaultInvalidationChannel is the pub/sub channel on which the
	// management surface announces deployment keys whose cached
	// responses must be dropped.
	DefaultInvalidationChannel = "acquisition:cache:invalidate"
)

// ignoredQueryFields are per-client request fields that do not change the
// cacheable portion of an update-check response. Both naming families are
// dropped so equivalent requests collapse onto one cache entry.
var ignoredQueryFields = []string{
	"clientUniqueId",
	"client_unique_id",
	"beta",
	"packageHash",
	"package_hash",
	"label",
}

// DeploymentKeyHash returns the Redis key of the hash holding cached
// update-check responses for one deployment.
func DeploymentKeyHash(deploymentKey string) string {
	return deploymentKeyPrefix + deploymentKey
}

// DiffPackageMapKey returns the Redis key caching the diff package map of
// one release within a deployment.
func DiffPackageMapKey(deploymentKey, packageHash string) string {
	return diffPackageMapPrefix + deploymentKey + ":" + packageHash
}

// DiffMemKey returns the in-process cache key for a diff package map.
func DiffMemKey(deploymentKey, packageHash string) string {
	return deploymentKey + ":" + packageHash
}

// UpdateCheckMemKey joins the distributed hash key and field into the
// in-process cache key for a full update-check response.
func UpdateCheckMemKey(hashKey, urlKey string) string {
	return hashKey + "|" + urlKey
}

// BuildUpdateCheckKey canonicalizes an update-check request URL into the
// hash field used by the distributed response cache. Per-client fields
// are dropped, the app version is normalized, and the query is re-encoded
// in sorted order, so the key is a pure function of the cache-relevant
// request inputs.
func BuildUpdateCheckKey(u *url.URL) string {
	q := u.Query()
	for _, field := range ignoredQueryFields {
		q.Del(field)
	}
	if v := q.Get("appVersion"); v != "" {
		q.Set("appVersion", appversion.Normalize(v))
	}
	if v := q.Get("app_version"); v != "" {
		q.Set("app_version", appversion.Normalize(v))
	}
	q.Set("__cacheSchema", CacheSchemaVersion)
	return u.Path + "?" + q.Encode()
}
