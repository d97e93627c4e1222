// Package acquisition implements the client-facing endpoints of the OTA
// update service: the tiered update-check read path and the
// fire-and-forget status reporting pipeline.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/otapush/acquisition/internal/appversion"
	"github.com/otapush/acquisition/internal/cache"
	"github.com/otapush/acquisition/internal/metrics"
	"github.com/otapush/acquisition/internal/models"
	"github.com/otapush/acquisition/internal/selection"
	"github.com/otapush/acquisition/internal/storage"
)

// ErrMalformedRequest marks a request an SDK sent with missing or invalid
// fields. Handlers answer it with HTTP 400 and a plain-text message, the
// format the mobile SDKs expect.
var ErrMalformedRequest = errors.New("malformed request")

// Options configures the acquisition handler.
type Options struct {
	// UpdateCheckMemTTL is the in-process cache TTL for update-check
	// response bodies. Zero disables that tier.
	UpdateCheckMemTTL time.Duration

	// DiffPackageMemTTL is the in-process cache TTL for diff package
	// maps. Zero disables that tier.
	DiffPackageMemTTL time.Duration

	// ProxyURL, when set, replaces the scheme and host of every outgoing
	// download URL.
	ProxyURL string

	// DispatchTimeout bounds each asynchronous post-response operation.
	DispatchTimeout time.Duration
}

// DefaultOptions returns the handler defaults.
func DefaultOptions() Options {
	return Options{
		UpdateCheckMemTTL: 30 * time.Second,
		DiffPackageMemTTL: 5 * time.Minute,
		DispatchTimeout:   10 * time.Second,
	}
}

// Handler serves the acquisition API consumed by the mobile SDKs.
type Handler struct {
	Storage storage.Storage // Exported for testing
	Cache   *cache.Manager  // Exported for testing
	Metrics metrics.Store   // Exported for testing
	Logger  *zap.Logger     // Exported for testing

	responseCache *cache.Microcache[*models.CacheableResponse]
	diffCache     *cache.Microcache[map[string]models.DiffInfo]
	engine        *selection.Engine
	proxyURL      *url.URL
	dispatcher    *dispatcher
}

// NewHandler creates an acquisition Handler. A nil cache manager runs
// without the distributed tier and a nil metrics store records nothing.
func NewHandler(store storage.Storage, cacheManager *cache.Manager, metricsStore metrics.Store, opts Options, logger *zap.Logger) (*Handler, error) {
	if store == nil {
		panic("storage cannot be nil")
	}
	if cacheManager == nil {
		cacheManager = cache.NewManager(nil, logger)
	}
	if metricsStore == nil {
		metricsStore = metrics.NewNoopStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultOptions().DispatchTimeout
	}

	var proxyURL *url.URL
	if opts.ProxyURL != "" {
		parsed, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy url: %w", err)
		}
		proxyURL = parsed
	}

	return &Handler{
		Storage: store,
		Cache:   cacheManager,
		Metrics: metricsStore,
		Logger:  logger,

		responseCache: cache.NewMicrocache[*models.CacheableResponse](opts.UpdateCheckMemTTL),
		diffCache:     cache.NewMicrocache[map[string]models.DiffInfo](opts.DiffPackageMemTTL),
		engine:        selection.NewEngine(logger),
		proxyURL:      proxyURL,
		dispatcher:    newDispatcher(opts.DispatchTimeout, logger),
	}, nil
}

// Drain blocks until all dispatched post-response work finishes or ctx
// expires. Called during shutdown.
func (h *Handler) Drain(ctx context.Context) error {
	return h.dispatcher.Drain(ctx)
}

// UpdateCheck handles GET /updateCheck (legacy camelCase shape).
func (h *Handler) UpdateCheck(c *gin.Context) {
	h.updateCheck(c, false)
}

// UpdateCheckV1 handles GET /v0.1/public/codepush/update_check
// (snake_case shape).
func (h *Handler) UpdateCheckV1(c *gin.Context) {
	h.updateCheck(c, true)
}

// updateCheck implements the tiered read path: in-process cache, then
// distributed cache, then storage, with write-back after the response.
func (h *Handler) updateCheck(c *gin.Context, newAPI bool) {
	ctx := c.Request.Context()

	req, err := h.parseUpdateCheckRequest(c)
	if err != nil {
		updateChecksTotal.WithLabelValues(outcomeRejected).Inc()
		return // error response already sent
	}

	h.Logger.Debug("update check",
		zap.String("request_id", c.GetString("request_id")),
		zap.String("deployment_key", req.DeploymentKey),
		zap.String("app_version", req.AppVersion),
	)

	distributedKey := cache.DeploymentKeyHash(req.DeploymentKey)
	urlKey := cache.BuildUpdateCheckKey(c.Request.URL)
	memKey := cache.UpdateCheckMemKey(distributedKey, urlKey)

	selReq := selection.Request{
		ClientUniqueID:       req.ClientUniqueID,
		Beta:                 req.Beta,
		Label:                req.Label,
		PackageHash:          req.PackageHash,
		RawAppVersion:        req.AppVersion,
		NormalizedAppVersion: req.NormalizedAppVersion,
		IsCompanion:          req.IsCompanion,
	}
	fetchDiffMap := h.diffMapFetcher(ctx, req.DeploymentKey)

	// Tier 1: in-process cache.
	if body, ok := h.responseCache.Get(memKey); ok {
		cacheLookupsTotal.WithLabelValues(tierMemory, resultHit).Inc()
		h.sendUpdateCheckResponse(c, newAPI, body, selReq, fetchDiffMap)
		return
	}
	cacheLookupsTotal.WithLabelValues(tierMemory, resultMiss).Inc()

	// Tier 2: distributed cache. A failed read is a miss.
	body, err := h.Cache.GetCachedResponse(ctx, distributedKey, urlKey)
	switch {
	case err != nil:
		cacheLookupsTotal.WithLabelValues(tierDistributed, resultError).Inc()
		h.Logger.Warn("distributed cache read failed",
			zap.String("deployment_key", req.DeploymentKey),
			zap.Error(err),
		)
		body = nil
	case body != nil:
		cacheLookupsTotal.WithLabelValues(tierDistributed, resultHit).Inc()
	default:
		cacheLookupsTotal.WithLabelValues(tierDistributed, resultMiss).Inc()
	}
	fromDistributed := body != nil

	// Tier 3: storage.
	if body == nil {
		history, err := h.Storage.GetPackageHistory(ctx, req.DeploymentKey)
		if err != nil {
			if errors.Is(err, storage.ErrDeploymentNotFound) {
				updateChecksTotal.WithLabelValues(outcomeRejected).Inc()
				c.String(http.StatusNotFound, "deployment not found")
				return
			}

			updateChecksTotal.WithLabelValues(outcomeFailed).Inc()
			h.Logger.Error("failed to load package history",
				zap.String("deployment_key", req.DeploymentKey),
				zap.Error(err),
			)
			c.String(http.StatusInternalServerError, "internal server error")
			return
		}
		body = h.buildCacheableResponse(req, history)
	}

	h.sendUpdateCheckResponse(c, newAPI, body, selReq, fetchDiffMap)

	// Write-back happens strictly after the response went out, so clients
	// never wait on cache latency.
	h.responseCache.Set(memKey, body)
	if !fromDistributed {
		h.dispatcher.Go("cache response", func(ctx context.Context) error {
			return h.Cache.SetCachedResponse(ctx, distributedKey, urlKey, body)
		})
	}
}

// sendUpdateCheckResponse runs update selection over a cacheable body and
// writes the wire response for the requested API shape.
func (h *Handler) sendUpdateCheckResponse(c *gin.Context, newAPI bool, body *models.CacheableResponse, selReq selection.Request, fetchDiffMap selection.DiffMapFetcher) {
	info := h.engine.Select(body.Body.Releases, selReq, fetchDiffMap)

	if h.proxyURL != nil && info.DownloadURL != "" {
		rewritten, err := selection.RewriteDownloadURL(h.proxyURL, info.DownloadURL)
		if err != nil {
			h.Logger.Warn("failed to rewrite download url",
				zap.String("download_url", info.DownloadURL),
				zap.Error(err),
			)
		}
		info.DownloadURL = rewritten
	}

	if info.IsAvailable {
		updateChecksTotal.WithLabelValues(outcomeUpdate).Inc()
	} else {
		updateChecksTotal.WithLabelValues(outcomeNoUpdate).Inc()
	}

	status := body.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if newAPI {
		c.JSON(status, models.NewUpdateCheckResponse(info))
		return
	}
	c.JSON(status, models.NewLegacyUpdateCheckResponse(info))
}

// buildCacheableResponse filters a deployment's history down to the
// releases this binary version could ever receive and primes the diff-map
// caches for them. Per-client rollout and current-version checks happen
// later, at selection time, so the result is shareable across clients.
func (h *Handler) buildCacheableResponse(req *models.UpdateCheckRequest, history []models.Release) *models.CacheableResponse {
	releases := make([]models.Release, 0, len(history))
	for _, release := range history {
		if !req.IsCompanion && !appversion.Satisfies(req.NormalizedAppVersion, release.AppVersion) {
			continue
		}
		releases = append(releases, release)

		if len(release.DiffPackageMap) > 0 {
			h.primeDiffMap(req.DeploymentKey, release.PackageHash, release.DiffPackageMap)
		}
	}

	return &models.CacheableResponse{
		StatusCode: http.StatusOK,
		Body:       models.CacheableBody{Releases: releases},
	}
}

// primeDiffMap seeds both diff-map tiers so the fetch during finalization
// rarely has to miss.
func (h *Handler) primeDiffMap(deploymentKey, packageHash string, diffMap map[string]models.DiffInfo) {
	h.diffCache.Set(cache.DiffMemKey(deploymentKey, packageHash), diffMap)
	h.dispatcher.Go("cache diff map", func(ctx context.Context) error {
		return h.Cache.SetDiffPackageMap(ctx, deploymentKey, packageHash, diffMap)
	})
}

// diffMapFetcher returns the fetcher the selection engine uses to resolve
// a diff package map, memoizing distributed hits in the process-local
// tier.
func (h *Handler) diffMapFetcher(ctx context.Context, deploymentKey string) selection.DiffMapFetcher {
	return func(packageHash string) (map[string]models.DiffInfo, error) {
		memKey := cache.DiffMemKey(deploymentKey, packageHash)
		if diffMap, ok := h.diffCache.Get(memKey); ok {
			return diffMap, nil
		}

		diffMap, err := h.Cache.GetDiffPackageMap(ctx, deploymentKey, packageHash)
		if err != nil {
			return nil, err
		}
		if diffMap != nil {
			h.diffCache.Set(memKey, diffMap)
		}
		return diffMap, nil
	}
}
