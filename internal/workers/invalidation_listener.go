// Package workers provides background workers that keep a running instance
// in sync with the management surface.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/otapush/acquisition/internal/cache"
)

// invalidateTimeout bounds the Redis delete triggered by one invalidation
// message.
const invalidateTimeout = 5 * time.Second

// InvalidationListener drops cached update-check responses when the
// management surface announces a changed deployment. Each message on the
// subscribed channel carries one deployment key; the listener deletes that
// deployment's distributed response entry. In-process cache entries are not
// touched, they expire on their own short TTL.
type InvalidationListener struct {
	cacheManager *cache.Manager
	channel      string
	logger       *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// InvalidationListenerConfig configures the invalidation listener.
type InvalidationListenerConfig struct {
	// CacheManager provides the subscribing client and entry deletion.
	CacheManager *cache.Manager

	// Channel overrides the pub/sub channel. Empty selects
	// cache.DefaultInvalidationChannel.
	Channel string

	// Logger provides structured logging.
	Logger *zap.Logger
}

// NewInvalidationListener creates a new cache invalidation listener.
func NewInvalidationListener(cfg *InvalidationListenerConfig) (*InvalidationListener, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.CacheManager == nil {
		return nil, fmt.Errorf("cache manager cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	channel := cfg.Channel
	if channel == "" {
		channel = cache.DefaultInvalidationChannel
	}

	return &InvalidationListener{
		cacheManager: cfg.CacheManager,
		channel:      channel,
		logger:       cfg.Logger,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start subscribes to the invalidation channel and processes messages until
// ctx is canceled. With a disabled cache manager there is nothing to
// invalidate, so Start just waits for cancellation.
func (l *InvalidationListener) Start(ctx context.Context) error {
	if !l.cacheManager.Enabled() {
		l.logger.Info("distributed cache disabled, invalidation listener idle")
		<-ctx.Done()
		return l.Stop()
	}

	pubsub := l.cacheManager.OpsClient().Subscribe(ctx, l.channel)

	// Confirm the subscription before reporting started.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to invalidation channel: %w", err)
	}

	l.mu.Lock()
	l.pubsub = pubsub
	l.mu.Unlock()

	l.logger.Info("invalidation listener started",
		zap.String("channel", l.channel))

	l.wg.Add(1)
	go l.consume(pubsub.Channel())

	// Wait for context cancellation
	<-ctx.Done()

	return l.Stop()
}

// Stop stops the listener and waits for the consumer goroutine to finish.
// Safe to call more than once.
func (l *InvalidationListener) Stop() error {
	l.stopOnce.Do(func() {
		l.logger.Info("stopping invalidation listener")

		close(l.stopCh)

		l.mu.Lock()
		if l.pubsub != nil {
			_ = l.pubsub.Close()
		}
		l.mu.Unlock()
	})

	l.wg.Wait()
	return nil
}

// consume drains invalidation messages until the subscription closes or the
// listener stops.
func (l *InvalidationListener) consume(messages <-chan *redis.Message) {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopCh:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			l.handleMessage(msg.Payload)
		}
	}
}

// handleMessage deletes the response-cache entry of the deployment named in
// one message payload.
func (l *InvalidationListener) handleMessage(deploymentKey string) {
	if deploymentKey == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()

	if err := l.cacheManager.InvalidateCache(ctx, cache.DeploymentKeyHash(deploymentKey)); err != nil {
		CacheInvalidationsTotal.WithLabelValues(invalidationError).Inc()
		l.logger.Error("failed to invalidate cached responses",
			zap.String("deployment_key", deploymentKey),
			zap.Error(err))
		return
	}

	CacheInvalidationsTotal.WithLabelValues(invalidationOK).Inc()
	l.logger.Info("invalidated cached responses",
		zap.String("deployment_key", deploymentKey))
}
