package workers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Invalidation result labels.
	invalidationOK    = "ok"
	invalidationError = "error"
)

var (
	// CacheInvalidationsTotal tracks the total number of processed cache
	// invalidation messages.
	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otapush_cache_invalidations_total",
			Help: "Total number of processed cache invalidation messages",
		},
		[]string{"result"},
	)
)
