package acquisition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Update check outcome labels.
	outcomeUpdate   = "update"
	outcomeNoUpdate = "no_update"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"

	// Cache lookup tier and result labels.
	tierMemory      = "memory"
	tierDistributed = "distributed"
	resultHit       = "hit"
	resultMiss      = "miss"
	resultError     = "error"

	// Status report kind and route labels.
	kindDeploy      = "deploy"
	kindDownload    = "download"
	pathNewRoute    = "new"
	pathLegacyRoute = "legacy"
)

var (
	// updateChecksTotal tracks the total number of update check requests by outcome.
	updateChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otapush_update_checks_total",
			Help: "Total number of update check requests by outcome",
		},
		[]string{"outcome"},
	)

	// cacheLookupsTotal tracks update check cache lookups per tier.
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otapush_cache_lookups_total",
			Help: "Total number of update check cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	// statusReportsTotal tracks accepted deployment and download status reports.
	statusReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otapush_status_reports_total",
			Help: "Total number of accepted status reports by kind and route generation",
		},
		[]string{"kind", "route"},
	)

	// dispatchFailuresTotal tracks background tasks that failed or panicked.
	dispatchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otapush_dispatch_failures_total",
			Help: "Total number of failed background cache and metrics tasks",
		},
		[]string{"op"},
	)
)
