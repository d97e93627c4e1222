// Package metrics tracks per-deployment install counters in Redis.
//
// Counters live in the metrics database of the shared cache store: one
// hash per deployment, keyed deploymentKeyLabels:<D> with one field per
// <label>:<status> pair, plus a deploymentKeyClients:<D> hash mapping
// each client to its currently active label. All writes are best effort;
// the store is not a source of truth for billing.
package metrics

import (
	"context"
	"errors"
)

// Deployment statuses reported by SDK clients.
const (
	// StatusDeploymentSucceeded marks a confirmed install of a release.
	StatusDeploymentSucceeded = "DeploymentSucceeded"

	// StatusDeploymentFailed marks an install the client rolled back.
	StatusDeploymentFailed = "DeploymentFailed"

	// StatusDownloaded marks a completed package download.
	StatusDownloaded = "Downloaded"

	// statusActive counts clients currently running a label. It is
	// maintained internally and is not a reportable status.
	statusActive = "Active"
)

const (
	// Redis key prefixes (metrics database)
	labelsKeyPrefix  = "deploymentKeyLabels:"
	clientsKeyPrefix = "deploymentKeyClients:"
)

// ErrInvalidStatus is returned when a report carries a status other than
// the recognized deployment statuses.
var ErrInvalidStatus = errors.New("invalid deployment status")

// IsValidStatus reports whether s is a recognized reportable status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusDeploymentSucceeded, StatusDeploymentFailed, StatusDownloaded:
		return true
	}
	return false
}

// LabelsKey returns the Redis key of the per-label counter hash for a
// deployment.
func LabelsKey(deploymentKey string) string {
	return labelsKeyPrefix + deploymentKey
}

// ClientsKey returns the Redis key of the active-label hash for a
// deployment.
func ClientsKey(deploymentKey string) string {
	return clientsKeyPrefix + deploymentKey
}

func statusField(label, status string) string {
	return label + ":" + status
}

// Store records deployment metrics reported by SDK clients.
type Store interface {
	// IncrementLabelStatusCount adds one to the counter for a label and
	// status within a deployment. The field is created on first use.
	IncrementLabelStatusCount(ctx context.Context, deploymentKey, label, status string) error

	// RecordUpdate marks a successful install of currentLabel on
	// currentDeploymentKey and, when both previous identifiers are set,
	// releases the client's claim on the previous label. All counter
	// changes apply in one transaction.
	RecordUpdate(ctx context.Context, currentDeploymentKey, currentLabel, previousDeploymentKey, previousLabel string) error

	// UpdateActiveAppForClient moves a client's active label to toLabel,
	// decrementing fromLabel's active count when given. Used by the
	// legacy reporting path, which tracks labels per client.
	UpdateActiveAppForClient(ctx context.Context, deploymentKey, clientID, toLabel, fromLabel string) error

	// GetCurrentActiveLabel returns the label a client last reported
	// as active, or "" when none is recorded.
	GetCurrentActiveLabel(ctx context.Context, deploymentKey, clientID string) (string, error)

	// RemoveDeploymentKeyClientActiveLabel forgets a client's active
	// label on a deployment.
	RemoveDeploymentKeyClientActiveLabel(ctx context.Context, deploymentKey, clientID string) error

	// GetMetrics returns every counter of a deployment keyed by
	// <label>:<status>. Fields that do not parse as integers are
	// skipped.
	GetMetrics(ctx context.Context, deploymentKey string) (map[string]int64, error)

	// ClearMetrics deletes all counters and active-label records of a
	// deployment.
	ClearMetrics(ctx context.Context, deploymentKey string) error
}

// NoopStore is the Store used when no cache backend is configured. Every
// operation succeeds without effect.
type NoopStore struct{}

// NewNoopStore returns a Store that records nothing.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (*NoopStore) IncrementLabelStatusCount(ctx context.Context, deploymentKey, label, status string) error {
	return nil
}

func (*NoopStore) RecordUpdate(ctx context.Context, currentDeploymentKey, currentLabel, previousDeploymentKey, previousLabel string) error {
	return nil
}

func (*NoopStore) UpdateActiveAppForClient(ctx context.Context, deploymentKey, clientID, toLabel, fromLabel string) error {
	return nil
}

func (*NoopStore) GetCurrentActiveLabel(ctx context.Context, deploymentKey, clientID string) (string, error) {
	return "", nil
}

func (*NoopStore) RemoveDeploymentKeyClientActiveLabel(ctx context.Context, deploymentKey, clientID string) error {
	return nil
}

func (*NoopStore) GetMetrics(ctx context.Context, deploymentKey string) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (*NoopStore) ClearMetrics(ctx context.Context, deploymentKey string) error {
	return nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*NoopStore)(nil)
)
