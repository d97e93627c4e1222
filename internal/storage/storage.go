package storage

import (
	"context"
	"errors"

	"github.com/otapush/acquisition/internal/models"
)

// Common sentinel errors for storage operations.
var (
	// ErrDeploymentNotFound is returned when a deployment key is unknown.
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrStorageUnavailable is returned when the storage backend is unavailable.
	ErrStorageUnavailable = errors.New("storage backend unavailable")
)

// Storage serves the release histories that update checks are answered
// from. The management surface owns all writes; this service only reads.
// Implementations must be safe for concurrent use.
//
// Example usage:
//
//	store, err := NewMongoStorage(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	history, err := store.GetPackageHistory(ctx, "a1b2c3d4")
//	if errors.Is(err, ErrDeploymentNotFound) {
//	    // unknown deployment key
//	}
type Storage interface {
	// GetPackageHistory returns every release published to a deployment,
	// oldest first.
	// Returns ErrDeploymentNotFound if the deployment key is unknown.
	// The context is used for timeout and cancellation.
	GetPackageHistory(ctx context.Context, deploymentKey string) ([]models.Release, error)

	// Health checks if the storage backend is available.
	// Returns ErrStorageUnavailable if the backend cannot be reached.
	// The context is used for timeout and cancellation.
	Health(ctx context.Context) error

	// Close closes the storage connection and releases resources.
	// After calling Close, the storage should not be used.
	Close() error
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*MongoStorage)(nil)
)
