package storage

import (
	"context"
	"sync"

	"github.com/otapush/acquisition/internal/models"
)

type memoryDeployment struct {
	name     string
	packages []models.Release
}

// MemoryStorage implements Storage using in-memory state. It backs local
// development and tests, where it is seeded through the mutators below.
type MemoryStorage struct {
	mu          sync.RWMutex
	deployments map[string]*memoryDeployment
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		deployments: make(map[string]*memoryDeployment),
	}
}

// GetPackageHistory returns a copy of the deployment's release history,
// oldest first.
func (s *MemoryStorage) GetPackageHistory(_ context.Context, deploymentKey string) ([]models.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dep, exists := s.deployments[deploymentKey]
	if !exists {
		return nil, ErrDeploymentNotFound
	}

	history := make([]models.Release, len(dep.packages))
	copy(history, dep.packages)
	return history, nil
}

// UpsertDeployment creates a deployment under key, or renames it when it
// already exists. The release history is kept.
func (s *MemoryStorage) UpsertDeployment(deploymentKey, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dep, exists := s.deployments[deploymentKey]; exists {
		dep.name = name
		return
	}
	s.deployments[deploymentKey] = &memoryDeployment{name: name}
}

// AddRelease appends a release to a deployment's history, creating the
// deployment when missing.
func (s *MemoryStorage) AddRelease(deploymentKey string, release models.Release) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dep, exists := s.deployments[deploymentKey]
	if !exists {
		dep = &memoryDeployment{}
		s.deployments[deploymentKey] = dep
	}
	dep.packages = append(dep.packages, release)
}

// ReplaceHistory swaps a deployment's entire release history, creating
// the deployment when missing.
func (s *MemoryStorage) ReplaceHistory(deploymentKey string, history []models.Release) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dep, exists := s.deployments[deploymentKey]
	if !exists {
		dep = &memoryDeployment{}
		s.deployments[deploymentKey] = dep
	}
	dep.packages = make([]models.Release, len(history))
	copy(dep.packages, history)
}

// Health always reports available.
func (s *MemoryStorage) Health(_ context.Context) error {
	return nil
}

// Close releases the stored state.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deployments = nil
	return nil
}
