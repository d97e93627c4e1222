package observability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
	// StatusDegraded indicates the component is degraded but functional.
	StatusDegraded HealthStatus = "degraded"
)

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) error

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthResponse represents the overall health check response.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthChecker manages health and readiness checks.
type HealthChecker struct {
	mu              sync.RWMutex
	HealthChecks    map[string]HealthCheck // Exported for testing
	ReadinessChecks map[string]HealthCheck // Exported for testing
	Version         string                 // Exported for testing
	Timeout         time.Duration          // Exported for testing
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		HealthChecks:    make(map[string]HealthCheck),
		ReadinessChecks: make(map[string]HealthCheck),
		Version:         version,
		Timeout:         5 * time.Second, // Default timeout
	}
}

// RegisterHealthCheck registers a health check for a component.
func (hc *HealthChecker) RegisterHealthCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.HealthChecks[name] = check
}

// RegisterReadinessCheck registers a readiness check for a component.
func (hc *HealthChecker) RegisterReadinessCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ReadinessChecks[name] = check
}

// SetTimeout sets the timeout for health checks.
func (hc *HealthChecker) SetTimeout(timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.Timeout = timeout
}

// CheckHealth performs all health checks and returns the health status.
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck, len(hc.HealthChecks))
	for name, check := range hc.HealthChecks {
		checks[name] = check
	}
	timeout := hc.Timeout
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := hc.ExecuteChecks(ctx, checks)

	// Determine overall status
	overallStatus := StatusHealthy
	for _, component := range components {
		if component.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		}
		if component.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return &HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Version:    hc.Version,
		Components: components,
	}
}

// CheckReadiness performs all readiness checks and returns the readiness status.
func (hc *HealthChecker) CheckReadiness(ctx context.Context) *ReadinessResponse {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck, len(hc.ReadinessChecks))
	for name, check := range hc.ReadinessChecks {
		checks[name] = check
	}
	timeout := hc.Timeout
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := hc.ExecuteChecks(ctx, checks)

	// Determine overall readiness - all components must be healthy
	ready := true
	for _, component := range components {
		if component.Status != StatusHealthy {
			ready = false
			break
		}
	}

	return &ReadinessResponse{
		Ready:      ready,
		Timestamp:  time.Now(),
		Components: components,
	}
}

// ExecuteChecks executes checks concurrently. Exported for testing.
func (hc *HealthChecker) ExecuteChecks(ctx context.Context, checks map[string]HealthCheck) map[string]ComponentHealth {
	components := make(map[string]ComponentHealth)
	if len(checks) == 0 {
		return components
	}

	var wg sync.WaitGroup
	resultChan := make(chan struct {
		name   string
		health ComponentHealth
	}, len(checks))

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := check(ctx)
			latency := time.Since(start)

			health := ComponentHealth{
				Status:  StatusHealthy,
				Latency: latency.String(),
			}

			if err != nil {
				if ctx.Err() != nil {
					health.Status = StatusUnhealthy
					health.Error = "check timed out"
				} else {
					health.Status = StatusUnhealthy
					health.Error = err.Error()
				}
			}

			resultChan <- struct {
				name   string
				health ComponentHealth
			}{name: name, health: health}
		}(name, check)
	}

	// Close channel when all checks complete
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Collect results
	for result := range resultChan {
		components[result.name] = result.health
	}

	return components
}

// Common health check implementations

// StorageHealthCheck creates a health check for the release history store.
func StorageHealthCheck(checkFunc func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) error {
		if checkFunc == nil {
			return fmt.Errorf("storage health function not provided")
		}
		return checkFunc(ctx)
	}
}

// CacheHealthCheck creates a health check for the Redis cache.
func CacheHealthCheck(pingFunc func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) error {
		if pingFunc == nil {
			return fmt.Errorf("cache ping function not provided")
		}
		return pingFunc(ctx)
	}
}
