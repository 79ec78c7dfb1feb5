package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/pgpool"
)

// RegistryPinger reports whether the role registry backend is reachable.
type RegistryPinger interface {
	Ping(ctx context.Context) error
}

// PoolStatser reports the current state of all connection pools.
type PoolStatser interface {
	Stats() map[string]pgpool.Stats
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	registry RegistryPinger
	pools    PoolStatser
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(registry RegistryPinger, pools PoolStatser) *HealthChecker {
	return &HealthChecker{
		registry: registry,
		pools:    pools,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
	Pools        map[string]pgpool.Stats     `json:"pools,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns a simple liveness probe (always returns 200 if server is running)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns a readiness probe (checks all dependencies)
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")

	// Return 503 if unhealthy, 200 if healthy or degraded
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// Check performs a comprehensive health check.
//
// Database pools are created lazily per reconciliation target, so readiness
// does not dial PostgreSQL; pool sizes are reported for inspection instead.
// A down registry degrades the service rather than failing it because
// permission reconciliation works without it.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.registry != nil {
		registryStatus := h.checkRegistry(ctx)
		status.Dependencies["registry"] = registryStatus
		if registryStatus.Status == StatusUnhealthy {
			status.Status = StatusDegraded
		}
	}

	if h.pools != nil {
		status.Pools = h.pools.Stats()
	}

	return status
}

// checkRegistry checks the Redis-backed role registry
func (h *HealthChecker) checkRegistry(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	err := h.registry.Ping(ctx)
	status.Latency = time.Since(start)

	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}

	return status
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
