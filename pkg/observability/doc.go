// Package observability provides structured logging, Prometheus metrics, and health checks.
//
// # Overview
//
// This package centralizes observability infrastructure including JSON logging,
// metrics collection, health probes, and graceful shutdown coordination.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger("info", "json", os.Stdout)
//	logger.WithField("database", db).Info("Reconciliation complete")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveReconcile("converged", elapsed, processed, revoked, 0, 0, 0)
//
// Pool gauges:
//
//	for key, stats := range pools.Stats() {
//		metrics.SetPoolStats(key, stats.Created, stats.Idle)
//	}
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(registryClient, poolManager)
//	status := checker.Check(ctx)
//	fmt.Printf("Status: %s\n", status.Status)
//
// Database pools are created lazily, so readiness reports pool sizes without
// dialing PostgreSQL. A down registry degrades readiness instead of failing it.
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
