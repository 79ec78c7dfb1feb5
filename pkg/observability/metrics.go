package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Reconciliation metrics
	ReconcilesTotal     *prometheus.CounterVec
	ReconcileDuration   *prometheus.HistogramVec
	IdentitiesProcessed prometheus.Counter
	PermissionsRevoked  prometheus.Counter
	MissingIdentities   prometheus.Counter
	GrantFailuresTotal  prometheus.Counter
	RevokeFailuresTotal prometheus.Counter

	// Role initialization metrics
	RoleInitsTotal   *prometheus.CounterVec
	RoleActionsTotal *prometheus.CounterVec
	RoleInitDuration *prometheus.HistogramVec

	// Connection pool metrics
	PoolConnectionsCreated *prometheus.GaugeVec
	PoolConnectionsIdle    *prometheus.GaugeVec
	PoolAcquireTimeouts    prometheus.Counter

	// Registry metrics
	RegistryOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Reconciliation metrics
		ReconcilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgm_reconciles_total",
				Help: "Total number of permission reconciliations by outcome",
			},
			[]string{"status"},
		),
		ReconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgm_reconcile_duration_seconds",
				Help:    "Permission reconciliation duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		IdentitiesProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pgm_identities_processed_total",
				Help: "Total number of IAM identities granted during reconciliation",
			},
		),
		PermissionsRevoked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pgm_permissions_revoked_total",
				Help: "Total number of IAM identities fully revoked during reconciliation",
			},
		),
		MissingIdentities: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pgm_missing_identities_total",
				Help: "Total number of requested identities absent from the database",
			},
		),
		GrantFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pgm_grant_failures_total",
				Help: "Total number of per-identity grant failures",
			},
		),
		RevokeFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pgm_revoke_failures_total",
				Help: "Total number of per-identity revoke failures",
			},
		),

		// Role initialization metrics
		RoleInitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgm_role_inits_total",
				Help: "Total number of role initialization runs by outcome",
			},
			[]string{"status"},
		),
		RoleActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgm_role_actions_total",
				Help: "Total number of per-role initialization actions",
			},
			[]string{"action"},
		),
		RoleInitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgm_role_init_duration_seconds",
				Help:    "Role initialization duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		// Connection pool metrics
		PoolConnectionsCreated: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgm_pool_connections_created",
				Help: "Number of live connections per pool",
			},
			[]string{"pool"},
		),
		PoolConnectionsIdle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgm_pool_connections_idle",
				Help: "Number of idle connections per pool",
			},
			[]string{"pool"},
		),
		PoolAcquireTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pgm_pool_acquire_timeouts_total",
				Help: "Total number of pool acquisitions that timed out",
			},
		),

		// Registry metrics
		RegistryOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgm_registry_operations_total",
				Help: "Total number of role registry operations",
			},
			[]string{"operation", "status"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReconcilesTotal,
		m.ReconcileDuration,
		m.IdentitiesProcessed,
		m.PermissionsRevoked,
		m.MissingIdentities,
		m.GrantFailuresTotal,
		m.RevokeFailuresTotal,
		m.RoleInitsTotal,
		m.RoleActionsTotal,
		m.RoleInitDuration,
		m.PoolConnectionsCreated,
		m.PoolConnectionsIdle,
		m.PoolAcquireTimeouts,
		m.RegistryOperationsTotal,
	)

	return m
}

// ObserveReconcile records the outcome of a completed reconciliation.
func (m *Metrics) ObserveReconcile(status string, duration time.Duration, processed, revoked, missing, grantErrs, revokeErrs int) {
	m.ReconcilesTotal.WithLabelValues(status).Inc()
	m.ReconcileDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.IdentitiesProcessed.Add(float64(processed))
	m.PermissionsRevoked.Add(float64(revoked))
	m.MissingIdentities.Add(float64(missing))
	m.GrantFailuresTotal.Add(float64(grantErrs))
	m.RevokeFailuresTotal.Add(float64(revokeErrs))
}

// ObserveRoleInit records the outcome of a completed role initialization run.
func (m *Metrics) ObserveRoleInit(status string, duration time.Duration, created, updated, skipped, failed int) {
	m.RoleInitsTotal.WithLabelValues(status).Inc()
	m.RoleInitDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.RoleActionsTotal.WithLabelValues("created").Add(float64(created))
	m.RoleActionsTotal.WithLabelValues("updated").Add(float64(updated))
	m.RoleActionsTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.RoleActionsTotal.WithLabelValues("failed").Add(float64(failed))
}

// SetPoolStats records the current size of a single connection pool.
func (m *Metrics) SetPoolStats(poolKey string, created, idle int) {
	m.PoolConnectionsCreated.WithLabelValues(poolKey).Set(float64(created))
	m.PoolConnectionsIdle.WithLabelValues(poolKey).Set(float64(idle))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
