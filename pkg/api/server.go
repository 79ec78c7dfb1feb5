package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/httputil"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/observability"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/pgpool"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/reconciler"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/registry"
)

// Reconciler converges database permissions for one request.
// *reconciler.PermissionReconciler implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, req reconciler.Request) (*reconciler.Result, error)
	ExistingIdentities(ctx context.Context, target pgpool.Target) ([]string, error)
}

// RoleInitializer creates or refreshes managed roles for one database.
// *reconciler.Initializer implements it.
type RoleInitializer interface {
	Initialize(ctx context.Context, req reconciler.InitializeRequest) (*reconciler.InitializeResult, error)
}

// RegistryReader exposes registry records and history.
// *registry.Client implements it.
type RegistryReader interface {
	Get(ctx context.Context, project, instance, database string) (*registry.Record, error)
	History(ctx context.Context, project, instance, database string) ([]registry.HistoryEntry, error)
}

// PoolStatser reports the state of all connection pools.
// *pgpool.Manager implements it.
type PoolStatser interface {
	Stats() map[string]pgpool.Stats
}

// Server represents the API server
type Server struct {
	router      *mux.Router
	reconciler  Reconciler
	initializer RoleInitializer
	registry    RegistryReader
	pools       PoolStatser
	metrics     *observability.Metrics
	log         *logrus.Logger

	maxBytes       int64
	requestTimeout time.Duration
}

// Option customizes the server.
type Option func(*Server)

// WithMetrics attaches metrics recording to the server.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRequestLimits overrides the request body limit and handler timeout.
func WithRequestLimits(maxBytes int64, timeout time.Duration) Option {
	return func(s *Server) {
		s.maxBytes = maxBytes
		s.requestTimeout = timeout
	}
}

// NewServer creates a new API server
func NewServer(rec Reconciler, init RoleInitializer, reg RegistryReader, pools PoolStatser, log *logrus.Logger, opts ...Option) *Server {
	if log == nil {
		log = logrus.New()
	}

	s := &Server{
		router:         mux.NewRouter(),
		reconciler:     rec,
		initializer:    init,
		registry:       reg,
		pools:          pools,
		log:            log,
		maxBytes:       1 << 20,
		requestTimeout: 10 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Reconciliation routes
	s.router.HandleFunc("/v1/permissions/reconcile", s.reconcilePermissions).Methods("POST")
	s.router.HandleFunc("/v1/pubsub/push", s.handlePubSubPush).Methods("POST")
	s.router.HandleFunc("/v1/identities", s.listIdentities).Methods("GET")

	// Role routes
	s.router.HandleFunc("/v1/roles/initialize", s.initializeRoles).Methods("POST")
	s.router.HandleFunc("/v1/roles", s.listRoleDefinitions).Methods("GET")

	// Registry routes
	s.router.HandleFunc("/v1/registry/{project}/{instance}/{database}", s.getRegistryRecord).Methods("GET")
	s.router.HandleFunc("/v1/registry/{project}/{instance}/{database}/history", s.getRegistryHistory).Methods("GET")

	// Operational routes
	s.router.HandleFunc("/v1/pools", s.poolStats).Methods("GET")
}

// Handler returns the fully middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.log),
		httputil.RecoveryMiddleware(s.log),
		httputil.TimeoutMiddleware(s.requestTimeout),
		httputil.MaxBytesMiddleware(s.maxBytes),
	}
	if s.metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(s.metrics))
	}
	return httputil.Chain(s.router, middlewares...)
}

// poolStats reports the state of every connection pool.
func (s *Server) poolStats(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		httputil.WriteSuccess(w, map[string]pgpool.Stats{})
		return
	}

	stats := s.pools.Stats()
	if s.metrics != nil {
		for key, st := range stats {
			s.metrics.SetPoolStats(key, st.Created, st.Idle)
		}
	}
	httputil.WriteSuccess(w, stats)
}
