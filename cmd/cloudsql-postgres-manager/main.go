package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/api"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/config"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/observability"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/pgpool"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/reconciler"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/registry"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/roles"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/schema"
	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/secrets"
)

func main() {
	cfg := config.LoadConfig()
	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	ctx := context.Background()

	// Credential provider for admin connections.
	var creds secrets.Provider
	switch cfg.Secrets.Backend {
	case "static":
		creds = &secrets.StaticProvider{Password: cfg.Secrets.StaticPassword}
	default:
		provider, err := secrets.NewSecretsManagerProvider(ctx, cfg.Secrets.SecretPrefix)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize secrets provider")
		}
		creds = provider
	}

	// One bounded pool per target database, created lazily.
	connector := pgpool.NewConnector(pgpool.ConnectorConfig{
		AdminUser:      cfg.Pool.AdminUser,
		SocketDir:      cfg.Pool.SocketDir,
		ConnectTimeout: cfg.Pool.ConnectTimeout,
	}, creds, log)
	pools := pgpool.NewManager(connector, pgpool.Config{
		MaxSize:     cfg.Pool.MaxSize,
		MaxOverflow: cfg.Pool.MaxOverflow,
		Timeout:     cfg.Pool.AcquireTimeout,
	}, log)
	if err := pools.StartSweeper(cfg.Pool.SweepSchedule); err != nil {
		log.WithError(err).Fatal("Invalid pool sweep schedule")
	}

	// Role registry backed by Redis.
	registryClient, err := registry.NewClient(cfg.Registry.RedisURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to role registry")
	}

	// Role definition providers: standard roles always, plus an optional
	// YAML catalog.
	if err := roles.Register(roles.NewStandardProvider()); err != nil {
		log.WithError(err).Fatal("Failed to register standard role provider")
	}
	if cfg.Roles.CatalogPath != "" {
		newProvider := roles.NewStaticFileProvider
		if cfg.Roles.WatchCatalog {
			newProvider = roles.NewFileProvider
		}
		provider, err := newProvider(cfg.Roles.CatalogPath, log)
		if err != nil {
			log.WithError(err).WithField("path", cfg.Roles.CatalogPath).
				Fatal("Failed to load role catalog")
		}
		if err := roles.Register(provider); err != nil {
			log.WithError(err).Fatal("Failed to register role catalog provider")
		}
	}

	schemas := schema.NewManager(cfg.Pool.AdminUser, log)
	permissions := reconciler.NewPermissionReconciler(pools, schemas, cfg.Pool.AdminUser, log)
	initializer := reconciler.NewInitializer(pools, registryClient, log)

	// Metrics and health endpoints live on a separate listener so they are
	// never exposed alongside the reconciliation API.
	promRegistry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	serverOpts := []api.Option{
		api.WithRequestLimits(cfg.Server.MaxRequestBytes, cfg.Server.WriteTimeout),
	}
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(promRegistry)
		serverOpts = append(serverOpts, api.WithMetrics(metrics))
	}

	server := api.NewServer(permissions, initializer, registryClient, pools, log, serverOpts...)

	mainSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(registryClient, pools)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, promRegistry)
	}
	healthSrv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	var group errgroup.Group
	group.Go(func() error {
		log.WithField("addr", mainSrv.Addr).Info("Starting API server")
		if err := mainSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		log.WithField("addr", healthSrv.Addr).Info("Starting health server")
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	shutdown := observability.NewShutdownManager(log, mainSrv, cfg.Server.ShutdownTimeout)
	shutdown.OnShutdown("health server", func(ctx context.Context) error {
		return healthSrv.Shutdown(ctx)
	})
	shutdown.OnShutdown("connection pools", func(context.Context) error {
		pools.CloseAll()
		return nil
	})
	shutdown.OnShutdown("registry client", func(context.Context) error {
		return registryClient.Close()
	})

	group.Go(shutdown.WaitForShutdown)

	if err := group.Wait(); err != nil {
		log.WithError(err).Fatal("Service terminated")
	}
	log.Info("Service stopped")
}
