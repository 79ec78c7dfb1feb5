// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. All variables are prefixed with PGM_.
//
// # Configuration Structure
//
// Server settings:
//
//	PGM_SERVER_HOST="0.0.0.0"
//	PGM_SERVER_PORT="8080"
//	PGM_HEALTH_PORT="8081"
//	PGM_SERVER_READ_TIMEOUT="30s"
//	PGM_SERVER_WRITE_TIMEOUT="60s"
//	PGM_SERVER_SHUTDOWN_TIMEOUT="30s"
//
// Connection pool settings:
//
//	PGM_POOL_MAX_SIZE="2"
//	PGM_POOL_MAX_OVERFLOW="2"
//	PGM_POOL_ACQUIRE_TIMEOUT="30s"
//	PGM_POOL_SWEEP_SCHEDULE="*/10 * * * *"
//	PGM_POOL_SOCKET_DIR="/cloudsql"
//	PGM_POOL_ADMIN_USER="postgres"
//
// Registry and secrets settings:
//
//	PGM_REGISTRY_REDIS_URL="redis://localhost:6379/0"
//	PGM_SECRETS_BACKEND="secretsmanager"  # secretsmanager, static
//	PGM_SECRETS_PREFIX="cloudsql-postgres-manager"
//
// Role catalog settings:
//
//	PGM_ROLES_CATALOG_PATH="/etc/pgm/roles.yaml"
//	PGM_ROLES_WATCH_CATALOG="false"
//
// Observability settings:
//
//	PGM_LOG_LEVEL="info"  # debug, info, warn, error
//	PGM_LOG_FORMAT="json"  # json, text
//	PGM_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg := config.LoadConfig()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Admin user: %s\n", cfg.Pool.AdminUser)
//
// # Related Packages
//
//   - pkg/pgpool: Uses pool configuration
//   - pkg/registry: Uses registry configuration
//   - pkg/secrets: Uses secrets configuration
package config
