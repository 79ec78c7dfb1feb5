package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Server        ServerConfig
	Pool          PoolConfig
	Registry      RegistryConfig
	Secrets       SecretsConfig
	Roles         RolesConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	HealthPort      int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxRequestBytes int64
}

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	MaxSize        int
	MaxOverflow    int
	AcquireTimeout time.Duration
	ConnectTimeout time.Duration
	SweepSchedule  string
	SocketDir      string
	AdminUser      string
}

// RegistryConfig holds the role registry backend configuration.
type RegistryConfig struct {
	RedisURL string
}

// SecretsConfig selects how admin credentials are resolved.
type SecretsConfig struct {
	Backend        string
	SecretPrefix   string
	StaticPassword string
}

// RolesConfig controls role definition sources.
type RolesConfig struct {
	CatalogPath  string
	WatchCatalog bool
}

// ObservabilityConfig holds logging and metrics configuration.
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            getEnv("PGM_SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("PGM_SERVER_PORT", 8080),
			HealthPort:      getEnvInt("PGM_HEALTH_PORT", 8081),
			ReadTimeout:     getEnvDuration("PGM_SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("PGM_SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("PGM_SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("PGM_SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxRequestBytes: getEnvInt64("PGM_SERVER_MAX_REQUEST_BYTES", 1<<20),
		},
		Pool: PoolConfig{
			MaxSize:        getEnvInt("PGM_POOL_MAX_SIZE", 2),
			MaxOverflow:    getEnvInt("PGM_POOL_MAX_OVERFLOW", 2),
			AcquireTimeout: getEnvDuration("PGM_POOL_ACQUIRE_TIMEOUT", 30*time.Second),
			ConnectTimeout: getEnvDuration("PGM_POOL_CONNECT_TIMEOUT", 10*time.Second),
			SweepSchedule:  getEnv("PGM_POOL_SWEEP_SCHEDULE", "*/10 * * * *"),
			SocketDir:      getEnv("PGM_POOL_SOCKET_DIR", "/cloudsql"),
			AdminUser:      getEnv("PGM_POOL_ADMIN_USER", "postgres"),
		},
		Registry: RegistryConfig{
			RedisURL: getEnv("PGM_REGISTRY_REDIS_URL", "redis://localhost:6379/0"),
		},
		Secrets: SecretsConfig{
			Backend:        getEnv("PGM_SECRETS_BACKEND", "secretsmanager"),
			SecretPrefix:   getEnv("PGM_SECRETS_PREFIX", "cloudsql-postgres-manager"),
			StaticPassword: getEnv("PGM_SECRETS_STATIC_PASSWORD", ""),
		},
		Roles: RolesConfig{
			CatalogPath:  getEnv("PGM_ROLES_CATALOG_PATH", ""),
			WatchCatalog: getEnvBool("PGM_ROLES_WATCH_CATALOG", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("PGM_LOG_LEVEL", "info"),
			LogFormat:      getEnv("PGM_LOG_FORMAT", "json"),
			MetricsEnabled: getEnvBool("PGM_METRICS_ENABLED", true),
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.HealthPort <= 0 || c.Server.HealthPort > 65535 {
		return fmt.Errorf("invalid health port: %d", c.Server.HealthPort)
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must differ: %d", c.Server.Port)
	}
	if c.Pool.MaxSize < 1 {
		return fmt.Errorf("pool max size must be at least 1, got %d", c.Pool.MaxSize)
	}
	if c.Pool.MaxOverflow < 0 {
		return fmt.Errorf("pool max overflow cannot be negative, got %d", c.Pool.MaxOverflow)
	}
	if c.Pool.AdminUser == "" {
		return fmt.Errorf("pool admin user is required")
	}
	if c.Registry.RedisURL == "" {
		return fmt.Errorf("registry redis URL is required")
	}
	switch c.Secrets.Backend {
	case "secretsmanager":
	case "static":
		if c.Secrets.StaticPassword == "" {
			return fmt.Errorf("static secrets backend requires PGM_SECRETS_STATIC_PASSWORD")
		}
	default:
		return fmt.Errorf("unknown secrets backend: %s", c.Secrets.Backend)
	}
	if c.Roles.WatchCatalog && c.Roles.CatalogPath == "" {
		return fmt.Errorf("catalog watching requires PGM_ROLES_CATALOG_PATH")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
