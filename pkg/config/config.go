package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arborhq/arbor/pkg/observability"
	"github.com/arborhq/arbor/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	// Ops server configuration (health probes and metrics)
	Server ServerConfig

	// Database configuration
	Database postgres.ConnectionConfig

	// Redis configuration (per-project sync locks)
	Redis RedisConfig

	// Synchronization configuration
	Sync SyncConfig

	// Audit trail configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds the ops HTTP server configuration. The ops server only
// exposes health probes and metrics; there is no business HTTP API.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

// SyncConfig holds hierarchy synchronization settings
type SyncConfig struct {
	// MaxParallel bounds concurrent subtree workers within one run
	MaxParallel int64

	// IDPrefix is stripped from external ids before storage
	IDPrefix string

	// UpstreamURL is the external platform base URL
	UpstreamURL string

	// Schedule is a cron expression for periodic re-synchronization; empty
	// disables the scheduler
	Schedule string

	// Projects are external project ids re-synchronized on the schedule
	Projects []string

	// ActorID is the principal periodic runs act as
	ActorID int64
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// Sink is "db", "file", "both" or "none"
	Sink string

	// FilePath is the JSON-lines file for the file sink
	FilePath string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Sync:          loadSyncConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads ops server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ARBOR_HOST", "0.0.0.0"),
		Port:            getEnv("ARBOR_PORT", "9090"),
		ReadTimeout:     getEnvDuration("ARBOR_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ARBOR_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ARBOR_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ARBOR_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() postgres.ConnectionConfig {
	cfg := postgres.DefaultConnectionConfig(getEnv("ARBOR_POSTGRES_URL", ""))

	if maxConns := getEnvInt("ARBOR_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("ARBOR_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("ARBOR_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}
	if lifetime := getEnvDuration("ARBOR_POSTGRES_MAX_LIFETIME", 0); lifetime > 0 {
		cfg.MaxLifetime = lifetime
	}
	if idle := getEnvDuration("ARBOR_POSTGRES_MAX_IDLE_TIME", 0); idle > 0 {
		cfg.MaxIdleTime = idle
	}

	return cfg
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:     getEnv("ARBOR_REDIS_URL", ""),
		LockTTL: getEnvDuration("ARBOR_REDIS_LOCK_TTL", 15*time.Minute),
	}
}

// loadSyncConfig loads synchronization configuration from environment
func loadSyncConfig() SyncConfig {
	cfg := SyncConfig{
		MaxParallel: int64(getEnvInt("ARBOR_SYNC_MAX_PARALLEL", 4)),
		IDPrefix:    getEnv("ARBOR_SYNC_ID_PREFIX", "b."),
		UpstreamURL: getEnv("ARBOR_SYNC_UPSTREAM_URL", ""),
		Schedule:    getEnv("ARBOR_SYNC_SCHEDULE", ""),
		ActorID:     int64(getEnvInt("ARBOR_SYNC_ACTOR_ID", 0)),
	}

	if projects := getEnv("ARBOR_SYNC_PROJECTS", ""); projects != "" {
		for _, p := range strings.Split(projects, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Projects = append(cfg.Projects, p)
			}
		}
	}

	return cfg
}

// loadAuditConfig loads audit trail configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Sink:     strings.ToLower(getEnv("ARBOR_AUDIT_SINK", "db")),
		FilePath: getEnv("ARBOR_AUDIT_FILE", "arbor-audit.jsonl"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("ARBOR_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("ARBOR_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("ARBOR_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ARBOR_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ARBOR_OTEL_SERVICE_NAME", "arbor"),
		OTelServiceVersion: getEnv("ARBOR_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("ARBOR_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("ops server port is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Sync.MaxParallel <= 0 {
		return fmt.Errorf("sync parallelism must be positive")
	}
	if c.Sync.Schedule != "" {
		if len(c.Sync.Projects) == 0 {
			return fmt.Errorf("scheduled synchronization requires at least one project")
		}
		if c.Sync.ActorID <= 0 {
			return fmt.Errorf("scheduled synchronization requires an actor id")
		}
		if c.Sync.UpstreamURL == "" {
			return fmt.Errorf("scheduled synchronization requires an upstream URL")
		}
	}

	switch c.Audit.Sink {
	case "db", "none":
	case "file", "both":
		if c.Audit.FilePath == "" {
			return fmt.Errorf("audit file path is required for the file sink")
		}
	default:
		return fmt.Errorf("invalid audit sink: %s (must be db, file, both, or none)", c.Audit.Sink)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
