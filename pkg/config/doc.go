// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Ops server settings:
//
//	ARBOR_HOST="0.0.0.0"
//	ARBOR_PORT="9090"
//	ARBOR_READ_TIMEOUT="15s"
//	ARBOR_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	ARBOR_POSTGRES_URL="postgres://localhost/arbor"
//	ARBOR_POSTGRES_MAX_CONNS="20"
//	ARBOR_POSTGRES_TIMEOUT="10s"
//
// Redis settings (per-project sync locks; optional):
//
//	ARBOR_REDIS_URL="redis://localhost:6379"
//	ARBOR_REDIS_LOCK_TTL="15m"
//
// Synchronization settings:
//
//	ARBOR_SYNC_MAX_PARALLEL="4"
//	ARBOR_SYNC_ID_PREFIX="b."
//	ARBOR_SYNC_UPSTREAM_URL="https://platform.example.com/api"
//	ARBOR_SYNC_SCHEDULE="0 */6 * * *"
//	ARBOR_SYNC_PROJECTS="b.proj-1,b.proj-2"
//	ARBOR_SYNC_ACTOR_ID="1"
//
// Audit settings:
//
//	ARBOR_AUDIT_SINK="db"  # db, file, both, none
//	ARBOR_AUDIT_FILE="arbor-audit.jsonl"
//
// Observability settings:
//
//	ARBOR_LOG_LEVEL="info"  # debug, info, warn, error
//	ARBOR_METRICS_ENABLED="true"
//	ARBOR_OTEL_ENABLED="true"
//	ARBOR_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Ops server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage/postgres: Uses database configuration
//   - pkg/observability: Uses observability configuration
package config
