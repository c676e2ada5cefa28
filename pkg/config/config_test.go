package config

import (
	"os"
	"testing"
	"time"

	"github.com/arborhq/arbor/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns parsed value",
			key:          "TEST_INT",
			defaultValue: 5,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "returns default for invalid value",
			key:          "TEST_INT",
			defaultValue: 5,
			envValue:     "not-a-number",
			want:         5,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOT_SET",
			defaultValue: 5,
			envValue:     "",
			want:         5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DUR",
			defaultValue: time.Second,
			envValue:     "5m",
			want:         5 * time.Minute,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DUR",
			defaultValue: time.Second,
			envValue:     "soon",
			want:         time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DUR_NOT_SET",
			defaultValue: time.Second,
			envValue:     "",
			want:         time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLoadConfigDefaults tests loading with only the required settings present
func TestLoadConfigDefaults(t *testing.T) {
	os.Setenv("ARBOR_POSTGRES_URL", "postgres://localhost/arbor_test")
	defer os.Unsetenv("ARBOR_POSTGRES_URL")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %v, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want 9090", cfg.Server.Port)
	}
	if cfg.Database.MaxConns != 20 {
		t.Errorf("Database.MaxConns = %v, want 20", cfg.Database.MaxConns)
	}
	if cfg.Redis.LockTTL != 15*time.Minute {
		t.Errorf("Redis.LockTTL = %v, want 15m", cfg.Redis.LockTTL)
	}
	if cfg.Sync.MaxParallel != 4 {
		t.Errorf("Sync.MaxParallel = %v, want 4", cfg.Sync.MaxParallel)
	}
	if cfg.Sync.IDPrefix != "b." {
		t.Errorf("Sync.IDPrefix = %v, want b.", cfg.Sync.IDPrefix)
	}
	if cfg.Audit.Sink != "db" {
		t.Errorf("Audit.Sink = %v, want db", cfg.Audit.Sink)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("Observability.LogLevel = %v, want info", cfg.Observability.LogLevel)
	}
	if !cfg.Observability.MetricsEnabled {
		t.Error("Observability.MetricsEnabled = false, want true")
	}
}

// TestLoadConfigSyncProjects tests parsing the project list
func TestLoadConfigSyncProjects(t *testing.T) {
	os.Setenv("ARBOR_POSTGRES_URL", "postgres://localhost/arbor_test")
	os.Setenv("ARBOR_SYNC_PROJECTS", "b.proj-1, b.proj-2 ,,b.proj-3")
	defer os.Unsetenv("ARBOR_POSTGRES_URL")
	defer os.Unsetenv("ARBOR_SYNC_PROJECTS")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := []string{"b.proj-1", "b.proj-2", "b.proj-3"}
	if len(cfg.Sync.Projects) != len(want) {
		t.Fatalf("Sync.Projects = %v, want %v", cfg.Sync.Projects, want)
	}
	for i := range want {
		if cfg.Sync.Projects[i] != want[i] {
			t.Errorf("Sync.Projects[%d] = %v, want %v", i, cfg.Sync.Projects[i], want[i])
		}
	}
}

// TestConfigValidate tests validation rules
func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Server:   loadServerConfig(),
			Database: loadDatabaseConfig(),
			Redis:    loadRedisConfig(),
			Sync:     loadSyncConfig(),
			Audit:    loadAuditConfig(),
		}
		cfg.Database.URL = "postgres://localhost/arbor_test"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing ops port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: true,
		},
		{
			name:    "missing postgres URL",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: true,
		},
		{
			name:    "non-positive parallelism",
			mutate:  func(c *Config) { c.Sync.MaxParallel = 0 },
			wantErr: true,
		},
		{
			name: "schedule without projects",
			mutate: func(c *Config) {
				c.Sync.Schedule = "0 */6 * * *"
				c.Sync.ActorID = 1
				c.Sync.UpstreamURL = "http://localhost:8080"
			},
			wantErr: true,
		},
		{
			name: "schedule without actor",
			mutate: func(c *Config) {
				c.Sync.Schedule = "0 */6 * * *"
				c.Sync.Projects = []string{"b.proj-1"}
				c.Sync.UpstreamURL = "http://localhost:8080"
			},
			wantErr: true,
		},
		{
			name: "schedule without upstream",
			mutate: func(c *Config) {
				c.Sync.Schedule = "0 */6 * * *"
				c.Sync.Projects = []string{"b.proj-1"}
				c.Sync.ActorID = 1
			},
			wantErr: true,
		},
		{
			name: "valid schedule",
			mutate: func(c *Config) {
				c.Sync.Schedule = "0 */6 * * *"
				c.Sync.Projects = []string{"b.proj-1"}
				c.Sync.ActorID = 1
				c.Sync.UpstreamURL = "http://localhost:8080"
			},
			wantErr: false,
		},
		{
			name:    "unknown audit sink",
			mutate:  func(c *Config) { c.Audit.Sink = "syslog" },
			wantErr: true,
		},
		{
			name: "file sink without path",
			mutate: func(c *Config) {
				c.Audit.Sink = "file"
				c.Audit.FilePath = ""
			},
			wantErr: true,
		},
		{
			name:    "none sink",
			mutate:  func(c *Config) { c.Audit.Sink = "none" },
			wantErr: false,
		},
		{
			name: "otel enabled without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
