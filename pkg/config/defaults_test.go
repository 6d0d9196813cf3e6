package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 5*time.Minute {
		t.Errorf("Expected default read timeout 5m, got %v", cfg.API.ReadTimeout)
	}
	if cfg.API.RequestTimeout != 30*time.Second {
		t.Errorf("Expected default request timeout 30s, got %v", cfg.API.RequestTimeout)
	}
	if !cfg.API.IsEnabled() {
		t.Error("Expected API to be enabled by default")
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 0 {
		t.Errorf("Expected no metrics port while disabled, got %d", cfg.Metrics.Port)
	}

	cfg = &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_Store(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Store.Backend != "filesystem" {
		t.Errorf("Expected default backend 'filesystem', got %q", cfg.Store.Backend)
	}
	if cfg.Store.Filesystem.Path == "" {
		t.Error("Expected a default filesystem path")
	}
	if cfg.Store.ReinsertWait != 5*time.Second {
		t.Errorf("Expected default reinsert wait 5s, got %v", cfg.Store.ReinsertWait)
	}
	if cfg.Store.ReinsertRetries != 3 {
		t.Errorf("Expected default reinsert retries 3, got %d", cfg.Store.ReinsertRetries)
	}
}

func TestApplyDefaults_Index(t *testing.T) {
	cfg := &Config{Index: IndexConfig{Type: "Postgres"}}
	ApplyDefaults(cfg)

	if cfg.Index.Type != "postgres" {
		t.Errorf("Expected index type to be normalized, got %q", cfg.Index.Type)
	}
	if cfg.Index.Postgres.Port != 5432 {
		t.Errorf("Expected default postgres port 5432, got %d", cfg.Index.Postgres.Port)
	}
	if cfg.Index.Postgres.SSLMode != "disable" {
		t.Errorf("Expected default sslmode 'disable', got %q", cfg.Index.Postgres.SSLMode)
	}

	cfg = &Config{Index: IndexConfig{Type: "badger"}}
	ApplyDefaults(cfg)
	if cfg.Index.Badger.Path == "" {
		t.Error("Expected a default badger path")
	}
}

func TestApplyDefaults_GC(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.GC.Interval != time.Hour {
		t.Errorf("Expected default interval 1h, got %v", cfg.GC.Interval)
	}
	if cfg.GC.Parallelism != 4 {
		t.Errorf("Expected default parallelism 4, got %d", cfg.GC.Parallelism)
	}
	if len(cfg.GC.Properties) != 1 || cfg.GC.Properties[0] != "sha256" {
		t.Errorf("Expected default properties [sha256], got %v", cfg.GC.Properties)
	}
	if cfg.GC.Enabled != nil {
		t.Error("Expected Enabled to stay unset")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "stderr",
		},
		ShutdownTimeout: 10 * time.Second,
		Store: StoreConfig{
			Backend:         "memory",
			ReinsertWait:    time.Second,
			ReinsertRetries: 9,
		},
		GC: GCConfig{
			Interval:    5 * time.Minute,
			Parallelism: 1,
			Properties:  []string{"sha1"},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" || cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Logging values overwritten: %+v", cfg.Logging)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected shutdown timeout 10s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Store.Backend != "memory" || cfg.Store.ReinsertWait != time.Second || cfg.Store.ReinsertRetries != 9 {
		t.Errorf("Store values overwritten: %+v", cfg.Store)
	}
	if cfg.Store.Filesystem.Path != "" {
		t.Errorf("Expected no filesystem path for the memory backend, got %q", cfg.Store.Filesystem.Path)
	}
	if cfg.GC.Interval != 5*time.Minute || cfg.GC.Parallelism != 1 || cfg.GC.Properties[0] != "sha1" {
		t.Errorf("GC values overwritten: %+v", cfg.GC)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}
}
