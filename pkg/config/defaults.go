package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittobin/pkg/gc/source/sql"
)

// DefaultDataDir is the root of on-disk state when no path is configured.
const DefaultDataDir = "/var/lib/dittobin"

// defaultProfileTypes are collected when profiling is enabled without an
// explicit list.
var defaultProfileTypes = []string{
	"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines",
}

// ApplyDefaults fills zero-valued fields in place and normalizes enum
// casing. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Logging.Level, "INFO")
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	setDefault(&cfg.Logging.Format, "text")
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	setDefault(&cfg.Logging.Output, "stdout")

	setDefault(&cfg.Telemetry.Endpoint, "localhost:4317")
	setDefault(&cfg.Telemetry.SampleRate, 1.0)
	setDefault(&cfg.Telemetry.Profiling.Endpoint, "http://localhost:4040")
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		cfg.Telemetry.Profiling.ProfileTypes = append([]string(nil), defaultProfileTypes...)
	}

	setDefault(&cfg.ShutdownTimeout, 30*time.Second)
	if cfg.Metrics.Enabled {
		setDefault(&cfg.Metrics.Port, 9090)
	}
	cfg.API.ApplyDefaults()

	applyStoreDefaults(&cfg.Store)
	applyIndexDefaults(&cfg.Index)
	applyGCDefaults(&cfg.GC)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// applyStoreDefaults sets blob store defaults. The S3 bucket has no default.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "filesystem"
	}
	cfg.Backend = strings.ToLower(cfg.Backend)

	if cfg.Backend == "filesystem" && cfg.Filesystem.Path == "" {
		cfg.Filesystem.Path = filepath.Join(DefaultDataDir, "blobs")
	}
	setDefault(&cfg.ReinsertWait, 5*time.Second)
	setDefault(&cfg.ReinsertRetries, 3)
	if cfg.Backend == "s3" && cfg.S3.MaxRetries == 0 {
		cfg.S3.MaxRetries = 3
	}
}

// applyIndexDefaults sets path index defaults.
func applyIndexDefaults(cfg *IndexConfig) {
	if cfg.Type == "" {
		cfg.Type = "sqlite"
	}
	cfg.Type = strings.ToLower(cfg.Type)

	switch cfg.Type {
	case "badger":
		if cfg.Badger.Path == "" {
			cfg.Badger.Path = filepath.Join(DefaultDataDir, "index")
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			cfg.SQLite.Path = filepath.Join(DefaultDataDir, "index.db")
		}
	case "postgres":
		dbCfg := sql.Config{
			Type: sql.DatabaseTypePostgres,
			Postgres: sql.PostgresConfig{
				Port:         cfg.Postgres.Port,
				SSLMode:      cfg.Postgres.SSLMode,
				MaxOpenConns: cfg.Postgres.MaxOpenConns,
				MaxIdleConns: cfg.Postgres.MaxIdleConns,
			},
		}
		dbCfg.ApplyDefaults()
		cfg.Postgres.Port = dbCfg.Postgres.Port
		cfg.Postgres.SSLMode = dbCfg.Postgres.SSLMode
		cfg.Postgres.MaxOpenConns = dbCfg.Postgres.MaxOpenConns
		cfg.Postgres.MaxIdleConns = dbCfg.Postgres.MaxIdleConns
	}
}

// applyGCDefaults sets garbage collector defaults.
// Enabled stays nil so IsEnabled reports true.
func applyGCDefaults(cfg *GCConfig) {
	setDefault(&cfg.Interval, time.Hour)
	setDefault(&cfg.Parallelism, 4)
	if len(cfg.Properties) == 0 {
		cfg.Properties = []string{"sha256"}
	}
}

// GetDefaultConfig returns a fully defaulted config, as written by
// "config init".
func GetDefaultConfig() *Config {
	cfg := &Config{
		Store: StoreConfig{
			Backend: "filesystem",
		},
		Index: IndexConfig{
			Type: "sqlite",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
