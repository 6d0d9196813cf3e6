package config

import (
	"time"

	"github.com/marmos91/dittobin/internal/bytesize"
	"github.com/marmos91/dittobin/pkg/api"
)

// Config is the daemon configuration. Values come from, in decreasing
// precedence: DITTOBIN_* environment variables, the YAML file, defaults.
type Config struct {
	Logging         LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry       TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
	Metrics         MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	API             api.APIConfig   `mapstructure:"api" yaml:"api"`

	// Store is the deduplicating blob store and its backend.
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Index is the artifact path index the collector scans.
	Index IndexConfig `mapstructure:"index" yaml:"index"`

	GC GCConfig `mapstructure:"gc" yaml:"gc"`
}

// LoggingConfig selects level (DEBUG, INFO, WARN, ERROR), format (text or
// json) and output (stdout, stderr or a file path). Level and format can be
// changed by a hot reload.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig enables OTLP/gRPC trace export.
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the fraction of root spans kept, 0 to 1.
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig enables continuous profiling to a Pyroscope server.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig enables the Prometheus endpoint. Nothing is collected while
// disabled.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// StoreConfig configures the blob store.
type StoreConfig struct {
	// Backend selects the physical persistence layer.
	// Valid values: memory, filesystem, s3
	Backend string `mapstructure:"backend" validate:"required,oneof=memory filesystem s3" yaml:"backend"`

	// Filesystem is used when Backend is "filesystem"
	Filesystem FilesystemConfig `mapstructure:"filesystem" yaml:"filesystem,omitempty"`

	// S3 is used when Backend is "s3"
	S3 S3Config `mapstructure:"s3" yaml:"s3,omitempty"`

	// ReinsertWait bounds how long an upload or read waits for a concurrent
	// insert or deletion of the same blob.
	// Default: 5s
	ReinsertWait time.Duration `mapstructure:"reinsert_wait" validate:"gte=0" yaml:"reinsert_wait"`

	// ReinsertRetries is how many times a busy upload is retried.
	// Default: 3
	ReinsertRetries int `mapstructure:"reinsert_retries" validate:"gte=0" yaml:"reinsert_retries"`

	// MaxBlobSize rejects larger uploads. Zero means unlimited.
	// Supports human-readable formats: "1Gi", "512Mi"
	MaxBlobSize bytesize.ByteSize `mapstructure:"max_blob_size" yaml:"max_blob_size,omitempty"`

	// VerifyDigest hashes every written stream against its identifier.
	VerifyDigest bool `mapstructure:"verify_digest" yaml:"verify_digest"`

	// SkipLoad starts with an empty registry instead of listing the backend.
	SkipLoad bool `mapstructure:"skip_load" yaml:"skip_load,omitempty"`
}

// FilesystemConfig configures the filesystem backend.
type FilesystemConfig struct {
	// Path is the root directory of stored blobs
	Path string `mapstructure:"path" yaml:"path"`
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	MaxRetries      int    `mapstructure:"max_retries" validate:"gte=0" yaml:"max_retries,omitempty"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
	SpoolDir        string `mapstructure:"spool_dir" yaml:"spool_dir,omitempty"`
}

// IndexConfig configures the artifact path index.
type IndexConfig struct {
	// Type selects the index implementation.
	// Valid values: memory, badger, sqlite, postgres
	Type string `mapstructure:"type" validate:"required,oneof=memory badger sqlite postgres" yaml:"type"`

	// Badger is used when Type is "badger"
	Badger BadgerIndexConfig `mapstructure:"badger" yaml:"badger,omitempty"`

	// SQLite is used when Type is "sqlite"
	SQLite SQLiteIndexConfig `mapstructure:"sqlite" yaml:"sqlite,omitempty"`

	// Postgres is used when Type is "postgres"
	Postgres PostgresIndexConfig `mapstructure:"postgres" yaml:"postgres,omitempty"`
}

// BadgerIndexConfig configures the badger index.
type BadgerIndexConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	SyncWrites bool   `mapstructure:"sync_writes" yaml:"sync_writes,omitempty"`
}

// SQLiteIndexConfig configures the SQLite index.
type SQLiteIndexConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresIndexConfig configures the PostgreSQL index.
type PostgresIndexConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password,omitempty"`
	SSLMode      string `mapstructure:"sslmode" validate:"omitempty,oneof=disable require verify-ca verify-full" yaml:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns,omitempty"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns,omitempty"`
}

// GCConfig configures the garbage collector.
type GCConfig struct {
	// Enabled runs collection cycles in the background.
	// Default: true
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval between background cycles. An unreferenced blob is reclaimed
	// on the second cycle after it loses its last reference.
	// Default: 1h
	Interval time.Duration `mapstructure:"interval" validate:"gte=0" yaml:"interval"`

	// Parallelism bounds how many index sources are scanned concurrently.
	// Default: 4
	Parallelism int `mapstructure:"parallelism" validate:"gte=0" yaml:"parallelism"`

	// Properties are the node properties that carry blob identifiers.
	// Default: ["sha256"]
	Properties []string `mapstructure:"properties" validate:"dive,required" yaml:"properties"`
}

// IsEnabled returns whether background collection is enabled.
// Defaults to true if not explicitly set.
func (c *GCConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}
