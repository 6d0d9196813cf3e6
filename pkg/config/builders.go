package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittobin/internal/logger"
	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/blob/backend"
	"github.com/marmos91/dittobin/pkg/blob/backend/fs"
	"github.com/marmos91/dittobin/pkg/blob/backend/memory"
	"github.com/marmos91/dittobin/pkg/blob/backend/s3"
	"github.com/marmos91/dittobin/pkg/gc"
	badgersource "github.com/marmos91/dittobin/pkg/gc/source/badger"
	memsource "github.com/marmos91/dittobin/pkg/gc/source/memory"
	"github.com/marmos91/dittobin/pkg/gc/source/sql"
	"github.com/marmos91/dittobin/pkg/metrics"
	"github.com/marmos91/dittobin/pkg/metrics/prometheus"
)

// MetricsResult holds what InitializeMetrics created.
type MetricsResult struct {
	// Server is nil when metrics are disabled.
	Server *metrics.Server
}

// InitializeMetrics enables the metrics registry and creates the metrics
// server when cfg.Metrics.Enabled is set.
//
// It must run before the store, index and collector are built: their
// metrics constructors return nil while the registry is disabled.
func InitializeMetrics(cfg *Config) MetricsResult {
	if !cfg.Metrics.Enabled {
		return MetricsResult{}
	}
	metrics.InitRegistry()
	return MetricsResult{Server: metrics.NewServer(cfg.Metrics.Port)}
}

// BuildBackend creates the physical backend selected by cfg.
func BuildBackend(ctx context.Context, cfg *StoreConfig) (backend.BlobStore, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "filesystem":
		b, err := fs.New(fs.DefaultConfig(cfg.Filesystem.Path))
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem backend: %w", err)
		}
		return b, nil
	case "s3":
		b, err := s3.NewFromConfig(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			KeyPrefix:       cfg.S3.KeyPrefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			MaxRetries:      cfg.S3.MaxRetries,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			SpoolDir:        cfg.S3.SpoolDir,
			Metrics:         metrics.NewS3Metrics(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 backend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// BuildStore creates the blob store and, unless SkipLoad is set, registers
// the blobs already present in the backend.
func BuildStore(ctx context.Context, cfg *StoreConfig) (*blob.Store, error) {
	b, err := BuildBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := blob.NewStore(b, blob.Options{
		ReinsertWait:    cfg.ReinsertWait,
		ReinsertRetries: cfg.ReinsertRetries,
		MaxBlobSize:     cfg.MaxBlobSize.Uint64(),
		VerifyDigest:    cfg.VerifyDigest,
		Metrics:         metrics.NewBlobMetrics(),
	})

	if cfg.SkipLoad {
		return store, nil
	}
	n, err := store.Load(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load blob registry: %w", err)
	}
	logger.Info("Blob registry loaded", logger.StoreType(cfg.Backend), "blobs", n)
	return store, nil
}

// BuildIndex opens the artifact path index selected by cfg.
func BuildIndex(cfg *IndexConfig) (gc.Indexer, error) {
	switch cfg.Type {
	case "memory":
		return memsource.New("memory"), nil
	case "badger":
		src, err := badgersource.Open(badgersource.Config{
			Path:       cfg.Badger.Path,
			SyncWrites: cfg.Badger.SyncWrites,
		})
		if err != nil {
			return nil, err
		}
		if err := prometheus.RegisterBadgerIndex(src); err != nil {
			logger.Warn("Failed to register badger index metrics", logger.Err(err))
		}
		return src, nil
	case "sqlite":
		return openSQL(&sql.Config{
			Type:   sql.DatabaseTypeSQLite,
			SQLite: sql.SQLiteConfig{Path: cfg.SQLite.Path},
		})
	case "postgres":
		pg := cfg.Postgres
		return openSQL(&sql.Config{
			Type: sql.DatabaseTypePostgres,
			Postgres: sql.PostgresConfig{
				Host:         pg.Host,
				Port:         pg.Port,
				Database:     pg.Database,
				User:         pg.User,
				Password:     pg.Password,
				SSLMode:      pg.SSLMode,
				MaxOpenConns: pg.MaxOpenConns,
				MaxIdleConns: pg.MaxIdleConns,
			},
		})
	default:
		return nil, fmt.Errorf("unknown index type: %s", cfg.Type)
	}
}

func openSQL(cfg *sql.Config) (gc.Indexer, error) {
	src, err := sql.Open(cfg)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// BuildCollector creates the collector of store, scanning index.
func BuildCollector(store *blob.Store, index gc.Source, cfg *GCConfig) *gc.Collector {
	var sources []gc.Source
	if index != nil {
		sources = append(sources, index)
	}
	return gc.New(store, sources, gc.Options{
		Properties:  cfg.Properties,
		Parallelism: cfg.Parallelism,
		Metrics:     metrics.NewGCMetrics(),
	})
}
