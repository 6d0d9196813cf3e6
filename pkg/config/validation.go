package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the configuration for errors.
//
// Struct tags are checked first with go-playground/validator. Cross-field
// rules that depend on the selected backend or index type follow. Validate
// never modifies cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	if err := getValidator().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	checks := []func(*Config) error{
		validateTelemetry,
		validateStore,
		validateIndex,
		validatePorts,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateTelemetry(cfg *Config) error {
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return errors.New("telemetry.profiling.endpoint is required when profiling is enabled")
	}
	return nil
}

func validateStore(cfg *Config) error {
	switch cfg.Store.Backend {
	case "filesystem":
		if cfg.Store.Filesystem.Path == "" {
			return errors.New("store.filesystem.path is required for the filesystem backend")
		}
	case "s3":
		if cfg.Store.S3.Bucket == "" {
			return errors.New("store.s3.bucket is required for the s3 backend")
		}
		if (cfg.Store.S3.AccessKeyID == "") != (cfg.Store.S3.SecretAccessKey == "") {
			return errors.New("store.s3.access_key_id and store.s3.secret_access_key must be set together")
		}
	}
	return nil
}

func validateIndex(cfg *Config) error {
	switch cfg.Index.Type {
	case "badger":
		if cfg.Index.Badger.Path == "" {
			return errors.New("index.badger.path is required for the badger index")
		}
	case "sqlite":
		if cfg.Index.SQLite.Path == "" {
			return errors.New("index.sqlite.path is required for the sqlite index")
		}
	case "postgres":
		pg := cfg.Index.Postgres
		if pg.Host == "" {
			return errors.New("index.postgres.host is required for the postgres index")
		}
		if pg.Database == "" {
			return errors.New("index.postgres.database is required for the postgres index")
		}
		if pg.User == "" {
			return errors.New("index.postgres.user is required for the postgres index")
		}
	}
	return nil
}

func validatePorts(cfg *Config) error {
	if cfg.Metrics.Enabled && cfg.API.IsEnabled() && cfg.Metrics.Port == cfg.API.Port {
		return fmt.Errorf("metrics.port and api.port must differ (both are %d)", cfg.API.Port)
	}
	return nil
}
