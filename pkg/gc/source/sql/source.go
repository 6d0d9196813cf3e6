// Package sql provides a relational path index implementing gc.Indexer, on
// SQLite (single node, default) or PostgreSQL through GORM.
package sql

import (
	"context"
	dbsql "database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/dittobin/pkg/gc"
)

// NodeProperty is one property of one tree node.
type NodeProperty struct {
	NodePath string `gorm:"primaryKey;size:1024"`
	Name     string `gorm:"primaryKey;size:128;index:idx_node_properties_name"`
	Value    string `gorm:"size:256;not null"`
}

func (NodeProperty) TableName() string { return "node_properties" }

// Source is a GORM-backed path index.
type Source struct {
	db   *gorm.DB
	name string
}

// Open connects to the database and migrates the schema.
func Open(config *Config) (*Source, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid index database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL lets the collector stream rows while uploads index new paths.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	return NewFromDB(db, string(config.Type))
}

// NewFromDB wraps an existing connection and migrates the schema.
func NewFromDB(db *gorm.DB, name string) (*Source, error) {
	if err := db.AutoMigrate(&NodeProperty{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}
	return &Source{db: db, name: name}, nil
}

// DB returns the underlying GORM connection.
func (s *Source) DB() *gorm.DB { return s.db }

func (s *Source) Name() string { return s.name }

func (s *Source) SetProperty(ctx context.Context, path, name, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "node_path"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&NodeProperty{NodePath: path, Name: name, Value: value}).Error
	if err != nil {
		return fmt.Errorf("set property %s on %s: %w", name, path, err)
	}
	return nil
}

func (s *Source) Lookup(ctx context.Context, path string, names []string) (string, string, bool, error) {
	if len(names) == 0 {
		return "", "", false, nil
	}
	var rows []NodeProperty
	err := s.db.WithContext(ctx).
		Where("node_path = ? AND name IN ?", path, names).
		Find(&rows).Error
	if err != nil {
		return "", "", false, fmt.Errorf("lookup %s: %w", path, err)
	}
	for _, n := range names {
		for _, r := range rows {
			if r.Name == n {
				return r.Value, r.Name, true, nil
			}
		}
	}
	return "", "", false, nil
}

func (s *Source) RemoveNode(ctx context.Context, path string) error {
	err := s.db.WithContext(ctx).
		Where("node_path = ?", path).
		Delete(&NodeProperty{}).Error
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// FindNodesWithAnyProperty streams matching rows ordered by path. A row
// that fails to scan is reported as a *gc.NodeError.
func (s *Source) FindNodesWithAnyProperty(ctx context.Context, names []string) (gc.NodeIterator, error) {
	if len(names) == 0 {
		return gc.NewSliceIterator(nil), nil
	}
	rows, err := s.db.WithContext(ctx).
		Model(&NodeProperty{}).
		Select("node_path", "name", "value").
		Where("name IN ?", names).
		Order("node_path").
		Rows()
	if err != nil {
		return nil, fmt.Errorf("query node properties: %w", err)
	}
	return &rowIterator{rows: rows}, nil
}

// Close closes the underlying connection pool.
func (s *Source) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type rowIterator struct {
	rows   *dbsql.Rows
	closed bool
}

func (r *rowIterator) Next(ctx context.Context) (gc.Node, error) {
	if r.closed {
		return gc.Node{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return gc.Node{}, err
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return gc.Node{}, fmt.Errorf("iterate node properties: %w", err)
		}
		return gc.Node{}, io.EOF
	}

	var path, name string
	var value dbsql.NullString
	if err := r.rows.Scan(&path, &name, &value); err != nil {
		return gc.Node{}, &gc.NodeError{Path: path, Err: err}
	}
	if !value.Valid {
		return gc.Node{}, &gc.NodeError{Path: path, Err: fmt.Errorf("property %s has no value", name)}
	}
	return gc.Node{Path: path, Property: name, Value: value.String}, nil
}

func (r *rowIterator) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rows.Close()
}

var _ gc.Indexer = (*Source)(nil)
