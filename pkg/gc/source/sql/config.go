package sql

import (
	"errors"
	"fmt"
	"strings"
)

// DatabaseType selects the SQL backend.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// Postgres pool and connection defaults.
const (
	defaultPostgresPort = 5432
	defaultSSLMode      = "disable"
	defaultMaxOpen      = 25
	defaultMaxIdle      = 5
)

// SQLiteConfig locates the SQLite database file. Its directory is created
// on Open.
type SQLiteConfig struct {
	Path string
}

// PostgresConfig holds libpq connection settings and pool limits.
type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string // disable, require, verify-ca or verify-full
	MaxOpenConns int
	MaxIdleConns int
}

// DSN renders a libpq keyword/value connection string. Empty values are
// omitted; values with spaces or quotes are single-quoted.
func (c *PostgresConfig) DSN() string {
	var b strings.Builder
	add := func(key, value string) {
		if value == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(quoteDSN(value))
	}

	add("host", c.Host)
	if c.Port > 0 {
		add("port", fmt.Sprint(c.Port))
	}
	add("user", c.User)
	add("password", c.Password)
	add("dbname", c.Database)
	add("sslmode", c.SSLMode)
	return b.String()
}

func quoteDSN(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Config selects and configures the index database.
type Config struct {
	Type     DatabaseType
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// ApplyDefaults selects SQLite when no type is set and fills the Postgres
// port, sslmode and pool limits.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type != DatabaseTypePostgres {
		return
	}
	pg := &c.Postgres
	if pg.Port == 0 {
		pg.Port = defaultPostgresPort
	}
	if pg.SSLMode == "" {
		pg.SSLMode = defaultSSLMode
	}
	if pg.MaxOpenConns == 0 {
		pg.MaxOpenConns = defaultMaxOpen
	}
	if pg.MaxIdleConns == 0 {
		pg.MaxIdleConns = defaultMaxIdle
	}
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			missing = append(missing, "path")
		}
	case DatabaseTypePostgres:
		for _, f := range []struct{ name, value string }{
			{"host", c.Postgres.Host},
			{"database", c.Postgres.Database},
			{"user", c.Postgres.User},
		} {
			if f.value == "" {
				missing = append(missing, f.name)
			}
		}
	default:
		return fmt.Errorf("unsupported database type %q", c.Type)
	}

	if len(missing) > 0 {
		return errors.New(string(c.Type) + " index: missing " + strings.Join(missing, ", "))
	}
	return nil
}
