//go:build integration

package sql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/dittobin/pkg/gc"
	"github.com/marmos91/dittobin/pkg/gc/source/sourcetest"
)

func startPostgres(t *testing.T) PostgresConfig {
	t.Helper()
	ctx := context.Background()

	// PostgreSQL logs "ready" once during bootstrap and once when serving.
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dittobin"),
		postgres.WithUsername("dittobin"),
		postgres.WithPassword("dittobin"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return PostgresConfig{
		Host:     host,
		Port:     port.Int(),
		Database: "dittobin",
		User:     "dittobin",
		Password: "dittobin",
	}
}

func TestConformancePostgres(t *testing.T) {
	pg := startPostgres(t)

	sourcetest.RunConformanceSuite(t, func(t *testing.T) gc.Indexer {
		s, err := Open(&Config{Type: DatabaseTypePostgres, Postgres: pg})
		require.NoError(t, err)
		require.NoError(t, s.DB().Exec("TRUNCATE node_properties").Error)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
