package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"

	// sqlite driver for SeedSQLite
	_ "modernc.org/sqlite"
)

// SeedSQLite creates a SQLite database file in a per-test temp directory,
// runs ddl against it and returns a connection config for it
func SeedSQLite(t *testing.T, ddl string) core.ConnectionConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(ddl)
	require.NoError(t, err)

	return core.ConnectionConfig{Kind: core.KindSQLite, Database: path}
}

// StartPostgres runs a disposable PostgreSQL 16 container, seeds it with
// ddl and returns a connection config for it. The container is terminated
// when the test finishes. Skipped in short mode.
func StartPostgres(t *testing.T, ddl string) core.ConnectionConfig {
	t.Helper()
	IntegrationTest(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	if ddl != "" {
		seed, err := pgx.Connect(ctx, connStr)
		require.NoError(t, err)
		_, err = seed.Exec(ctx, ddl)
		require.NoError(t, err)
		require.NoError(t, seed.Close(ctx))
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return core.ConnectionConfig{
		Kind:     core.KindPostgreSQL,
		Host:     host,
		Port:     portNum,
		Database: "testdb",
		Username: "test",
		Password: "test",
	}
}

// StartRedis runs a disposable Redis 7 container and returns its host:port
// address. The container is terminated when the test finishes. Skipped in
// short mode.
func StartRedis(t *testing.T) string {
	t.Helper()
	IntegrationTest(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return addr
}
