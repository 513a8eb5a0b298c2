// Package testutil provides shared testing infrastructure: a disposable
// PostgreSQL container with the schema applied, discard loggers, and mock
// model/embedder implementations for deterministic agent tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/inkops/inkwell/db"
)

// TestDBContainer wraps a PostgreSQL test container with a ready connection
// pool. The container runs the pgvector image and has all migrations
// applied.
type TestDBContainer struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDBForMain starts a PostgreSQL container for use from TestMain,
// where no *testing.T exists yet. The returned cleanup function terminates
// the container and must be called after m.Run().
//
// Starting one container per package and truncating between tests (see
// CleanTables) is much faster than one container per test.
func SetupTestDBForMain() (*TestDBContainer, func(), error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("inkwell_test"),
		postgres.WithUsername("inkwell_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("starting postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("getting connection string: %w", err)
	}

	if err := db.Migrate(connStr); err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	container := &TestDBContainer{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(context.Background())
	}
	return container, cleanup, nil
}

// SetupTestDB starts a PostgreSQL container scoped to a single test and
// registers cleanup on t.
func SetupTestDB(t *testing.T) *TestDBContainer {
	t.Helper()

	container, cleanup, err := SetupTestDBForMain()
	if err != nil {
		t.Fatalf("setting up test database: %v", err)
	}
	t.Cleanup(cleanup)
	return container
}

// CleanTables truncates all document tables for test isolation. Version and
// chunk rows go with their documents via cascading foreign keys.
func CleanTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	if _, err := pool.Exec(context.Background(), `TRUNCATE documents CASCADE`); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
}
