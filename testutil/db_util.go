// Package testutil provides shared fixtures for integration and unit tests:
// a disposable Postgres container wired with the service schema, and a
// scriptable Lightning node double.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DBIntegrationSuite starts one PostgreSQL container for all tests in the
// embedding suite, initialized with the service schema. Tests share the
// container; use TruncateTables between tests for isolation.
type DBIntegrationSuite struct {
	suite.Suite
	Pool             *pgxpool.Pool
	ConnectionString string
	container        *postgres.PostgresContainer
}

// schemaDir locates infra/postgres relative to this file, so suites work
// regardless of the package they run from.
func schemaDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "infra", "postgres")
}

func (s *DBIntegrationSuite) SetupSuite() {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("payday_test"),
		postgres.WithUsername("payday"),
		postgres.WithPassword("payday"),
		postgres.WithInitScripts(filepath.Join(schemaDir(), "schema.sql")),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err, "failed to start postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err, "failed to get connection string")

	pool, err := pgxpool.New(ctx, connStr)
	s.Require().NoError(err, "failed to connect to test database")

	s.Pool = pool
	s.container = container
	s.ConnectionString = connStr
}

func (s *DBIntegrationSuite) TearDownSuite() {
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

// TruncateTables clears the given tables and resets their sequences.
func (s *DBIntegrationSuite) TruncateTables(tables ...string) {
	for _, table := range tables {
		_, err := s.Pool.Exec(context.Background(), fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", table))
		s.Require().NoError(err, "failed to truncate table %s", table)
	}
}
