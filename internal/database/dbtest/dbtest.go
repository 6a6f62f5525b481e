// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB manages a PostgreSQL testcontainer with migrations applied
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	DB         *database.DB
}

// Setup creates the container, connects and runs migrations
func Setup(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("bastion"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	goose.SetLogger(goose.NopLogger())

	if err := database.RunMigrations(ctx, pool, logger); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		DB:         database.New(pool, logger),
	}, nil
}

// Truncate empties every application table between tests
func (db *TestDB) Truncate(ctx context.Context) error {
	_, err := db.DB.Pool.Exec(ctx, "TRUNCATE admins, security_events")
	return err
}

// Teardown closes the pool and stops the container
func (db *TestDB) Teardown(ctx context.Context) error {
	db.DB.Pool.Close()
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}
