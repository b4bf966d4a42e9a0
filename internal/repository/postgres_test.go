package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *Repository {
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	creds := &Credentials{
		Driver:            DriverPostgres,
		DSN:               dsn,
		MigrationsDirPath: "./migrations/postgres",
	}
	repo, err := NewRepository(ctx, creds)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.RunMigrations(creds))
	return repo
}

func TestPostgres_Repository(t *testing.T) {
	repo := setupPostgres(t)

	t.Run("save and get receipt", func(t *testing.T) {
		testSaveAndGetReceipt(t, repo)
	})
	t.Run("duplicate receipt", func(t *testing.T) {
		testDuplicateReceipt(t, repo)
	})
}

func TestPostgres_OutboxLifecycle(t *testing.T) {
	testOutboxLifecycle(t, setupPostgres(t))
}
