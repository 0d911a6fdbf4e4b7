package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjod/go_cart/local-cart/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupSQLite(t *testing.T) *SQLStorage {
	s, err := Open(SQLite, filepath.Join(t.TempDir(), "cart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.RunMigrations())
	return s
}

func setupPostgres(t *testing.T) *SQLStorage {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
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

	s, err := Open(Postgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.RunMigrations())
	return s
}

func testStorageContract(t *testing.T, s *SQLStorage) {
	ctx := context.Background()

	_, err := s.GetItem(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SetItem(ctx, "@GoMarketplace:cart", `[]`))
	require.NoError(t, s.SetItem(ctx, "@GoMarketplace:cart", `[{"id":"p1","quantity":1}]`))

	value, err := s.GetItem(ctx, "@GoMarketplace:cart")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"p1","quantity":1}]`, value)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_items`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLite(t *testing.T) {
	testStorageContract(t, setupSQLite(t))
}

func TestSQLite_MigrationsAreIdempotent(t *testing.T) {
	s := setupSQLite(t)
	assert.NoError(t, s.RunMigrations())
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.db")
	ctx := context.Background()

	first, err := Open(SQLite, path)
	require.NoError(t, err)
	require.NoError(t, first.RunMigrations())
	require.NoError(t, first.SetItem(ctx, "key", "persisted"))
	require.NoError(t, first.Close())

	second, err := Open(SQLite, path)
	require.NoError(t, err)
	defer second.Close()

	value, err := second.GetItem(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "persisted", value)
}

func TestPostgres(t *testing.T) {
	testStorageContract(t, setupPostgres(t))
}

func TestOpen_UnsupportedDialect(t *testing.T) {
	_, err := Open(Dialect("mysql"), "dsn")
	require.ErrorContains(t, err, "unsupported sql dialect")
}
