// Package testutil holds helpers for Postgres-backed integration tests.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/nekogravitycat/bookshare-backend/migrations"
)

// NewTestPool connects to TEST_DB_DSN and applies migrations, skipping the
// test when no database is configured. Tests share the database, so they
// create their own rows with unique ids instead of truncating tables.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	// Attempt to load .env from the repository root
	_ = godotenv.Load("../../.env")

	dsn := strings.TrimSpace(os.Getenv("TEST_DB_DSN"))
	if dsn == "" {
		t.Skip("set TEST_DB_DSN to run postgres integration tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("postgres not reachable at TEST_DB_DSN: %v", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// CreateUser inserts a user with a unique email and returns its id.
func CreateUser(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	var id string
	email := uuid.NewString() + "@test.local"
	err := pool.QueryRow(context.Background(),
		`INSERT INTO public.users (email, password_hash) VALUES ($1, 'x') RETURNING id`, email).Scan(&id)
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return id
}

// CreateResource inserts an AVAILABLE resource owned by ownerID and returns its id.
func CreateResource(t *testing.T, pool *pgxpool.Pool, ownerID string) string {
	t.Helper()

	var id string
	err := pool.QueryRow(context.Background(),
		`INSERT INTO public.resources (owner_id, title) VALUES ($1, 'Test Copy') RETURNING id`, ownerID).Scan(&id)
	if err != nil {
		t.Fatalf("create test resource: %v", err)
	}
	return id
}
