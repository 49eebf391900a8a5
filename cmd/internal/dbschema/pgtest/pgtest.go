// Package pgtest opens an isolated Postgres schema for integration tests.
//
// Tests are skipped unless HUDDLE_DATABASE_URL is set. Outside CI an
// unreachable server also skips rather than fails.
package pgtest

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"huddle/cmd/internal/dbschema"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// EnvDatabaseURL is the variable that enables integration tests.
const EnvDatabaseURL = "HUDDLE_DATABASE_URL"

// Open returns a pool and a freshly created schema holding all tables.
// The schema is dropped and the pool closed on test cleanup.
func Open(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if raw == "" {
		t.Skipf("%s is not set; skipping Postgres integration test", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		if unreachable(err) {
			t.Skipf("Postgres unreachable: %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	conn.Release()

	schema := "huddle_it_" + strings.ToLower(ulid.Make().String())
	if err := dbschema.Apply(ctx, pool, schema); err != nil {
		pool.Close()
		t.Fatalf("apply schema: %v", err)
	}

	t.Cleanup(func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_ = dbschema.Drop(dropCtx, pool, schema)
		pool.Close()
	})

	return pool, schema
}

func unreachable(err error) bool {
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "no such host")
}
