// Package testutil provides shared test infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// appTables are the schema's tables in no particular order; CASCADE handles
// the foreign keys between them. goose_db_version is deliberately absent so
// migrations are not re-applied on every test.
var appTables = []string{
	"dispute_evidence",
	"disputes",
	"processed_events",
	"transactions",
	"escrow_accounts",
	"bookings",
}

// PGTest connects to the database named by POSTGRES_URL, brings the schema up
// to date with goose, and returns the connection plus a cleanup function that
// empties the application tables. Skips the test when POSTGRES_URL is unset.
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: set goose dialect: %v", err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir(t)); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: run migrations: %v", err)
	}

	cleanup := func() {
		stmt := "TRUNCATE "
		for i, table := range appTables {
			if i > 0 {
				stmt += ", "
			}
			stmt += table
		}
		// Best effort; a failed truncate surfaces as a dirty-state failure
		// in the next test rather than here.
		_, _ = db.ExecContext(ctx, stmt+" CASCADE")
		_ = db.Close()
	}
	return db, cleanup
}

// migrationsDir walks up from the test's working directory to the repo-level
// migrations/ directory, so package tests find it at any nesting depth.
func migrationsDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("pgtest: getwd: %v", err)
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("pgtest: no migrations/ directory found walking up from cwd")
		}
		dir = parent
	}
}
