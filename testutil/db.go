// Package testutil holds shared test helpers.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/onnwee/shooting-star/db"
)

// SetupTestDB returns a migrated database for a test. It uses Postgres when
// TEST_PG_DSN is set (tables are emptied first) and otherwise a fresh sqlite
// file in the test's temp dir.
func SetupTestDB(t *testing.T) (*sql.DB, db.Dialect) {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		dsn = "sqlite:" + filepath.Join(t.TempDir(), "test.db")
	}
	database, d, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	ctx := context.Background()
	if err := db.Migrate(ctx, database, d); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	if d == db.Postgres {
		if _, err := database.ExecContext(ctx, `TRUNCATE users, kv RESTART IDENTITY`); err != nil {
			t.Fatalf("failed to reset tables: %v", err)
		}
	}
	return database, d
}
