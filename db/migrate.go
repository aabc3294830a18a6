package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

func migrationsDir(d Dialect) string {
	return "migrations/" + string(d)
}

func newMigrator(dbx *sql.DB, d Dialect) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, migrationsDir(d))
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	var driver database.Driver
	switch d {
	case Postgres:
		driver, err = postgres.WithInstance(dbx, &postgres.Config{})
	case SQLite:
		driver, err = sqlite.WithInstance(dbx, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s driver: %w", d, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(d), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies the versioned migrations embedded under db/migrations/<dialect>.
// It is idempotent and safe to run on every start.
//
// Migration files follow the golang-migrate naming convention:
//
//	000001_description.up.sql   - applies the migration
//	000001_description.down.sql - reverts the migration
func RunMigrations(dbx *sql.DB, d Dialect) error {
	m, err := newMigrator(dbx, d)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("could not determine migration version", slog.Any("error", err), slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d - manual intervention required", version)
	}

	slog.Info("migrations applied successfully",
		slog.Uint64("version", uint64(version)),
		slog.String("dialect", string(d)),
		slog.String("component", "db_migrate"))
	return nil
}

// GetMigrationVersion returns the current migration version and dirty state.
func GetMigrationVersion(dbx *sql.DB, d Dialect) (version uint, dirty bool, err error) {
	m, err := newMigrator(dbx, d)
	if err != nil {
		return 0, false, err
	}
	v, dirtyState, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return v, dirtyState, nil
}

// Migrate applies every embedded up-migration statement by statement without
// version tracking. Every statement is IF NOT EXISTS, so it is safe to repeat.
// main falls back to it when RunMigrations fails; tests use it directly.
func Migrate(ctx context.Context, dbx *sql.DB, d Dialect) error {
	dir := migrationsDir(d)
	names, err := fs.Glob(migrationFS, dir+"/*.up.sql")
	if err != nil {
		return fmt.Errorf("list embedded migrations: %w", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("no embedded migrations for dialect %q", d)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		for i, stmt := range splitStatements(string(body)) {
			if _, err := dbx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%s migrate %s step %d failed: %w", d, name, i, err)
			}
		}
	}
	return nil
}

func splitStatements(body string) []string {
	var out []string
	for _, s := range strings.Split(body, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
