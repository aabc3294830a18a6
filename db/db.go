// Package db provides database connection helpers, schema migration, and small data access helpers.
//
// Two backends are supported through database/sql: Postgres (pgx stdlib driver,
// registered as "pgx") and SQLite (modernc.org/sqlite, registered as "sqlite").
// The backend is picked from the DSN; queries are written with Postgres-style
// $N placeholders and rewritten by Dialect.Rebind for SQLite.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "modernc.org/sqlite"             // pure-go sqlite driver registered as 'sqlite'
)

// Dialect identifies the SQL backend behind a *sql.DB.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DefaultDSN is a local sqlite file so the bot runs without external services.
const DefaultDSN = "sqlite:data/shooting_star.db"

// DialectFor guesses the backend from a DSN. postgres:// and key=value
// connection strings select Postgres; everything else is treated as a sqlite path.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres
	case strings.Contains(lower, "host=") && !strings.HasPrefix(lower, "sqlite:") && !strings.HasPrefix(lower, "file:"):
		return Postgres
	default:
		return SQLite
	}
}

// Connect opens the database named by dsn (or DefaultDSN when empty) and
// reports which dialect it speaks.
func Connect(dsn string) (*sql.DB, Dialect, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	d := DialectFor(dsn)
	switch d {
	case Postgres:
		dbx, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, d, fmt.Errorf("open postgres: %w", err)
		}
		return dbx, d, nil
	default:
		dbx, err := sql.Open("sqlite", sqlitePath(dsn))
		if err != nil {
			return nil, d, fmt.Errorf("open sqlite: %w", err)
		}
		// sqlite allows a single writer; serialize through one connection
		dbx.SetMaxOpenConns(1)
		return dbx, d, nil
	}
}

func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "sqlite://")
	p = strings.TrimPrefix(p, "sqlite:")
	if !strings.Contains(p, "_pragma=busy_timeout") {
		sep := "?"
		if strings.Contains(p, "?") {
			sep = "&"
		}
		p += sep + "_pragma=busy_timeout(5000)"
	}
	return p
}

// Rebind rewrites $N placeholders into the form the dialect expects.
// Placeholders must appear in ascending order, each exactly once.
func (d Dialect) Rebind(q string) string {
	if d != SQLite {
		return q
	}
	var b strings.Builder
	b.Grow(len(q))
	for i := 0; i < len(q); i++ {
		if q[i] == '$' && i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
