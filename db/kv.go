package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetKV returns the stored value for key. ok is false when no row exists.
func GetKV(ctx context.Context, dbx *sql.DB, d Dialect, key string) (value string, ok bool, err error) {
	var v sql.NullString
	err = dbx.QueryRowContext(ctx, d.Rebind(`SELECT value FROM kv WHERE key=$1`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %q: %w", key, err)
	}
	return v.String, true, nil
}

// PutKV upserts key, replacing any previous value.
func PutKV(ctx context.Context, dbx *sql.DB, d Dialect, key, value string) error {
	q := `INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := dbx.ExecContext(ctx, d.Rebind(q), key, value); err != nil {
		return fmt.Errorf("put kv %q: %w", key, err)
	}
	return nil
}
