// Package ledger stores per-user coin balances in the users table.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/shooting-star/db"
)

// DefaultTimeout bounds every ledger query so a stuck database cannot stall
// the caller.
const DefaultTimeout = 5 * time.Second

// ErrNegativeAmount is returned by AddCoins for amounts below zero; balances
// only grow through awards.
var ErrNegativeAmount = errors.New("ledger: amount must not be negative")

// Entry is one leaderboard row.
type Entry struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"username"`
	Coins       int64  `json:"coins"`
}

// Ledger reads and updates balances.
type Ledger struct {
	db      *sql.DB
	dialect db.Dialect
	timeout time.Duration
}

// New returns a ledger over an already migrated database.
func New(dbx *sql.DB, d db.Dialect) *Ledger {
	return &Ledger{db: dbx, dialect: d, timeout: DefaultTimeout}
}

// Balance returns the user's coins, 0 for users never credited.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var coins int64
	err := l.db.QueryRowContext(ctx, l.dialect.Rebind(`SELECT coins FROM users WHERE user_id = $1`), userID).Scan(&coins)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance for %d: %w", userID, err)
	}
	return coins, nil
}

// AddCoins credits amount to the user, creating the row on first award and
// refreshing the stored display name otherwise. It returns the balance after
// the credit, read in the same statement.
func (l *Ledger) AddCoins(ctx context.Context, userID int64, displayName string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	q := `INSERT INTO users (user_id, username, coins) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			coins = users.coins + EXCLUDED.coins,
			updated_at = CURRENT_TIMESTAMP
		RETURNING coins`
	var total int64
	if err := l.db.QueryRowContext(ctx, l.dialect.Rebind(q), userID, displayName, amount).Scan(&total); err != nil {
		return 0, fmt.Errorf("add %d coins to %d: %w", amount, userID, err)
	}
	return total, nil
}

// Top returns up to n users by balance, highest first. Equal balances keep
// the order in which users were first credited.
func (l *Ledger) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, l.dialect.Rebind(`SELECT user_id, username, coins FROM users ORDER BY coins DESC, id ASC LIMIT $1`), n)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, n)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.Coins); err != nil {
			return nil, fmt.Errorf("leaderboard scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard rows: %w", err)
	}
	return out, nil
}

// Ping checks the underlying database.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
