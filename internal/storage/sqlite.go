package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"birdfeed/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const timeFormat = time.RFC3339Nano

// DB wraps the SQLite file holding the subscriptions table.
type DB struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	d := &DB{db: db, log: log}
	if err := d.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, string(b))
	return err
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Tx runs fn inside a transaction, rolling back on error or panic.
func (d *DB) Tx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Tx exposes row operations scoped to one transaction.
type Tx struct {
	tx *sql.Tx
}

const subscriptionCols = `account_id, display_name, subscribed_at, unsubscribed_at, latest_item_id, cursor_refreshed_at`

func (t *Tx) SubscriptionByAccountID(ctx context.Context, accountID int64) (Subscription, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE account_id = ?`, accountID)
	return scanSubscription(row)
}

// ActiveByDisplayName matches the latest known handle case-insensitively,
// among active rows only.
func (t *Tx) ActiveByDisplayName(ctx context.Context, name string) (Subscription, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions
		 WHERE unsubscribed_at IS NULL AND lower(display_name) = lower(?)`, name)
	return scanSubscription(row)
}

func (t *Tx) Insert(ctx context.Context, accountID int64, name string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO subscriptions(account_id, display_name, subscribed_at) VALUES(?,?,?)`,
		accountID, name, at.UTC().Format(timeFormat))
	return err
}

// Reactivate re-enables a soft-deleted row. The cursor columns are left
// untouched; the unsubscribe already cleared them.
func (t *Tx) Reactivate(ctx context.Context, accountID int64, name string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE subscriptions
		 SET display_name = ?, subscribed_at = ?, unsubscribed_at = NULL
		 WHERE account_id = ?`,
		name, at.UTC().Format(timeFormat), accountID)
	return err
}

func (t *Tx) SetDisplayName(ctx context.Context, accountID int64, name string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE subscriptions SET display_name = ? WHERE account_id = ?`, name, accountID)
	return err
}

// Deactivate soft-deletes the row and clears the cursor so a future
// re-subscribe starts a fresh history.
func (t *Tx) Deactivate(ctx context.Context, accountID int64, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE subscriptions
		 SET unsubscribed_at = ?, latest_item_id = NULL, cursor_refreshed_at = NULL
		 WHERE account_id = ?`,
		at.UTC().Format(timeFormat), accountID)
	return err
}

// ---- single-statement reads/writes (no explicit transaction needed) ----

func (d *DB) ListActiveAccountIDs(ctx context.Context) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT account_id FROM subscriptions WHERE unsubscribed_at IS NULL ORDER BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *DB) ListActive(ctx context.Context) ([]Subscription, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions
		 WHERE unsubscribed_at IS NULL ORDER BY lower(display_name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Cursor returns the stored cursor, nil when the account was never polled.
func (d *DB) Cursor(ctx context.Context, accountID int64) (*int64, error) {
	var v sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT latest_item_id FROM subscriptions WHERE account_id = ?`, accountID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.Int64, nil
}

func (d *DB) AdvanceCursor(ctx context.Context, accountID, itemID int64, at time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE subscriptions SET latest_item_id = ?, cursor_refreshed_at = ? WHERE account_id = ?`,
		itemID, at.UTC().Format(timeFormat), accountID)
	return err
}

// TouchCursor records "we checked" without moving the cursor.
func (d *DB) TouchCursor(ctx context.Context, accountID int64, at time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE subscriptions SET cursor_refreshed_at = ? WHERE account_id = ?`,
		at.UTC().Format(timeFormat), accountID)
	return err
}

func (d *DB) SetDisplayName(ctx context.Context, accountID int64, name string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE subscriptions SET display_name = ? WHERE account_id = ?`, name, accountID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (Subscription, error) {
	var (
		s       Subscription
		subAt   string
		unsubAt sql.NullString
		itemID  sql.NullInt64
		curAt   sql.NullString
	)
	err := row.Scan(&s.AccountID, &s.DisplayName, &subAt, &unsubAt, &itemID, &curAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, err
	}

	if s.SubscribedAt, err = time.Parse(timeFormat, subAt); err != nil {
		return Subscription{}, fmt.Errorf("storage: bad subscribed_at %q: %w", subAt, err)
	}
	if unsubAt.Valid {
		ts, err := time.Parse(timeFormat, unsubAt.String)
		if err != nil {
			return Subscription{}, fmt.Errorf("storage: bad unsubscribed_at %q: %w", unsubAt.String, err)
		}
		s.UnsubscribedAt = &ts
	}
	if itemID.Valid {
		v := itemID.Int64
		s.LatestItemID = &v
	}
	if curAt.Valid {
		ts, err := time.Parse(timeFormat, curAt.String)
		if err != nil {
			return Subscription{}, fmt.Errorf("storage: bad cursor_refreshed_at %q: %w", curAt.String, err)
		}
		s.CursorRefreshedAt = &ts
	}
	return s, nil
}
