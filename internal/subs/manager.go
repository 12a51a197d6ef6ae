package subs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"birdfeed/internal/storage"
	"birdfeed/pkg/logx"
)

// ErrNotFound is returned by Cursor for an account id with no row at all.
var ErrNotFound = storage.ErrNotFound

// Manager enforces the subscription lifecycle on top of the store:
// idempotent subscribe, soft-delete unsubscribe with cursor reset, and
// cursor advancement for the poller. Each operation is one transaction.
type Manager struct {
	db  *storage.DB
	log logx.Logger
	now func() time.Time
}

func NewManager(db *storage.DB, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{db: db, log: log, now: time.Now}
}

// Subscribe activates a subscription for accountID.
//
// Three cases, all non-erroring:
//   - no row: insert an active one
//   - inactive row: reactivate (fresh subscribed_at, cursor stays cleared)
//   - active row: refresh the display name only; activation state and
//     cursor are left alone
func (m *Manager) Subscribe(ctx context.Context, accountID int64, displayName string) error {
	return m.db.Tx(ctx, func(tx *storage.Tx) error {
		existing, err := tx.SubscriptionByAccountID(ctx, accountID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			m.log.Info("adding subscription",
				logx.Int64("account_id", accountID), logx.String("name", displayName))
			return tx.Insert(ctx, accountID, displayName, m.now())
		case err != nil:
			return fmt.Errorf("subs: subscribe %d: %w", accountID, err)
		}

		if !existing.Active() {
			m.log.Info("re-enabling subscription",
				logx.Int64("account_id", accountID), logx.String("name", displayName))
			return tx.Reactivate(ctx, accountID, displayName, m.now())
		}

		m.log.Debug("already subscribed",
			logx.Int64("account_id", accountID), logx.String("name", displayName))
		if existing.DisplayName != displayName {
			return tx.SetDisplayName(ctx, accountID, displayName)
		}
		return nil
	})
}

// Unsubscribe soft-deletes the active subscription whose display name
// matches case-insensitively, clearing the cursor so a later re-subscribe
// starts a fresh history. We match by name rather than id because the caller
// only has the typed handle, and suspended or renamed accounts may no longer
// resolve to an id.
//
// Returns false (and no error) when no active row matches.
func (m *Manager) Unsubscribe(ctx context.Context, displayName string) (bool, error) {
	found := false
	err := m.db.Tx(ctx, func(tx *storage.Tx) error {
		sub, err := tx.ActiveByDisplayName(ctx, displayName)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("subs: unsubscribe %q: %w", displayName, err)
		}
		found = true
		m.log.Info("unsubscribing",
			logx.Int64("account_id", sub.AccountID), logx.String("name", sub.DisplayName))
		return tx.Deactivate(ctx, sub.AccountID, m.now())
	})
	return found, err
}

// ListActive returns the current active account ids, read at call time.
func (m *Manager) ListActive(ctx context.Context) ([]int64, error) {
	return m.db.ListActiveAccountIDs(ctx)
}

// ActiveSubscriptions returns full rows for the active set (chat "list").
func (m *Manager) ActiveSubscriptions(ctx context.Context) ([]storage.Subscription, error) {
	return m.db.ListActive(ctx)
}

// Cursor returns the highest item id already delivered for the account, or
// nil when it was never polled. ErrNotFound when no row exists at all.
func (m *Manager) Cursor(ctx context.Context, accountID int64) (*int64, error) {
	return m.db.Cursor(ctx, accountID)
}

// AdvanceCursor moves the cursor. Calling it with the current value is a
// semantic no-op beyond the refresh timestamp.
func (m *Manager) AdvanceCursor(ctx context.Context, accountID, itemID int64) error {
	return m.db.AdvanceCursor(ctx, accountID, itemID, m.now())
}

// TouchCursor records a completed poll that moved nothing.
func (m *Manager) TouchCursor(ctx context.Context, accountID int64) error {
	return m.db.TouchCursor(ctx, accountID, m.now())
}

// UpdateDisplayName refreshes the latest known handle (accounts rename).
func (m *Manager) UpdateDisplayName(ctx context.Context, accountID int64, name string) error {
	return m.db.SetDisplayName(ctx, accountID, name)
}
