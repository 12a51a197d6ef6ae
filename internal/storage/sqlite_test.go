package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"birdfeed/pkg/logx"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "subs.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertAndLookup(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Now()

	err := db.Tx(ctx, func(tx *Tx) error {
		return tx.Insert(ctx, 1, "kedo48", now)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	var sub Subscription
	err = db.Tx(ctx, func(tx *Tx) error {
		var err error
		sub, err = tx.SubscriptionByAccountID(ctx, 1)
		return err
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if sub.DisplayName != "kedo48" || !sub.Active() {
		t.Fatalf("unexpected row: %+v", sub)
	}
	if sub.LatestItemID != nil || sub.CursorRefreshedAt != nil {
		t.Fatalf("fresh row should have no cursor: %+v", sub)
	}
	if !sub.SubscribedAt.Equal(now.UTC()) {
		t.Fatalf("subscribed_at round trip: want %v, got %v", now.UTC(), sub.SubscribedAt)
	}
}

func TestLookupMissingRow(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.Tx(ctx, func(tx *Tx) error {
		_, err := tx.SubscriptionByAccountID(ctx, 99)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := db.Cursor(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cursor on missing row: expected ErrNotFound, got %v", err)
	}
}

func TestActiveByDisplayNameCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.Tx(ctx, func(tx *Tx) error {
		return tx.Insert(ctx, 1, "Kedo48", time.Now())
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	err = db.Tx(ctx, func(tx *Tx) error {
		sub, err := tx.ActiveByDisplayName(ctx, "kedo48")
		if err != nil {
			return err
		}
		if sub.AccountID != 1 {
			t.Fatalf("unexpected account id %d", sub.AccountID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
}

func TestDeactivateClearsCursor(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Tx(ctx, func(tx *Tx) error { return tx.Insert(ctx, 1, "kedo48", time.Now()) }); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.AdvanceCursor(ctx, 1, 500, time.Now()); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if err := db.Tx(ctx, func(tx *Tx) error { return tx.Deactivate(ctx, 1, time.Now()) }); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	var sub Subscription
	err := db.Tx(ctx, func(tx *Tx) error {
		var err error
		sub, err = tx.SubscriptionByAccountID(ctx, 1)
		return err
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if sub.Active() {
		t.Fatal("row still active after deactivate")
	}
	if sub.LatestItemID != nil || sub.CursorRefreshedAt != nil {
		t.Fatalf("cursor not cleared: %+v", sub)
	}

	ids, err := db.ListActiveAccountIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no active ids, got %v", ids)
	}
}

func TestCursorOps(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Tx(ctx, func(tx *Tx) error { return tx.Insert(ctx, 1, "kedo48", time.Now()) }); err != nil {
		t.Fatalf("insert: %v", err)
	}

	cur, err := db.Cursor(ctx, 1)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cur != nil {
		t.Fatalf("expected nil cursor, got %d", *cur)
	}

	if err := db.AdvanceCursor(ctx, 1, 42, time.Now()); err != nil {
		t.Fatalf("advance: %v", err)
	}
	cur, err = db.Cursor(ctx, 1)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cur == nil || *cur != 42 {
		t.Fatalf("expected cursor 42, got %v", cur)
	}

	// Touch moves only the refresh timestamp.
	if err := db.TouchCursor(ctx, 1, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	cur, err = db.Cursor(ctx, 1)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cur == nil || *cur != 42 {
		t.Fatalf("touch moved the cursor: %v", cur)
	}
}

func TestListActiveOrdering(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.Tx(ctx, func(tx *Tx) error {
		if err := tx.Insert(ctx, 2, "zebra", time.Now()); err != nil {
			return err
		}
		return tx.Insert(ctx, 1, "Aardvark", time.Now())
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	subs, err := db.ListActive(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 || subs[0].DisplayName != "Aardvark" || subs[1].DisplayName != "zebra" {
		t.Fatalf("unexpected ordering: %+v", subs)
	}
}
