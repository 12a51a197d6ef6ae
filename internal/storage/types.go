package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no subscription row matches.
var ErrNotFound = errors.New("storage: subscription not found")

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Subscription is one row: one per external account ever subscribed to.
// A row is active iff UnsubscribedAt is nil.
type Subscription struct {
	AccountID         int64
	DisplayName       string
	SubscribedAt      time.Time
	UnsubscribedAt    *time.Time
	LatestItemID      *int64
	CursorRefreshedAt *time.Time
}

func (s Subscription) Active() bool { return s.UnsubscribedAt == nil }
