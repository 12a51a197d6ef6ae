// Package storage is the persistence layer for subscriptions.
//
// It is pure row access over a single SQLite file: no lifecycle policy lives
// here. The subscription rules (idempotent subscribe, soft delete, cursor
// reset) belong to internal/subs.
package storage
