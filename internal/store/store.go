// Package store provides persistence primitives and driver abstractions
// for the presence history.
package store

import (
	"context"
	"errors"
	"time"
)

// Common errors for store operations.
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, migrate).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name.
	Name() string
}

// PresenceStore defines operations on the presence time series and the
// directory working set.
type PresenceStore interface {
	// UpsertMember creates or refreshes a directory member row.
	UpsertMember(ctx context.Context, m *Member) error

	// DeactivateMembersNotIn marks active members absent from ids as
	// inactive (they left the polled group). Returns the count changed.
	DeactivateMembersNotIn(ctx context.Context, ids []string) (int64, error)

	// ListMembers returns members, optionally only active ones,
	// ordered by display name.
	ListMembers(ctx context.Context, activeOnly bool) ([]*Member, error)

	// Append persists one history record. A record with the same
	// (user_id, captured_at) as an existing row is a silent no-op, so
	// re-polling the same cycle is idempotent. The write is a single
	// atomic row insert; a failure never corrupts committed records.
	Append(ctx context.Context, rec *PresenceRecord) error

	// LastRecord returns the most recent record for a user, or
	// ErrNotFound when the user has no history.
	LastRecord(ctx context.Context, userID string) (*PresenceRecord, error)

	// History returns all records for a user with captured_at in
	// [from, to], ascending by captured_at.
	History(ctx context.Context, userID string, from, to time.Time) ([]*PresenceRecord, error)
}

// Member is a directory user row. Rows are upserted each cycle and
// flipped inactive when the user disappears from the directory.
type Member struct {
	ID          string `json:"id" gorm:"primaryKey"`
	DisplayName string `json:"display_name" gorm:"index"`
	Email       string `json:"email"`
	Active      bool   `json:"active"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// PresenceRecord is one append-only history row. The composite primary
// key (UserID, CapturedAt) enforces the uniqueness invariant and backs
// per-user range scans. Rows are never updated or deleted.
type PresenceRecord struct {
	UserID     string `json:"user_id" gorm:"primaryKey"`
	CapturedAt int64  `json:"captured_at" gorm:"primaryKey;autoIncrement:false"` // unix seconds, UTC
	Status     string `json:"status"`
	Activity   string `json:"activity"`
}
