// Package storage defines the pluggable persistence contract for conversation
// turns. Three tiers implement Driver in decreasing durability preference:
// postgres (cloud relational, survives total local loss), sqlite (embedded
// transactional, survives restarts), and flatfile (last-resort append-only
// JSONL). The tier is selected once at startup by the probe chain in
// pkg/storage/utils and never re-selected at runtime.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/rewind/pkg/turn"
)

// InsertResult reports the identity and timestamp assigned to a stored turn.
type InsertResult struct {
	ID        string
	CreatedAt time.Time
}

// Stats describes the aggregate state of the active tier.
type Stats struct {
	TotalTurns    int    `json:"total_turns"`
	TotalSessions int    `json:"total_sessions"`
	Tier          string `json:"tier"`
}

// Driver is the contract all three tiers implement identically.
type Driver interface {
	// Insert stores a turn. Fails with WriteError on I/O or network failure
	// and is safe to retry — callers do not deduplicate.
	Insert(ctx context.Context, t *turn.Turn) (*InsertResult, error)

	// QueryRecent returns turns for a session created after since, newest
	// first, up to limit. An unknown session yields an empty slice, not an
	// error. Callers reverse to chronological order.
	QueryRecent(ctx context.Context, sessionKey string, since time.Time, limit int) ([]*turn.Turn, error)

	// ListSessions returns all known session keys.
	ListSessions(ctx context.Context) ([]string, error)

	// Stats returns aggregate counts and the tier name.
	Stats(ctx context.Context) (*Stats, error)

	// PruneOlderThan removes all but the newest keepCount turns for one
	// session.
	PruneOlderThan(ctx context.Context, sessionKey string, keepCount int) error

	// DeleteOlderThan removes every turn created before cutoff, across all
	// sessions, and reports how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Persistent reports whether stored turns survive a process restart.
	Persistent() bool

	// Close flushes and releases the underlying store.
	Close() error
}

// Searcher is the optional full-text search capability. Only the cloud tier
// implements it; callers feature-detect with a type assertion.
type Searcher interface {
	Search(ctx context.Context, query, sessionKey string, limit int) ([]*turn.Turn, error)
}
