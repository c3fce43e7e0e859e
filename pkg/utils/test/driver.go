// Package testutils provides shared test doubles for the storage contract,
// so service-level suites can assert on calls without standing up a real
// tier.
package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/papercomputeco/rewind/pkg/storage"
	"github.com/papercomputeco/rewind/pkg/turn"
)

// MockDriver is a storage driver that records calls and returns configurable
// results.
type MockDriver struct {
	// InsertedTurns accumulates all turns passed to Insert.
	InsertedTurns []*turn.Turn

	// InsertErr causes Insert to fail.
	InsertErr error

	// QueryResults is returned by QueryRecent; callers provide it newest
	// first, the way real tiers do.
	QueryResults []*turn.Turn

	// QueryErr causes QueryRecent to fail.
	QueryErr error

	// LastQuerySince and LastQueryLimit record the most recent QueryRecent
	// arguments.
	LastQuerySince time.Time
	LastQueryLimit int

	// Sessions is returned by ListSessions.
	Sessions []string

	// PrunedSession and PrunedKeep record the most recent PruneOlderThan
	// arguments; PruneErr makes it fail.
	PrunedSession string
	PrunedKeep    int
	PruneErr      error

	// DeleteCount is returned by DeleteOlderThan.
	DeleteCount int64

	// Closed reports whether Close was called.
	Closed bool
}

// NewMockDriver creates a new mock storage driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{}
}

func (m *MockDriver) Insert(_ context.Context, t *turn.Turn) (*storage.InsertResult, error) {
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	m.InsertedTurns = append(m.InsertedTurns, t)
	return &storage.InsertResult{
		ID:        fmt.Sprintf("turn-%d", len(m.InsertedTurns)),
		CreatedAt: t.CreatedAt,
	}, nil
}

func (m *MockDriver) QueryRecent(_ context.Context, _ string, since time.Time, limit int) ([]*turn.Turn, error) {
	m.LastQuerySince = since
	m.LastQueryLimit = limit
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.QueryResults, nil
}

func (m *MockDriver) ListSessions(context.Context) ([]string, error) {
	return m.Sessions, nil
}

func (m *MockDriver) Stats(context.Context) (*storage.Stats, error) {
	return &storage.Stats{
		TotalTurns:    len(m.InsertedTurns),
		TotalSessions: len(m.Sessions),
		Tier:          "mock",
	}, nil
}

func (m *MockDriver) PruneOlderThan(_ context.Context, sessionKey string, keepCount int) error {
	m.PrunedSession = sessionKey
	m.PrunedKeep = keepCount
	return m.PruneErr
}

func (m *MockDriver) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return m.DeleteCount, nil
}

func (m *MockDriver) Persistent() bool { return false }

func (m *MockDriver) Close() error {
	m.Closed = true
	return nil
}
