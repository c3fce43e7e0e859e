// Package capture ingests single conversation turns into the active storage
// tier, enforcing per-session retention. Both the HTTP capture endpoint and
// the transcript watcher write through this service.
package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/papercomputeco/rewind/pkg/storage"
	"github.com/papercomputeco/rewind/pkg/turn"
	"github.com/papercomputeco/rewind/pkg/utils"
)

// DefaultRetainTurns is the per-session retention cap: inserting beyond it
// prunes the oldest excess turns for that session.
const DefaultRetainTurns = 500

// Request carries one turn to ingest. CreatedAt is never caller-supplied —
// the service stamps it at ingestion.
type Request struct {
	SessionKey string
	TurnType   string
	Content    string
	Metadata   map[string]any
}

// Result reports a successful capture.
type Result struct {
	OK        bool
	ID        string
	Timestamp time.Time
}

// Service validates and writes turns through a storage.Driver.
type Service struct {
	driver storage.Driver
	logger *slog.Logger
	retain int
}

// NewService creates a capture service. retainTurns <= 0 selects
// DefaultRetainTurns.
func NewService(driver storage.Driver, logger *slog.Logger, retainTurns int) *Service {
	if retainTurns <= 0 {
		retainTurns = DefaultRetainTurns
	}

	return &Service{
		driver: driver,
		logger: logger,
		retain: retainTurns,
	}
}

// Capture validates the request, derives the token estimate, stamps the
// creation time, and inserts the turn. After a successful insert it prunes
// the session down to the retention cap; prune failures are logged but never
// fail the capture.
func (s *Service) Capture(ctx context.Context, req Request) (*Result, error) {
	if req.SessionKey == "" {
		return nil, &ValidationError{Field: "session_key"}
	}
	if req.TurnType == "" {
		return nil, &ValidationError{Field: "turn_type"}
	}
	if req.Content == "" {
		return nil, &ValidationError{Field: "content"}
	}

	content := turn.Truncate(req.Content)
	t := &turn.Turn{
		SessionKey:    req.SessionKey,
		TurnType:      req.TurnType,
		Content:       content,
		TokenEstimate: turn.EstimateTokens(content),
		CreatedAt:     time.Now(),
		Metadata:      req.Metadata,
	}

	res, err := s.driver.Insert(ctx, t)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("captured turn",
		"session_key", req.SessionKey,
		"turn_type", req.TurnType,
		"preview", utils.Truncate(content, 48),
	)

	if err := s.driver.PruneOlderThan(ctx, req.SessionKey, s.retain); err != nil {
		s.logger.Warn("retention prune failed",
			"session_key", req.SessionKey,
			"error", err,
		)
	}

	return &Result{OK: true, ID: res.ID, Timestamp: res.CreatedAt}, nil
}
