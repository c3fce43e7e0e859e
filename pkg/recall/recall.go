// Package recall reconstructs a bounded recent-context window for a session:
// a trailing time window, token-budget packed with a deliberate recency bias
// so the newest turns always survive truncation.
package recall

import (
	"context"
	"log/slog"
	"time"

	"github.com/papercomputeco/rewind/pkg/storage"
	"github.com/papercomputeco/rewind/pkg/turn"
)

const (
	// DefaultWindow is the trailing time range considered when no override
	// is given.
	DefaultWindow = time.Hour

	// DefaultMaxTokens caps the summed token estimates of a window.
	DefaultMaxTokens = 20000

	// DefaultLimit bounds how many turns are even considered.
	DefaultLimit = 20
)

// Options tune a single retrieval. Zero values select the defaults; Since,
// when set, overrides the cutoff computed from Window.
type Options struct {
	Window    time.Duration
	MaxTokens int
	Limit     int
	Since     time.Time
}

// Window is a token-budgeted slice of recent turns in chronological order.
type Window struct {
	SessionKey  string
	Turns       []*turn.Turn
	TotalTokens int
}

// Count returns the number of turns in the window.
func (w *Window) Count() int { return len(w.Turns) }

// Service reads windows from a storage.Driver.
type Service struct {
	driver storage.Driver
	logger *slog.Logger
}

// NewService creates a recall service.
func NewService(driver storage.Driver, logger *slog.Logger) *Service {
	return &Service{driver: driver, logger: logger}
}

// Window returns the most recent turns for the session that fit the token
// budget, oldest first. An unknown session yields an empty window, not an
// error.
func (s *Service) Window(ctx context.Context, sessionKey string, opts Options) (*Window, error) {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	since := opts.Since
	if since.IsZero() {
		since = time.Now().Add(-opts.Window)
	}

	// Storage returns newest first; pack from the newest end so recency
	// wins when the window holds more than the budget allows.
	recent, err := s.driver.QueryRecent(ctx, sessionKey, since, opts.Limit)
	if err != nil {
		return nil, err
	}

	total := 0
	included := make([]*turn.Turn, 0, len(recent))
	for _, t := range recent {
		if total+t.TokenEstimate > opts.MaxTokens {
			break
		}
		total += t.TokenEstimate
		included = append(included, t)
	}

	// Reverse back to chronological order.
	for i, j := 0, len(included)-1; i < j; i, j = i+1, j-1 {
		included[i], included[j] = included[j], included[i]
	}

	return &Window{
		SessionKey:  sessionKey,
		Turns:       included,
		TotalTokens: total,
	}, nil
}
