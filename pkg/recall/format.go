package recall

import (
	"context"
	"fmt"
	"strings"
)

// NoContextSentinel is returned by Formatted both when the window is empty
// and when the store could not be reached. Downstream injection hooks match
// this exact string, so it must stay stable.
const NoContextSentinel = "No recent context available."

const turnSeparator = "\n\n"

// displayPrefixes maps turn types to their human-readable labels. Unknown
// types fall back to the raw type string.
var displayPrefixes = map[string]string{
	"user":          "User",
	"assistant":     "Assistant",
	"action":        "Action",
	"thinking":      "Thinking",
	"memory_recall": "Memory",
}

// Formatted renders the window as a human-readable transcript: one
// "[HH:MM:SS] Prefix: content" block per turn in local time, separated by
// blank lines. Fetch failures degrade to the sentinel instead of an error —
// context recovery is best-effort and must never block the agent bootstrap
// it serves.
func (s *Service) Formatted(ctx context.Context, sessionKey string, opts Options) string {
	window, err := s.Window(ctx, sessionKey, opts)
	if err != nil {
		s.logger.Warn("context fetch failed, degrading to sentinel",
			"session_key", sessionKey,
			"error", err,
		)
		return NoContextSentinel
	}
	if window.Count() == 0 {
		return NoContextSentinel
	}

	blocks := make([]string, 0, window.Count())
	for _, t := range window.Turns {
		prefix, ok := displayPrefixes[t.TurnType]
		if !ok {
			prefix = t.TurnType
		}
		blocks = append(blocks, fmt.Sprintf("[%s] %s: %s",
			t.CreatedAt.Local().Format("15:04:05"), prefix, t.Content))
	}

	return strings.Join(blocks, turnSeparator)
}
