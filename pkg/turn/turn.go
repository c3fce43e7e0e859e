// Package turn defines the atomic persisted unit of the rewind system: one
// captured conversation turn. Turns are immutable once written — every field
// is assigned at ingestion and never updated.
package turn

import "time"

const (
	// CharsPerToken is the fixed divisor for token estimation. The estimate
	// is computed once at ingestion and never recomputed.
	CharsPerToken = 4

	// MaxContentLength bounds how much text a single turn may carry.
	// Content beyond this is truncated at ingestion.
	MaxContentLength = 4000
)

// Well-known turn types. The set is open: storage and retrieval treat the
// type as an opaque label, it only matters for display prefixing and for
// the watcher's ingestion filter.
const (
	TypeUser         = "user"
	TypeAssistant    = "assistant"
	TypeAction       = "action"
	TypeThinking     = "thinking"
	TypeMemoryRecall = "memory_recall"
)

// Turn is one captured message unit in a conversation.
type Turn struct {
	ID            string         `json:"id"`
	SessionKey    string         `json:"session_key"`
	TurnType      string         `json:"turn_type"`
	Content       string         `json:"content"`
	TokenEstimate int            `json:"token_estimate"`
	CreatedAt     time.Time      `json:"created_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// EstimateTokens returns ceil(len(content) / CharsPerToken). Never negative,
// zero only for empty content.
func EstimateTokens(content string) int {
	return (len(content) + CharsPerToken - 1) / CharsPerToken
}

// Truncate bounds content to MaxContentLength runes without splitting a
// UTF-8 sequence.
func Truncate(content string) string {
	runes := []rune(content)
	if len(runes) <= MaxContentLength {
		return content
	}
	return string(runes[:MaxContentLength])
}
