// Package watcher tails append-only JSONL transcript files produced by an
// external agent process and forwards qualifying entries to the capture
// service. Offsets are process-local: a fresh start re-baselines every file
// to its current size, so history is observed but never replayed.
package watcher

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// minContentLength filters acknowledgement noise: entries with shorter text
// are dropped before ingestion.
const minContentLength = 10

// Session keys are derived from the transcript file's base name: a fixed
// prefix plus the first 8 characters. The mapping is lossy and can collide
// across distinct conversations — a known limitation the external injection
// hook depends on, so it must not be changed unilaterally.
const (
	sessionKeyPrefix = "agent-"
	sessionKeyChars  = 8
)

// Entry is one line of an agent transcript file.
type Entry struct {
	Type      string   `json:"type"`
	UUID      string   `json:"uuid"`
	Timestamp string   `json:"timestamp"`
	SessionID string   `json:"sessionId"`
	Message   *Message `json:"message"`
}

// Message is the message payload within a transcript entry.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a typed content fragment in a transcript message.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextContent concatenates the text of all text blocks in the entry.
func (e *Entry) TextContent() string {
	if e.Message == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range e.Message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ParseRecords splits raw transcript bytes into newline-delimited records and
// parses each independently. A record that fails to parse is skipped — one
// bad line must never stop the rest of the batch.
func ParseRecords(data []byte) []Entry {
	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// Qualifies reports whether an entry should be ingested: a user or
// assistant role entry with enough text to matter.
func Qualifies(e *Entry) bool {
	if e.Type != "user" && e.Type != "assistant" {
		return false
	}
	if e.Message != nil && e.Message.Role != "" && e.Message.Role != e.Type {
		return false
	}
	return len(e.TextContent()) >= minContentLength
}

// SessionKeyForFile derives the service-side session key from a transcript
// file path.
func SessionKeyForFile(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if len(base) > sessionKeyChars {
		base = base[:sessionKeyChars]
	}
	return sessionKeyPrefix + base
}
