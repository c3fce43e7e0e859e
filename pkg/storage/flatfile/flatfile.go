// Package flatfile provides the last-resort storage tier: an append-only
// JSONL file mirrored in memory. It has no indexing, so instead of the
// per-session retention cap it enforces a coarser global cap on total turns.
//
// The file format has no built-in concurrency control, so every operation is
// serialized through a single mutex — the one in-process write queue. Pruning
// and cleanup compact the file by atomic rewrite-and-rename.
package flatfile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/rewind/pkg/storage"
	"github.com/papercomputeco/rewind/pkg/turn"
)

const tierName = "flatfile"

// maxTotalTurns is the global cap. With no per-session index the flat file
// cannot prune per session cheaply, so the oldest turns overall are trimmed
// once the cap is exceeded.
const maxTotalTurns = 5000

// Driver implements storage.Driver over a single JSONL file.
type Driver struct {
	path string

	mu       sync.Mutex
	appender *os.File
	turns    []*turn.Turn
}

// NewDriver opens (or creates) the JSONL store at path and loads the existing
// turns into memory. Malformed lines in the file are skipped, not fatal.
func NewDriver(path string) (*Driver, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &storage.UnavailableError{Tier: tierName, Err: err}
	}

	turns, err := load(path)
	if err != nil {
		return nil, &storage.UnavailableError{Tier: tierName, Err: err}
	}

	appender, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, &storage.UnavailableError{Tier: tierName, Err: err}
	}

	return &Driver{
		path:     path,
		appender: appender,
		turns:    turns,
	}, nil
}

func load(path string) ([]*turn.Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var turns []*turn.Turn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t turn.Turn
		if err := json.Unmarshal(line, &t); err != nil {
			continue // a torn or corrupt line must not take the tier down
		}
		turns = append(turns, &t)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return turns, nil
}

// Insert appends a turn to the file and the in-memory mirror, trimming the
// oldest turns when the global cap is exceeded.
func (d *Driver) Insert(_ context.Context, t *turn.Turn) (*storage.InsertResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := *t
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	line, err := json.Marshal(&stored)
	if err != nil {
		return nil, &storage.WriteError{Tier: tierName, Err: err}
	}

	if _, err := d.appender.Write(append(line, '\n')); err != nil {
		return nil, &storage.WriteError{Tier: tierName, Err: err}
	}

	d.turns = append(d.turns, &stored)

	if len(d.turns) > maxTotalTurns {
		d.turns = d.turns[len(d.turns)-maxTotalTurns:]
		if err := d.rewrite(); err != nil {
			return nil, &storage.WriteError{Tier: tierName, Err: err}
		}
	}

	return &storage.InsertResult{ID: stored.ID, CreatedAt: stored.CreatedAt}, nil
}

// QueryRecent walks the mirror backwards (insertion order is also creation
// order) collecting turns for the session created after since, newest first.
func (d *Driver) QueryRecent(_ context.Context, sessionKey string, since time.Time, limit int) ([]*turn.Turn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	turns := []*turn.Turn{}
	for i := len(d.turns) - 1; i >= 0 && len(turns) < limit; i-- {
		t := d.turns[i]
		if t.SessionKey != sessionKey || !t.CreatedAt.After(since) {
			continue
		}
		copied := *t
		turns = append(turns, &copied)
	}

	return turns, nil
}

// ListSessions returns all session keys present in the mirror.
func (d *Driver) ListSessions(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool)
	var sessions []string
	for _, t := range d.turns {
		if !seen[t.SessionKey] {
			seen[t.SessionKey] = true
			sessions = append(sessions, t.SessionKey)
		}
	}

	return sessions, nil
}

// Stats returns total turn and session counts.
func (d *Driver) Stats(_ context.Context) (*storage.Stats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sessions := make(map[string]bool)
	for _, t := range d.turns {
		sessions[t.SessionKey] = true
	}

	return &storage.Stats{
		TotalTurns:    len(d.turns),
		TotalSessions: len(sessions),
		Tier:          tierName,
	}, nil
}

// PruneOlderThan keeps only the newest keepCount turns for one session.
func (d *Driver) PruneOlderThan(_ context.Context, sessionKey string, keepCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0
	for _, t := range d.turns {
		if t.SessionKey == sessionKey {
			count++
		}
	}
	excess := count - keepCount
	if excess <= 0 {
		return nil
	}

	kept := make([]*turn.Turn, 0, len(d.turns)-excess)
	for _, t := range d.turns {
		if t.SessionKey == sessionKey && excess > 0 {
			excess--
			continue
		}
		kept = append(kept, t)
	}
	d.turns = kept

	if err := d.rewrite(); err != nil {
		return &storage.WriteError{Tier: tierName, Err: err}
	}

	return nil
}

// DeleteOlderThan removes all turns created before cutoff across sessions.
func (d *Driver) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := make([]*turn.Turn, 0, len(d.turns))
	for _, t := range d.turns {
		if !t.CreatedAt.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	deleted := int64(len(d.turns) - len(kept))
	if deleted == 0 {
		return 0, nil
	}
	d.turns = kept

	if err := d.rewrite(); err != nil {
		return 0, &storage.WriteError{Tier: tierName, Err: err}
	}

	return deleted, nil
}

// Persistent reports true: the file survives restarts.
func (d *Driver) Persistent() bool { return true }

// Close flushes and closes the append handle.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.appender == nil {
		return nil
	}
	err := d.appender.Close()
	d.appender = nil
	return err
}

// rewrite compacts the file to match the mirror: write a temp file, fsync,
// rename over the original, reopen the append handle. Callers hold d.mu.
func (d *Driver) rewrite() error {
	tmp := d.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, t := range d.turns {
		line, err := json.Marshal(t)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if d.appender != nil {
		if err := d.appender.Close(); err != nil {
			return err
		}
		d.appender = nil
	}

	if err := os.Rename(tmp, d.path); err != nil {
		return err
	}

	appender, err := os.OpenFile(d.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("reopening after compaction: %w", err)
	}
	d.appender = appender

	return nil
}
