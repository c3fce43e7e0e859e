// Package sqlite provides the embedded transactional storage tier using
// github.com/mattn/go-sqlite3. It survives process restarts but not loss of
// the local disk, and has no full-text index.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver

	"github.com/papercomputeco/rewind/pkg/storage"
	"github.com/papercomputeco/rewind/pkg/turn"
)

const tierName = "sqlite"

// Timestamps are stored as unix milliseconds so ordering and range filters
// are plain integer comparisons; created_at ties fall back to rowid, which
// is insertion order.
const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id TEXT PRIMARY KEY,
	session_key TEXT NOT NULL,
	turn_type TEXT NOT NULL,
	content TEXT NOT NULL,
	token_estimate INTEGER NOT NULL DEFAULT 0,
	metadata TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_session_created
	ON turns (session_key, created_at DESC);
`

// Driver implements storage.Driver against a local SQLite database.
type Driver struct {
	db *sql.DB
}

// NewDriver opens (or creates) the database at dbPath and ensures the schema
// exists. dbPath may be ":memory:" for an ephemeral database. Failure to open
// (e.g. missing native sqlite dependency) returns storage.UnavailableError so
// the probe chain can fall through to the flat-file tier.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, &storage.UnavailableError{Tier: tierName, Err: err}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &storage.UnavailableError{Tier: tierName, Err: err}
	}

	// WAL lets the capture and retrieval flows run concurrently without a
	// second locking layer on top of SQLite's own; busy_timeout makes
	// writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, &storage.UnavailableError{Tier: tierName, Err: err}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, &storage.UnavailableError{Tier: tierName, Err: fmt.Errorf("creating schema: %w", err)}
	}

	return &Driver{db: db}, nil
}

// Insert stores a turn, assigning a fresh id when the caller did not.
func (d *Driver) Insert(ctx context.Context, t *turn.Turn) (*storage.InsertResult, error) {
	id := t.ID
	if id == "" {
		id = uuid.New().String()
	}

	var metadata any
	if len(t.Metadata) > 0 {
		raw, err := json.Marshal(t.Metadata)
		if err != nil {
			return nil, &storage.WriteError{Tier: tierName, Err: fmt.Errorf("marshaling metadata: %w", err)}
		}
		metadata = string(raw)
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_key, turn_type, content, token_estimate, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, t.SessionKey, t.TurnType, t.Content, t.TokenEstimate, metadata, t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, &storage.WriteError{Tier: tierName, Err: err}
	}

	return &storage.InsertResult{ID: id, CreatedAt: t.CreatedAt}, nil
}

// QueryRecent returns turns for a session created after since, newest first.
func (d *Driver) QueryRecent(ctx context.Context, sessionKey string, since time.Time, limit int) ([]*turn.Turn, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, session_key, turn_type, content, token_estimate, metadata, created_at
		 FROM turns
		 WHERE session_key = ? AND created_at > ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		sessionKey, since.UnixMilli(), limit,
	)
	if err != nil {
		return nil, &storage.ReadError{Tier: tierName, Err: err}
	}
	defer rows.Close()

	return scanTurns(rows)
}

// ListSessions returns all distinct session keys.
func (d *Driver) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT DISTINCT session_key FROM turns ORDER BY session_key`)
	if err != nil {
		return nil, &storage.ReadError{Tier: tierName, Err: err}
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &storage.ReadError{Tier: tierName, Err: err}
		}
		sessions = append(sessions, key)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.ReadError{Tier: tierName, Err: err}
	}

	return sessions, nil
}

// Stats returns total turn and session counts.
func (d *Driver) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{Tier: tierName}
	row := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT session_key) FROM turns`)
	if err := row.Scan(&stats.TotalTurns, &stats.TotalSessions); err != nil {
		return nil, &storage.ReadError{Tier: tierName, Err: err}
	}

	return stats, nil
}

// PruneOlderThan keeps only the newest keepCount turns for a session.
func (d *Driver) PruneOlderThan(ctx context.Context, sessionKey string, keepCount int) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM turns
		 WHERE session_key = ? AND rowid NOT IN (
			SELECT rowid FROM turns
			WHERE session_key = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		 )`,
		sessionKey, sessionKey, keepCount,
	)
	if err != nil {
		return &storage.WriteError{Tier: tierName, Err: err}
	}

	return nil
}

// DeleteOlderThan removes all turns created before cutoff across sessions.
func (d *Driver) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM turns WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, &storage.WriteError{Tier: tierName, Err: err}
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, &storage.WriteError{Tier: tierName, Err: err}
	}

	return deleted, nil
}

// Persistent reports true: the database file survives restarts.
func (d *Driver) Persistent() bool { return true }

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}

func scanTurns(rows *sql.Rows) ([]*turn.Turn, error) {
	turns := []*turn.Turn{}
	for rows.Next() {
		var (
			t         turn.Turn
			metadata  sql.NullString
			createdMs int64
		)
		if err := rows.Scan(&t.ID, &t.SessionKey, &t.TurnType, &t.Content, &t.TokenEstimate, &metadata, &createdMs); err != nil {
			return nil, &storage.ReadError{Tier: tierName, Err: err}
		}
		t.CreatedAt = time.UnixMilli(createdMs)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
				return nil, &storage.ReadError{Tier: tierName, Err: fmt.Errorf("unmarshaling metadata: %w", err)}
			}
		}
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.ReadError{Tier: tierName, Err: err}
	}

	return turns, nil
}
