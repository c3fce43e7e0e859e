// Package backfill imports historical agent transcripts into storage in one
// shot. The watcher deliberately never replays bytes that predate its start;
// backfill is the explicit, operator-invoked way to capture that history.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/papercomputeco/rewind/pkg/capture"
	"github.com/papercomputeco/rewind/pkg/watcher"
)

// Options configures a backfill run.
type Options struct {
	// DryRun scans and counts but writes nothing.
	DryRun bool

	Logger *slog.Logger
}

// Backfiller ingests transcript history through the capture service, so
// backfilled turns get the same validation, truncation, and retention
// treatment as live ones.
type Backfiller struct {
	capture *capture.Service
	options Options
}

// NewBackfiller creates a backfiller writing through the given capture
// service.
func NewBackfiller(captureSvc *capture.Service, opts Options) *Backfiller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Backfiller{capture: captureSvc, options: opts}
}

// Run scans every transcript under dir and ingests the qualifying entries.
// Files are processed independently; a file that cannot be read is counted
// and skipped, never fatal.
func (b *Backfiller) Run(ctx context.Context, dir string) (*Result, error) {
	files, err := ScanTranscriptDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning transcript dir: %w", err)
	}

	result := &Result{TranscriptFiles: len(files)}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			b.options.Logger.Warn("skipping unreadable transcript", "path", path, "error", err)
			result.SkippedFiles++
			continue
		}

		entries := dedupe(watcher.ParseRecords(data))
		result.TranscriptEntries += len(entries)

		sessionKey := watcher.SessionKeyForFile(path)
		for _, entry := range entries {
			if !watcher.Qualifies(&entry) {
				result.Filtered++
				continue
			}
			if b.options.DryRun {
				result.Ingested++
				continue
			}

			metadata := map[string]any{
				"origin":      "backfill",
				"source_file": path,
			}
			if entry.Timestamp != "" {
				metadata["timestamp"] = entry.Timestamp
			}

			_, err := b.capture.Capture(ctx, capture.Request{
				SessionKey: sessionKey,
				TurnType:   entry.Type,
				Content:    entry.TextContent(),
				Metadata:   metadata,
			})
			if err != nil {
				result.Failed++
				b.options.Logger.Warn("backfill capture failed",
					"path", path,
					"error", err,
				)
				continue
			}
			result.Ingested++
		}
	}

	return result, nil
}

// dedupe drops repeated entries by UUID, keeping the last occurrence —
// streaming agents rewrite an entry as its content grows, and the final
// version is the complete one.
func dedupe(entries []watcher.Entry) []watcher.Entry {
	byUUID := make(map[string]int)
	var deduped []watcher.Entry
	for _, e := range entries {
		if e.UUID == "" {
			deduped = append(deduped, e)
			continue
		}
		if i, seen := byUUID[e.UUID]; seen {
			deduped[i] = e
			continue
		}
		byUUID[e.UUID] = len(deduped)
		deduped = append(deduped, e)
	}
	return deduped
}
