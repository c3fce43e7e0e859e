package watcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/rewind/pkg/capture"
)

// Config holds the watcher's dependencies.
type Config struct {
	// Dir is the directory of *.jsonl transcript files to watch.
	Dir string

	// Capture receives qualifying transcript entries.
	Capture *capture.Service

	Logger *slog.Logger
}

// Watcher tails transcript files in a directory, tracking a byte offset per
// file, and forwards new qualifying entries to the capture service. The
// directory itself is watched too, so files appearing after startup are
// picked up dynamically.
type Watcher struct {
	dir     string
	capture *capture.Service
	logger  *slog.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}

	// mu guards offsets and makes read-and-advance a critical section per
	// notification, so repeated events never process the same bytes twice.
	mu      sync.Mutex
	offsets map[string]int64
}

// New creates a watcher. Start must be called before it observes anything.
func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watcher: transcript directory is required")
	}
	if cfg.Capture == nil {
		return nil, fmt.Errorf("watcher: capture service is required")
	}

	return &Watcher{
		dir:     cfg.Dir,
		capture: cfg.Capture,
		logger:  cfg.Logger,
		done:    make(chan struct{}),
		offsets: make(map[string]int64),
	}, nil
}

// Start baselines offsets for every transcript already in the directory to
// its current size (history is never replayed), subscribes to file-system
// notifications, and launches the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating transcript watcher: %w", err)
	}
	w.fsw = fsw

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		fsw.Close()
		return fmt.Errorf("reading transcript dir: %w", err)
	}

	w.mu.Lock()
	for _, entry := range entries {
		if entry.IsDir() || !isTranscript(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		w.offsets[filepath.Join(w.dir, entry.Name())] = info.Size()
	}
	w.mu.Unlock()

	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watching transcript dir: %w", err)
	}

	w.logger.Info("transcript watcher started",
		"dir", w.dir,
		"files", len(w.offsets),
	)

	go w.loop(ctx)

	return nil
}

// Close releases the file-system watch handles. Offsets die with the
// process by design.
func (w *Watcher) Close() error {
	close(w.done)
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// Offset returns the tracked offset for a file path. Used by tests and the
// stats surface; zero for untracked files.
func (w *Watcher) Offset(path string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offsets[path]
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("transcript watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !isTranscript(event.Name) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		// A newly created file baselines at zero so its first contents
		// are captured, then any bytes already present are consumed.
		w.mu.Lock()
		if _, tracked := w.offsets[event.Name]; !tracked {
			w.offsets[event.Name] = 0
		}
		w.mu.Unlock()
		w.consume(ctx, event.Name)
	case event.Op.Has(fsnotify.Write):
		w.consume(ctx, event.Name)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.mu.Lock()
		delete(w.offsets, event.Name)
		w.mu.Unlock()
	}
}

// consume reads new bytes from the file and forwards the parsed records.
// Read-and-advance happens under the offsets mutex; the captures run with
// the lock released so a slow storage write never stalls offset tracking
// for the other watched files.
func (w *Watcher) consume(ctx context.Context, path string) {
	for _, entry := range w.advance(path) {
		w.forward(ctx, path, entry)
	}
}

// advance is the critical section: it reads exactly [offset, size) and
// moves the offset, so overlapping notifications for one file can never
// process the same bytes twice.
func (w *Watcher) advance(path string) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	offset, tracked := w.offsets[path]

	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	size := info.Size()

	if !tracked {
		// First observation mid-flight: baseline to current size, do not
		// replay what is already there.
		w.offsets[path] = size
		return nil
	}

	if size < offset {
		// Truncated or rewritten; re-baseline.
		w.offsets[path] = size
		return nil
	}
	if size == offset {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		w.logger.Warn("opening transcript", "path", path, "error", err)
		return nil
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		w.logger.Warn("seeking transcript", "path", path, "error", err)
		return nil
	}

	data := make([]byte, size-offset)
	if _, err := io.ReadFull(f, data); err != nil {
		w.logger.Warn("reading transcript", "path", path, "error", err)
		return nil
	}

	w.offsets[path] = size

	return ParseRecords(data)
}

func (w *Watcher) forward(ctx context.Context, path string, entry Entry) {
	if !Qualifies(&entry) {
		return
	}

	metadata := map[string]any{
		"origin":      "transcript",
		"source_file": filepath.Base(path),
	}
	if entry.Timestamp != "" {
		metadata["timestamp"] = entry.Timestamp
	}

	_, err := w.capture.Capture(ctx, capture.Request{
		SessionKey: SessionKeyForFile(path),
		TurnType:   entry.Type,
		Content:    entry.TextContent(),
		Metadata:   metadata,
	})
	if err != nil {
		w.logger.Warn("forwarding transcript entry failed",
			"path", path,
			"error", err,
		)
	}
}

func isTranscript(name string) bool {
	return strings.HasSuffix(name, ".jsonl")
}
