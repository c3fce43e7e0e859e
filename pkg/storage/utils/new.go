// Package storageutils selects the storage tier at startup via an ordered
// fallback probe chain: postgres (when a connection string is configured),
// then sqlite, then the flat file. Selection happens once per process — there
// is no hot-swap or migration between tiers at runtime.
package storageutils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/rewind/pkg/storage"
	"github.com/papercomputeco/rewind/pkg/storage/flatfile"
	"github.com/papercomputeco/rewind/pkg/storage/postgres"
	"github.com/papercomputeco/rewind/pkg/storage/sqlite"
)

// NewDriverOpts carries the candidate targets for each tier.
type NewDriverOpts struct {
	// PostgresURL enables the cloud tier when non-empty.
	PostgresURL string

	// SQLitePath is the embedded tier's database file.
	SQLitePath string

	// FlatFilePath is the last-resort JSONL file.
	FlatFilePath string

	Logger *slog.Logger
}

// NewDriver probes the tiers in durability order and adopts the first one
// that comes up. It fails only when every tier is unavailable.
func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}

	var probeErrs []error

	if o.PostgresURL != "" {
		driver, err := postgres.NewDriver(ctx, o.PostgresURL)
		if err == nil {
			log.Info("using postgres storage tier")
			return driver, nil
		}
		log.Warn("postgres tier unavailable, falling back", "error", err)
		probeErrs = append(probeErrs, err)
	}

	if o.SQLitePath != "" {
		driver, err := sqlite.NewDriver(ctx, o.SQLitePath)
		if err == nil {
			log.Info("using sqlite storage tier", "path", o.SQLitePath)
			return driver, nil
		}
		log.Warn("sqlite tier unavailable, falling back", "error", err)
		probeErrs = append(probeErrs, err)
	}

	driver, err := flatfile.NewDriver(o.FlatFilePath)
	if err == nil {
		log.Info("using flat-file storage tier", "path", o.FlatFilePath)
		return driver, nil
	}
	probeErrs = append(probeErrs, err)

	return nil, fmt.Errorf("no storage tier available: %w", errors.Join(probeErrs...))
}
