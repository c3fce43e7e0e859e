package backfill

import "fmt"

// Result contains statistics from a backfill run.
type Result struct {
	TranscriptFiles   int
	SkippedFiles      int
	TranscriptEntries int
	Ingested          int
	Filtered          int
	Failed            int
}

// Summary returns a human-readable summary of the backfill result.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"Backfill complete: %d turns ingested, %d filtered, %d failed\n"+
			"Scanned %d transcript files (%d entries, %d files unreadable)",
		r.Ingested, r.Filtered, r.Failed,
		r.TranscriptFiles, r.TranscriptEntries, r.SkippedFiles,
	)
}
