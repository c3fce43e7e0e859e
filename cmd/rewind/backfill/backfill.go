// Package backfillcmder provides the backfill command that imports
// historical agent transcripts into storage.
package backfillcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rewind/pkg/backfill"
	"github.com/papercomputeco/rewind/pkg/capture"
	"github.com/papercomputeco/rewind/pkg/cliui"
	"github.com/papercomputeco/rewind/pkg/config"
	"github.com/papercomputeco/rewind/pkg/logger"
	storageutils "github.com/papercomputeco/rewind/pkg/storage/utils"
)

type backfillCommander struct {
	debug         bool
	configDir     string
	transcriptDir string
	dryRun        bool
}

const backfillLongDesc string = `Import historical agent transcripts into storage.

The running watcher only captures turns written after it starts. Backfill
walks a transcript directory once, parses every JSONL file, and ingests the
qualifying turns through the same capture path — validated, truncated, and
subject to the retention cap.`

const backfillShortDesc string = "Import historical transcripts into storage"

func NewBackfillCmd() *cobra.Command {
	cmder := &backfillCommander{}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: backfillShortDesc,
		Long:  backfillLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.transcriptDir, "transcripts", "t", "", "Directory of agent transcript files to import")
	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Scan and count without writing anything")

	return cmd
}

func (c *backfillCommander) run(ctx context.Context) error {
	cfg, err := config.Load(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.transcriptDir != "" {
		cfg.Watcher.TranscriptDir = c.transcriptDir
	}
	if cfg.Watcher.TranscriptDir == "" {
		return fmt.Errorf("no transcript directory: pass --transcripts or set watcher.transcript_dir")
	}

	log := logger.New(
		logger.WithPretty(true),
		logger.WithDebug(c.debug),
	)

	driver, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		PostgresURL:  cfg.Storage.PostgresURL,
		SQLitePath:   cfg.Storage.SQLitePath,
		FlatFilePath: cfg.Storage.FlatFilePath,
		Logger:       log,
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	backfiller := backfill.NewBackfiller(
		capture.NewService(driver, log, cfg.Capture.RetainTurns),
		backfill.Options{DryRun: c.dryRun, Logger: log},
	)

	var result *backfill.Result
	err = cliui.Step(os.Stdout, fmt.Sprintf("Importing transcripts from %s", cfg.Watcher.TranscriptDir), func() error {
		var stepErr error
		result, stepErr = backfiller.Run(ctx, cfg.Watcher.TranscriptDir)
		return stepErr
	})
	if err != nil {
		return err
	}

	fmt.Println(result.Summary())
	return nil
}
