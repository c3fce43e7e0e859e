// Package rewindcmder
package rewindcmder

import (
	"github.com/spf13/cobra"

	backfillcmder "github.com/papercomputeco/rewind/cmd/rewind/backfill"
	servecmder "github.com/papercomputeco/rewind/cmd/rewind/serve"
	"github.com/papercomputeco/rewind/pkg/utils"
)

const rewindLongDesc string = `Rewind is a context-persistence and recovery service for agents.

It captures conversation turns — via HTTP or by tailing agent transcript
files — stores them durably, and serves a token-budgeted recent-context
window so an agent can recover after its context is compacted.

Run the service using:
  rewind serve       Run the memory server and transcript watcher
  rewind backfill    Import historical transcripts into storage`

const rewindShortDesc string = "Rewind - agent memory layer"

func NewRewindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rewind",
		Short:   rewindShortDesc,
		Long:    rewindLongDesc,
		Version: utils.Version,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory containing config.toml (default ~/.rewind)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(backfillcmder.NewBackfillCmd())

	return cmd
}
