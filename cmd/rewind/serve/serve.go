// Package servecmder provides the serve command that runs the memory server
// and the transcript watcher together.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rewind/api"
	"github.com/papercomputeco/rewind/pkg/capture"
	"github.com/papercomputeco/rewind/pkg/config"
	"github.com/papercomputeco/rewind/pkg/logger"
	"github.com/papercomputeco/rewind/pkg/recall"
	storageutils "github.com/papercomputeco/rewind/pkg/storage/utils"
	"github.com/papercomputeco/rewind/pkg/watcher"
)

type serveCommander struct {
	debug         bool
	configDir     string
	listen        string
	transcriptDir string
	logFile       string
}

const serveLongDesc string = `Run the rewind memory server.

The server selects a storage tier at startup (postgres when configured,
falling back to sqlite, then to a flat file), exposes the capture and
context HTTP endpoints, and — when a transcript directory is configured —
tails agent transcript files for new turns.`

const serveShortDesc string = "Run the rewind memory server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
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

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default from config)")
	cmd.Flags().StringVarP(&cmder.transcriptDir, "transcripts", "t", "", "Directory of agent transcript files to watch")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, err := config.Load(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.listen != "" {
		cfg.API.Listen = c.listen
	}
	if c.transcriptDir != "" {
		cfg.Watcher.TranscriptDir = c.transcriptDir
	}

	log, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	driver, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		PostgresURL:  cfg.Storage.PostgresURL,
		SQLitePath:   cfg.Storage.SQLitePath,
		FlatFilePath: cfg.Storage.FlatFilePath,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	captureSvc := capture.NewService(driver, log, cfg.Capture.RetainTurns)
	recallSvc := recall.NewService(driver, log)

	var transcriptWatcher *watcher.Watcher
	if cfg.Watcher.Enabled && cfg.Watcher.TranscriptDir != "" {
		transcriptWatcher, err = watcher.New(watcher.Config{
			Dir:     cfg.Watcher.TranscriptDir,
			Capture: captureSvc,
			Logger:  log,
		})
		if err != nil {
			driver.Close()
			return err
		}
		if err := transcriptWatcher.Start(ctx); err != nil {
			driver.Close()
			return err
		}
	}

	apiServer := api.NewServer(api.Config{
		ListenAddr:   cfg.API.Listen,
		DefaultTurns: cfg.Context.DefaultTurns,
	}, driver, captureSvc, recallSvc, log)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("api error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-errChan:
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	}

	// Ordered shutdown: stop tailing first, drain the HTTP server, then
	// flush and close the store so the flat-file tier is never cut off
	// mid-write.
	if transcriptWatcher != nil {
		if err := transcriptWatcher.Close(); err != nil {
			log.Warn("closing watcher", "error", err)
		}
	}
	if err := apiServer.Shutdown(); err != nil {
		log.Warn("shutting down api server", "error", err)
	}
	if err := driver.Close(); err != nil {
		log.Warn("closing storage", "error", err)
	}

	return runErr
}

// newLogger builds a pretty stdout logger, fanned out to a JSON file log
// when --log-file is set.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	pretty := logger.New(
		logger.WithPretty(true),
		logger.WithDebug(c.debug),
	)

	if c.logFile == "" {
		return pretty, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	fileLogger := logger.New(
		logger.WithJSON(true),
		logger.WithDebug(c.debug),
		logger.WithWriter(f),
	)

	return logger.Multi(pretty, fileLogger), func() { _ = f.Close() }, nil
}
