package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsdeck/dbackup/internal/config"
	"github.com/opsdeck/dbackup/internal/models"
	"github.com/opsdeck/dbackup/internal/services/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one backup batch",
	Long: `Execute one backup batch:
1. Load and validate the target definitions
2. Dump every target over its UNIX socket, isolating failures per target
3. Optionally gzip and upload completed dumps
4. Apply the retention policy
5. Send a Telegram summary (if configured)

The exit code is zero only when every target was dumped successfully.`,
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	settings, err := config.ResolveSettings(cmd.Flags())
	if err != nil {
		log.Error().Err(err).Msg("invalid settings")
		return err
	}

	// Load target definitions
	parser := config.NewParser()
	targets, err := parser.LoadFile(settings.ConfigPath)
	if err != nil {
		log.Error().Err(err).Str("file", settings.ConfigPath).Msg("failed to load config")
		return err
	}

	log.Info().
		Str("config", settings.ConfigPath).
		Str("output_dir", settings.OutputDir).
		Int("targets", len(targets)).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	runnerSvc, err := runner.New(ctx, log.Logger, settings)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize runner")
		return err
	}

	summary, err := runnerSvc.Run(ctx, targets)
	if err != nil {
		log.Error().Err(err).Msg("backup batch failed")
		return err
	}

	if err := summaryError(summary); err != nil {
		return err
	}

	log.Info().Msg("backup batch completed successfully")
	return nil
}

// summaryError converts a batch outcome into the process result: any failed
// target or upload makes the whole run fail.
func summaryError(summary *models.RunSummary) error {
	if failed := summary.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d target(s) failed", failed, len(summary.Results))
	}
	if summary.UploadsFailed > 0 {
		return fmt.Errorf("%d upload(s) failed", summary.UploadsFailed)
	}
	return nil
}
