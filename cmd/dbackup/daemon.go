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
	"github.com/opsdeck/dbackup/internal/services/runner"
	"github.com/opsdeck/dbackup/internal/services/scheduler"
)

var daemonSchedule string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run backup batches on a cron schedule",
	Long: `Stay in the foreground and execute a backup batch on a cron schedule.
The schedule uses the 6-field cron form with a leading seconds column, e.g.
"0 0 3 * * *" for every day at 03:00. A failed batch is logged; the daemon
keeps running and the next tick fires normally.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonSchedule, "schedule", "0 0 3 * * *", "cron schedule for backup batches")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	settings, err := config.ResolveSettings(cmd.Flags())
	if err != nil {
		log.Error().Err(err).Msg("invalid settings")
		return err
	}

	if env := os.Getenv("DBACKUP_SCHEDULE"); env != "" && !cmd.Flags().Changed("schedule") {
		daemonSchedule = env
	}

	// Fail fast on a broken config instead of at the first tick.
	parser := config.NewParser()
	targets, err := parser.LoadFile(settings.ConfigPath)
	if err != nil {
		log.Error().Err(err).Str("file", settings.ConfigPath).Msg("failed to load config")
		return err
	}

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

	sched := scheduler.New(ctx, log.Logger)
	err = sched.AddJob(daemonSchedule, func(jobCtx context.Context) error {
		// Re-read the config each tick so target edits are picked up
		// without restarting the daemon.
		batchTargets, err := parser.LoadFile(settings.ConfigPath)
		if err != nil {
			return fmt.Errorf("reloading config: %w", err)
		}

		summary, err := runnerSvc.Run(jobCtx, batchTargets)
		if err != nil {
			return err
		}

		return summaryError(summary)
	})
	if err != nil {
		log.Error().Err(err).Str("schedule", daemonSchedule).Msg("invalid cron schedule")
		return err
	}

	sched.Start()
	log.Info().
		Str("schedule", daemonSchedule).
		Int("targets", len(targets)).
		Msg("daemon started")

	<-ctx.Done()

	log.Info().Msg("daemon stopping")
	sched.Stop()
	return nil
}
