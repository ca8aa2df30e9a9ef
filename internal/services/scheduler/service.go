// Package scheduler drives backup batches on a cron schedule.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler wraps a cron runner for daemon mode.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger zerolog.Logger
}

// New creates a scheduler. Schedules use the 6-field cron form with a
// leading seconds column. Jobs receive ctx, so canceling it interrupts an
// in-flight run; while a run is still going, further ticks are skipped
// rather than started concurrently.
func New(ctx context.Context, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: logger})),
		),
		ctx:    ctx,
		logger: logger,
	}
}

// AddJob registers a job under the given cron schedule. A failing run is
// logged and does not stop the schedule; the next tick fires regardless.
func (s *Scheduler) AddJob(schedule string, job func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := job(s.ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled job failed")
		}
	})

	return err
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts zerolog to the logger interface robfig/cron wants, so
// skipped ticks show up in the normal log stream.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
