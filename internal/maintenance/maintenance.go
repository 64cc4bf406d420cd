// Package maintenance schedules the background jobs that keep the
// memory corpus healthy without any caller involvement: a recovery
// probe that retests embedding providers marked unhealthy, and a
// sweep that ages memory states by elapsed time.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultProbeSchedule retests unhealthy providers every five
	// minutes, matching the health monitor's recovery cadence.
	DefaultProbeSchedule = "@every 5m"

	// DefaultSweepSchedule ages memory states once a day; the state
	// windows are measured in days, so more often buys nothing.
	DefaultSweepSchedule = "@daily"

	// jobTimeout caps a single maintenance pass.
	jobTimeout = 5 * time.Minute

	// stopGrace is how long Stop waits for a running job to finish.
	stopGrace = 10 * time.Second
)

// Runner is the slice of the memory engine the scheduler drives.
type Runner interface {
	SweepStates(ctx context.Context) (int64, error)
	ProbeProviders(ctx context.Context) (probed, recovered int)
}

// Config carries the job schedules in robfig/cron syntax, descriptors
// like @daily and @every included.
type Config struct {
	ProbeSchedule string
	SweepSchedule string
}

// Service owns the cron scheduler. Jobs run on the cron goroutine,
// share the engine with the serving path, and must never take the
// process down: failures are logged and the next tick tries again.
type Service struct {
	runner Runner
	cfg    Config
	logger zerolog.Logger
	cron   *cron.Cron
}

// NewService prepares a scheduler; nothing runs until Start.
func NewService(runner Runner, cfg Config, logger zerolog.Logger) *Service {
	if cfg.ProbeSchedule == "" {
		cfg.ProbeSchedule = DefaultProbeSchedule
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}
	return &Service{
		runner: runner,
		cfg:    cfg,
		logger: logger.With().Str("component", "maintenance").Logger(),
	}
}

// Start validates both schedules, registers the jobs, and launches
// the scheduler.
func (s *Service) Start() error {
	c := cron.New()

	if _, err := c.AddFunc(s.cfg.ProbeSchedule, s.guarded("probe", s.runProbe)); err != nil {
		return fmt.Errorf("invalid probe schedule %q: %w", s.cfg.ProbeSchedule, err)
	}
	if _, err := c.AddFunc(s.cfg.SweepSchedule, s.guarded("sweep", s.runSweep)); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.SweepSchedule, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info().
		Str("probe", s.cfg.ProbeSchedule).
		Str("sweep", s.cfg.SweepSchedule).
		Msg("maintenance scheduler started")
	return nil
}

// Stop halts scheduling and waits briefly for any job in flight.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	drained := s.cron.Stop()
	select {
	case <-drained.Done():
	case <-time.After(stopGrace):
		s.logger.Warn().Msg("timed out waiting for running maintenance job")
	}
	s.logger.Info().Msg("maintenance scheduler stopped")
}

// guarded wraps a job with a deadline and a panic recovery so one bad
// pass cannot kill the scheduler goroutine.
func (s *Service) guarded(name string, fn func(context.Context)) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Interface("panic", r).
					Str("job", name).
					Msg("maintenance job panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		fn(ctx)
	}
}

func (s *Service) runProbe(ctx context.Context) {
	probed, recovered := s.runner.ProbeProviders(ctx)
	if probed > 0 {
		s.logger.Debug().
			Int("probed", probed).
			Int("recovered", recovered).
			Msg("recovery probe finished")
	}
}

func (s *Service) runSweep(ctx context.Context) {
	affected, err := s.runner.SweepStates(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("state sweep failed")
		return
	}
	s.logger.Debug().Int64("affected", affected).Msg("state sweep finished")
}
