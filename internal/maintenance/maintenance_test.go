package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeRunner struct {
	sweeps    atomic.Int64
	probes    atomic.Int64
	sweepErr  error
	panicNext atomic.Bool
}

func (f *fakeRunner) SweepStates(ctx context.Context) (int64, error) {
	n := f.sweeps.Add(1)
	if f.panicNext.CompareAndSwap(true, false) {
		panic("sweep exploded")
	}
	if f.sweepErr != nil {
		return 0, f.sweepErr
	}
	return n, nil
}

func (f *fakeRunner) ProbeProviders(ctx context.Context) (int, int) {
	f.probes.Add(1)
	return 1, 0
}

func TestServiceDefaults(t *testing.T) {
	s := NewService(&fakeRunner{}, Config{}, zerolog.Nop())
	if s.cfg.ProbeSchedule != DefaultProbeSchedule {
		t.Errorf("probe schedule = %q, want %q", s.cfg.ProbeSchedule, DefaultProbeSchedule)
	}
	if s.cfg.SweepSchedule != DefaultSweepSchedule {
		t.Errorf("sweep schedule = %q, want %q", s.cfg.SweepSchedule, DefaultSweepSchedule)
	}
}

func TestServiceRunsJobs(t *testing.T) {
	runner := &fakeRunner{}
	s := NewService(runner, Config{
		ProbeSchedule: "@every 100ms",
		SweepSchedule: "@every 100ms",
	}, zerolog.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(450 * time.Millisecond)
	s.Stop()

	if got := runner.probes.Load(); got < 2 {
		t.Errorf("probes ran %d times, want at least 2", got)
	}
	if got := runner.sweeps.Load(); got < 2 {
		t.Errorf("sweeps ran %d times, want at least 2", got)
	}
}

func TestServiceRejectsInvalidSchedule(t *testing.T) {
	s := NewService(&fakeRunner{}, Config{ProbeSchedule: "not a schedule"}, zerolog.Nop())
	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	// Stop before a successful Start must be a no-op.
	s.Stop()
}

func TestServiceSurvivesPanickingJob(t *testing.T) {
	runner := &fakeRunner{}
	runner.panicNext.Store(true)
	s := NewService(runner, Config{
		ProbeSchedule: "@every 1h",
		SweepSchedule: "@every 50ms",
	}, zerolog.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	s.Stop()

	// The first sweep panicked; later ticks must still have run.
	if got := runner.sweeps.Load(); got < 3 {
		t.Errorf("sweeps ran %d times, want at least 3", got)
	}
}

func TestServiceSurvivesJobError(t *testing.T) {
	runner := &fakeRunner{sweepErr: errors.New("db locked")}
	s := NewService(runner, Config{
		ProbeSchedule: "@every 1h",
		SweepSchedule: "@every 50ms",
	}, zerolog.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	s.Stop()

	if got := runner.sweeps.Load(); got < 2 {
		t.Errorf("sweeps ran %d times, want at least 2", got)
	}
}
