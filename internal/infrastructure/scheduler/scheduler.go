// Package scheduler triggers backups on a cadence from a polling loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

const (
	defaultTick        = time.Minute
	defaultStopTimeout = 5 * time.Second
)

// Job is the work fired on each tick.
type Job func(ctx context.Context) error

type Option func(*Scheduler)

// WithClock replaces time.Now for fire-time decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithNextRunObserver is called whenever the next fire time changes. A zero
// time means nothing is scheduled.
func WithNextRunObserver(fn func(time.Time)) Option {
	return func(s *Scheduler) { s.observeNext = fn }
}

type Scheduler struct {
	job         Job
	logger      domain.Logger
	now         func() time.Time
	observeNext func(time.Time)
	tick        time.Duration
	stopTimeout time.Duration

	mu      sync.Mutex
	enabled bool
	cadence Cadence
	running bool
	started bool
	next    time.Time
	lastRun time.Time
	stop    chan struct{}
	done    chan struct{}

	busy atomic.Bool
}

// New validates the cadence up front; a bad cadence is an
// ErrSchedulerConfig even when the scheduler is disabled.
func New(cfg config.SchedulerConfig, job Job, logger domain.Logger, opts ...Option) (*Scheduler, error) {
	cadence, err := ParseCadence(cfg.Cadence)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		job:         job,
		logger:      logger,
		now:         time.Now,
		tick:        cfg.Tick,
		stopTimeout: cfg.StopTimeout,
		enabled:     cfg.Enabled,
		cadence:     cadence,
	}
	if s.tick <= 0 {
		s.tick = defaultTick
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = defaultStopTimeout
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start computes the first fire time and launches the loop. Starting a
// running or disabled scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		s.logger.Infof("Scheduler is disabled")
		return
	}
	if s.running {
		s.logger.Warnf("Scheduler is already running")
		return
	}

	s.running = true
	s.started = true
	s.setNextLocked(s.cadence.Next(s.now()))
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stop, s.done)

	s.logger.Infof("Scheduler started (%s), next run at %s", s.cadence, s.next.Format("2006-01-02 15:04:05"))
}

// Stop signals the loop and waits up to the stop timeout for it to exit.
// An in-flight job is not interrupted. Stopping twice is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.setNextLocked(time.Time{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)

	select {
	case <-done:
		s.logger.Infof("Scheduler stopped")
		return nil
	case <-time.After(s.stopTimeout):
		s.logger.Warnf("Scheduler loop still busy after %s, a job is in progress", s.stopTimeout)
		return fmt.Errorf("scheduler did not stop within %s", s.stopTimeout)
	}
}

// RunNow fires the job immediately on the caller's goroutine. It is
// rejected with ErrBackupInProgress while another run is executing.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.logger.Infof("Manual backup triggered")
	return s.execute(ctx, s.now())
}

// Configure swaps the cadence and enabled flag. A running scheduler
// reschedules from now; disabling it stops the loop.
func (s *Scheduler) Configure(spec string, enabled bool) error {
	cadence, err := ParseCadence(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cadence = cadence
	s.enabled = enabled
	running := s.running
	if running && enabled {
		s.setNextLocked(cadence.Next(s.now()))
	}
	s.mu.Unlock()

	s.logger.Infof("Scheduler configured: cadence=%s enabled=%t", cadence, enabled)

	switch {
	case running && !enabled:
		return s.Stop()
	case !running && enabled:
		s.Start()
	}
	return nil
}

// Cadence is the schedule currently in force.
func (s *Scheduler) Cadence() Cadence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence
}

// NextRun is computed from state, never stored as text.
func (s *Scheduler) NextRun() string {
	return s.State().NextRunString()
}

// State reports the schedule. An enabled scheduler that this process has
// not started yet (a one-shot CLI call) reports the fire time it would use.
func (s *Scheduler) State() domain.ScheduleState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.next
	if s.enabled && !s.running && !s.started {
		next = s.cadence.Next(s.now())
	}

	return domain.ScheduleState{
		Enabled: s.enabled,
		Cadence: s.cadence.String(),
		Running: s.running,
		NextRun: next,
		LastRun: s.lastRun,
	}
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.runDue()
		}
	}
}

func (s *Scheduler) runDue() {
	now := s.now()

	s.mu.Lock()
	due := s.running && !s.next.IsZero() && !now.Before(s.next)
	fireAt := s.next
	s.mu.Unlock()
	if !due {
		return
	}

	s.logger.Infof("Scheduled backup triggered")
	_ = s.execute(context.Background(), now)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	anchor := now
	if s.cadence.Anchored() {
		anchor = fireAt
	}
	next := s.cadence.Next(anchor)
	if !next.After(s.now()) {
		// the run overran one or more slots
		next = s.cadence.Next(s.now())
	}
	s.setNextLocked(next)
	s.logger.Infof("Next run at %s", next.Format("2006-01-02 15:04:05"))
}

func (s *Scheduler) execute(ctx context.Context, startedAt time.Time) (err error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warnf("Backup rejected: %v", domain.ErrBackupInProgress)
		return domain.ErrBackupInProgress
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	s.lastRun = startedAt
	s.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("backup job panicked: %v", rec)
		}
		if err != nil {
			s.logger.Errorf("Scheduled backup failed: %v", err)
		}
	}()

	return s.job(ctx)
}

func (s *Scheduler) setNextLocked(t time.Time) {
	s.next = t
	if s.observeNext != nil {
		s.observeNext(t)
	}
}
