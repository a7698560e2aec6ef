// Package schedule runs the bulk preprint rescrape on a day-based interval.
//
// The scheduler is a small state machine:
//
//	Idle      --Arm-->          Scheduled (or Running if a catch-up is due)
//	Scheduled --timer fires-->  Running
//	Running   --pass done-->    Scheduled (Idle if disarmed meanwhile)
//
// The next deadline is always derived from the persisted last run, so a
// restarted process neither drifts nor runs twice.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/plib/internal/metrics"
	"github.com/matsen/plib/internal/storage"
)

// State is the scheduler's lifecycle state.
type State int

const (
	Idle State = iota
	Scheduled
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Triggers recorded in metrics.
const (
	TriggerCatchUp = "catchup"
	TriggerTimer   = "timer"
)

// Day is the unit of the configured interval.
const Day = 24 * time.Hour

// StateStore persists the last run.
type StateStore interface {
	LoadScheduleState(ctx context.Context) (storage.ScheduleState, error)
	SaveScheduleState(ctx context.Context, state storage.ScheduleState) error
}

// RunFunc performs one bulk pass. Its error is logged; the pass still
// counts as run.
type RunFunc func(ctx context.Context) error

// Scheduler triggers RunFunc every interval. At most one pass runs at a time.
type Scheduler struct {
	store  StateStore
	run    RunFunc
	clock  Clock
	logger *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	state    State
	running  bool
	interval time.Duration // 0 = disarmed
	timer    Timer
	next     time.Time
	lastRun  time.Time // latest pass completion in this process
	gen      uint64    // bumped on every Arm/Disarm; stale timers check it
	wg       sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an idle scheduler.
func New(store StateStore, run RunFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		run:    run,
		clock:  realClock{},
		logger: zap.NewNop(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm (re)configures the interval. Any pending timer is cancelled. If the
// last run is at least one interval ago, or there never was one, a catch-up
// pass starts immediately unless a pass is already running; otherwise a
// single timer is set for lastRun+interval. A non-positive interval disarms.
// Arming while a pass is running only replaces the future timer.
func (s *Scheduler) Arm(ctx context.Context, intervalDays int) error {
	if intervalDays <= 0 {
		s.Disarm()
		return nil
	}

	state, err := s.store.LoadScheduleState(ctx)
	if err != nil {
		return fmt.Errorf("loading schedule state: %w", err)
	}
	if state.IntervalDays != intervalDays {
		state.IntervalDays = intervalDays
		if err := s.store.SaveScheduleState(ctx, state); err != nil {
			return fmt.Errorf("saving schedule state: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.gen++
	s.ctx = ctx
	s.interval = time.Duration(intervalDays) * Day

	if s.running {
		// The in-flight pass reschedules from its own completion time.
		s.logger.Debug("re-armed while running", zap.Int("interval_days", intervalDays))
		return nil
	}

	// The state was loaded unlocked; a pass may have finished since.
	lastRun := state.LastRun
	if s.lastRun.After(lastRun) {
		lastRun = s.lastRun
	}

	now := s.clock.Now()
	if lastRun.IsZero() || now.Sub(lastRun) >= s.interval {
		s.logger.Info("catch-up pass due",
			zap.Time("last_run", lastRun), zap.Int("interval_days", intervalDays))
		s.startLocked(TriggerCatchUp)
		return nil
	}

	s.scheduleLocked(lastRun.Add(s.interval))
	return nil
}

// Disarm cancels the pending timer. A running pass finishes but does not
// reschedule.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.gen++
	s.interval = 0
	if !s.running {
		s.state = Idle
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Next returns the pending deadline, or the zero time if none is set.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return time.Time{}
	}
	return s.next
}

// Wait blocks until any in-flight pass has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) scheduleLocked(at time.Time) {
	s.stopTimerLocked()
	gen := s.gen
	delay := max(at.Sub(s.clock.Now()), 0)
	s.next = at
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })
	s.state = Scheduled
	s.logger.Debug("next pass scheduled", zap.Time("at", at))
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// fire is the timer callback. Stale or overlapping fires are dropped.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.interval == 0 {
		return
	}
	if s.running {
		s.logger.Debug("dropping overlapping fire")
		return
	}
	s.timer = nil
	s.startLocked(TriggerTimer)
}

func (s *Scheduler) startLocked(trigger string) {
	s.running = true
	s.state = Running
	ctx := s.ctx
	s.wg.Add(1)
	go s.runPass(ctx, trigger)
}

func (s *Scheduler) runPass(ctx context.Context, trigger string) {
	defer s.wg.Done()

	start := s.clock.Now()
	s.logger.Info("bulk pass started", zap.String("trigger", trigger))
	metrics.SchedulerRuns.WithLabelValues(trigger).Inc()

	if err := s.safeRun(ctx); err != nil {
		s.logger.Warn("bulk pass failed", zap.String("trigger", trigger), zap.Error(err))
	}

	// Persisted even on failure so a broken source cannot cause a retry storm.
	finished := s.clock.Now()
	s.mu.Lock()
	days := int(s.interval / Day)
	s.mu.Unlock()
	if err := s.store.SaveScheduleState(context.WithoutCancel(ctx), storage.ScheduleState{LastRun: finished, IntervalDays: days}); err != nil {
		s.logger.Error("could not persist last run", zap.Error(err))
	}
	metrics.SchedulerLastRun.Set(float64(finished.Unix()))
	s.logger.Info("bulk pass finished", zap.String("trigger", trigger), zap.Duration("took", finished.Sub(start)))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastRun = finished
	if s.interval == 0 || ctx.Err() != nil {
		s.state = Idle
		return
	}
	s.scheduleLocked(finished.Add(s.interval))
}

func (s *Scheduler) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bulk pass panicked: %v", r)
		}
	}()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.run(ctx)
}
