package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"remindly/internal/notify"
	"remindly/internal/reminder"
)

const (
	DefaultCadence     = 60 * time.Second
	DefaultPassTimeout = 30 * time.Second
)

var ErrInvalidCadence = errors.New("invalid cadence")

// Store is the part of the reminder store a check pass needs.
type Store interface {
	FindDue(ctx context.Context, now time.Time) ([]reminder.Reminder, error)
	MarkNotified(ctx context.Context, id uint64) (bool, error)
}

type Config struct {
	Cadence     time.Duration
	PassTimeout time.Duration
}

// Scheduler polls the store for due reminders on a fixed cadence and
// dispatches each one once. Check passes never overlap.
type Scheduler struct {
	cfg      Config
	store    Store
	notifier notify.Notifier
	clock    reminder.Clock
	log      zerolog.Logger

	lifeMu sync.Mutex // serializes Start, Stop and SetCadence

	mu   sync.Mutex // guards cron and cfg.Cadence
	cron *cron.Cron // nil while stopped

	passMu sync.Mutex

	lastCheck  atomic.Int64 // unix nanos, 0 until the first pass
	passes     atomic.Uint64
	dispatched atomic.Uint64
	failures   atomic.Uint64
}

func New(cfg Config, store Store, n notify.Notifier, clock reminder.Clock, log zerolog.Logger) *Scheduler {
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultCadence
	}
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = DefaultPassTimeout
	}
	if clock == nil {
		clock = reminder.SystemClock
	}
	return &Scheduler{cfg: cfg, store: store, notifier: n, clock: clock, log: log}
}

// Start runs one pass right away and then one per cadence. Calling Start on
// a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.start()
}

func (s *Scheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.log.Debug().Msg("start requested but scheduler already running")
		return
	}

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(&cadence{every: s.cfg.Cadence}, cron.FuncJob(s.tick))
	c.Start()
	s.cron = c

	s.log.Info().Dur("cadence", s.cfg.Cadence).Msg("scheduler started")
}

// Stop cancels the schedule and waits for an in-flight pass to finish, or
// for ctx to expire. No pass starts after Stop returns.
func (s *Scheduler) Stop(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.stop(ctx)
}

func (s *Scheduler) stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		s.log.Debug().Msg("stop requested but scheduler not running")
		return
	}

	start := time.Now()
	select {
	case <-c.Stop().Done():
		s.log.Info().Dur("took", time.Since(start)).Msg("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn().Err(ctx.Err()).Msg("scheduler stop timed out waiting for in-flight pass")
	}
}

// SetCadence changes the interval between passes. A running scheduler is
// restarted on the new cadence, which also runs a pass right away; a stopped
// one just picks it up on the next Start.
func (s *Scheduler) SetCadence(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCadence, every)
	}

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	prev := s.cfg.Cadence
	s.cfg.Cadence = every
	running := s.cron != nil
	s.mu.Unlock()

	s.log.Info().Dur("from", prev).Dur("to", every).Bool("running", running).Msg("cadence changed")
	if running {
		s.stop(ctx)
		s.start()
	}
	return nil
}

// TriggerCheck runs one pass now, whatever the running state. It waits for
// any pass already in progress and leaves the schedule's timer alone.
func (s *Scheduler) TriggerCheck(ctx context.Context) (PassResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PassTimeout)
	defer cancel()
	return s.runPass(ctx, "manual")
}

type Status struct {
	IsRunning  bool
	Cadence    time.Duration
	LastCheck  *time.Time
	Passes     uint64
	Dispatched uint64
	Failures   uint64
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.cron != nil
	every := s.cfg.Cadence
	s.mu.Unlock()

	st := Status{
		IsRunning:  running,
		Cadence:    every,
		Passes:     s.passes.Load(),
		Dispatched: s.dispatched.Load(),
		Failures:   s.failures.Load(),
	}
	if ns := s.lastCheck.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		st.LastCheck = &t
	}
	return st
}

// PassResult summarizes one check pass.
type PassResult struct {
	Found   int
	Sent    int
	Skipped int
	Failed  int
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PassTimeout)
	defer cancel()
	// errors are logged and counted inside the pass; the next tick retries
	_, _ = s.runPass(ctx, "tick")
}

func (s *Scheduler) runPass(ctx context.Context, trigger string) (res PassResult, err error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	log := s.log.With().Str("pass_id", uuid.NewString()).Str("trigger", trigger).Logger()
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			err = fmt.Errorf("check pass panicked: %v", r)
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("check pass panicked")
		}
	}()

	now := s.clock.Now()
	s.lastCheck.Store(now.UnixNano())
	s.passes.Add(1)
	start := time.Now()

	due, err := s.store.FindDue(ctx, now)
	if err != nil {
		s.failures.Add(1)
		log.Error().Err(err).Msg("find due reminders failed")
		return res, err
	}
	res.Found = len(due)

	for _, r := range due {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("remaining", len(due)-res.Sent-res.Skipped-res.Failed).Msg("check pass cut short")
			return res, err
		}
		if r.NotificationSent {
			res.Skipped++
			continue
		}
		s.dispatch(ctx, log, r, &res)
	}

	ev := log.Debug()
	if res.Found > 0 {
		ev = log.Info()
	}
	ev.Int("found", res.Found).
		Int("sent", res.Sent).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("check pass finished")
	return res, nil
}

func (s *Scheduler) dispatch(ctx context.Context, log zerolog.Logger, r reminder.Reminder, res *PassResult) {
	l := log.With().Uint64("reminder_id", r.ID).Uint64("user_id", r.UserID).Logger()

	if err := s.notifier.Notify(ctx, r); err != nil {
		res.Failed++
		s.failures.Add(1)
		l.Warn().Err(err).Msg("notification delivery failed; will retry next pass")
		return
	}

	claimed, err := s.store.MarkNotified(ctx, r.ID)
	if err != nil {
		res.Failed++
		s.failures.Add(1)
		l.Error().Err(err).Msg("mark notified failed")
		return
	}
	if !claimed {
		l.Warn().Msg("reminder was already marked notified by another poller")
	}
	res.Sent++
	s.dispatched.Add(1)
}

// cadence is a fixed-interval cron schedule whose first activation is
// immediate. It is only touched from the cron goroutine.
type cadence struct {
	every   time.Duration
	started bool
}

func (c *cadence) Next(t time.Time) time.Time {
	if !c.started {
		c.started = true
		return t
	}
	return t.Add(c.every)
}

type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Trace().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
