package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"remindly/internal/notify"
	"remindly/internal/reminder"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// memStore mirrors the store contract in memory.
type memStore struct {
	mu        sync.Mutex
	rows      map[uint64]*reminder.Reminder
	findCalls atomic.Int64
	findErr   error
	markErr   map[uint64]error
}

func newMemStore(rs ...reminder.Reminder) *memStore {
	m := &memStore{rows: map[uint64]*reminder.Reminder{}, markErr: map[uint64]error{}}
	for i := range rs {
		r := rs[i]
		m.rows[r.ID] = &r
	}
	return m
}

func (m *memStore) FindDue(_ context.Context, at time.Time) ([]reminder.Reminder, error) {
	m.findCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []reminder.Reminder
	for _, r := range m.rows {
		if reminder.IsDue(*r, at) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReminderDateTime.Equal(out[j].ReminderDateTime) {
			return out[i].ReminderDateTime.Before(out[j].ReminderDateTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) MarkNotified(_ context.Context, id uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.markErr[id]; err != nil {
		return false, err
	}
	r, ok := m.rows[id]
	if !ok || r.NotificationSent {
		return false, nil
	}
	r.NotificationSent = true
	return true, nil
}

func (m *memStore) sent(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].NotificationSent
}

type recorder struct {
	mu    sync.Mutex
	calls []uint64
	fail  map[uint64]bool
}

func (r *recorder) Notify(_ context.Context, rem reminder.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, rem.ID)
	if r.fail[rem.ID] {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func dueReminder(id uint64, offset time.Duration) reminder.Reminder {
	return reminder.Reminder{
		ID:               id,
		UserID:           1,
		Title:            "r",
		ReminderDateTime: now.Add(offset),
		IsActive:         true,
	}
}

func newTestScheduler(st Store, n notify.Notifier, cadence time.Duration) *Scheduler {
	return New(Config{Cadence: cadence}, st, n, reminder.ClockFunc(func() time.Time { return now }), zerolog.Nop())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestTriggerDispatchesDueReminderOnce(t *testing.T) {
	st := newMemStore(dueReminder(1, -time.Hour))
	rec := &recorder{}
	s := newTestScheduler(st, rec, time.Hour)

	res, err := s.TriggerCheck(context.Background())
	if err != nil {
		t.Fatalf("TriggerCheck: %v", err)
	}
	if res.Found != 1 || res.Sent != 1 || rec.count() != 1 {
		t.Fatalf("result = %+v, calls = %d", res, rec.count())
	}
	if !st.sent(1) {
		t.Fatal("notification_sent not set")
	}

	res, err = s.TriggerCheck(context.Background())
	if err != nil {
		t.Fatalf("second TriggerCheck: %v", err)
	}
	if rec.count() != 1 || res.Skipped != 1 {
		t.Fatalf("second pass dispatched again: result = %+v, calls = %d", res, rec.count())
	}
	if s.Status().IsRunning {
		t.Fatal("trigger must not start the schedule")
	}
}

func TestPassSkipsAlreadySent(t *testing.T) {
	sent := dueReminder(1, -2*time.Hour)
	sent.NotificationSent = true
	st := newMemStore(sent, dueReminder(2, -time.Hour))
	rec := &recorder{}
	s := newTestScheduler(st, rec, time.Hour)

	res, err := s.TriggerCheck(context.Background())
	if err != nil {
		t.Fatalf("TriggerCheck: %v", err)
	}
	if res.Found != 2 || res.Skipped != 1 || res.Sent != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(rec.calls) != 1 || rec.calls[0] != 2 {
		t.Fatalf("calls = %v, want [2]", rec.calls)
	}
}

func TestPassDispatchesInDueOrder(t *testing.T) {
	st := newMemStore(dueReminder(3, -time.Minute), dueReminder(1, -time.Hour), dueReminder(2, -time.Hour))
	rec := &recorder{}
	s := newTestScheduler(st, rec, time.Hour)

	if _, err := s.TriggerCheck(context.Background()); err != nil {
		t.Fatalf("TriggerCheck: %v", err)
	}
	want := []uint64{1, 2, 3}
	for i, id := range want {
		if rec.calls[i] != id {
			t.Fatalf("calls = %v, want %v", rec.calls, want)
		}
	}
}

func TestPassToleratesPerReminderFailures(t *testing.T) {
	st := newMemStore(dueReminder(1, -3*time.Hour), dueReminder(2, -2*time.Hour), dueReminder(3, -time.Hour))
	st.markErr[2] = errors.New("write timeout")
	rec := &recorder{fail: map[uint64]bool{1: true}}
	s := newTestScheduler(st, rec, time.Hour)

	res, err := s.TriggerCheck(context.Background())
	if err != nil {
		t.Fatalf("TriggerCheck: %v", err)
	}
	if res.Sent != 1 || res.Failed != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st.sent(1) || st.sent(2) || !st.sent(3) {
		t.Fatal("only reminder 3 should be marked")
	}
	if got := s.Status().Failures; got != 2 {
		t.Fatalf("Failures = %d, want 2", got)
	}

	// failed deliveries are retried on the next pass
	rec.mu.Lock()
	rec.fail = nil
	rec.mu.Unlock()
	delete(st.markErr, 2)
	res, err = s.TriggerCheck(context.Background())
	if err != nil {
		t.Fatalf("TriggerCheck: %v", err)
	}
	if res.Sent != 2 || !st.sent(1) || !st.sent(2) {
		t.Fatalf("retry pass result = %+v", res)
	}
}

func TestPassReportsStoreUnavailable(t *testing.T) {
	st := newMemStore()
	st.findErr = reminder.ErrStoreUnavailable
	s := newTestScheduler(st, &recorder{}, time.Hour)

	if _, err := s.TriggerCheck(context.Background()); !errors.Is(err, reminder.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	status := s.Status()
	if status.Failures != 1 || status.Passes != 1 || status.LastCheck == nil || !status.LastCheck.Equal(now) {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestPassRecoversFromPanic(t *testing.T) {
	st := newMemStore(dueReminder(1, -time.Hour))
	n := notify.Func(func(context.Context, reminder.Reminder) error { panic("notifier bug") })
	s := newTestScheduler(st, n, time.Hour)

	if _, err := s.TriggerCheck(context.Background()); err == nil {
		t.Fatal("expected error from panicking pass")
	}
	// the pass lock must have been released
	st2 := newMemStore()
	s.store = st2
	if _, err := s.TriggerCheck(context.Background()); err != nil {
		t.Fatalf("follow-up TriggerCheck: %v", err)
	}
}

func TestStartRunsImmediatelyAndIsIdempotent(t *testing.T) {
	st := newMemStore()
	cadence := 40 * time.Millisecond
	s := newTestScheduler(st, &recorder{}, cadence)

	s.Start()
	s.Start()
	waitFor(t, time.Second, func() bool { return st.findCalls.Load() >= 1 })
	if !s.Status().IsRunning {
		t.Fatal("expected running")
	}

	base := st.findCalls.Load()
	time.Sleep(10 * cadence)
	got := st.findCalls.Load() - base

	s.Stop(context.Background())
	// one schedule gives ~10 passes in the window; a duplicate would give ~20
	if got < 3 || got > 14 {
		t.Fatalf("passes in window = %d, want about 10", got)
	}
}

func TestStopHaltsFuturePasses(t *testing.T) {
	st := newMemStore()
	cadence := 20 * time.Millisecond
	s := newTestScheduler(st, &recorder{}, cadence)

	s.Start()
	waitFor(t, time.Second, func() bool { return st.findCalls.Load() >= 2 })
	s.Stop(context.Background())
	if s.Status().IsRunning {
		t.Fatal("expected stopped")
	}

	after := st.findCalls.Load()
	time.Sleep(5 * cadence)
	if got := st.findCalls.Load(); got != after {
		t.Fatalf("passes continued after stop: %d -> %d", after, got)
	}

	// stopping again is a no-op
	s.Stop(context.Background())
}

func TestStopWaitsForInFlightPass(t *testing.T) {
	st := newMemStore(dueReminder(1, -time.Hour))
	entered := make(chan struct{})
	release := make(chan struct{})
	n := notify.Func(func(context.Context, reminder.Reminder) error {
		close(entered)
		<-release
		return nil
	})
	s := newTestScheduler(st, n, time.Hour)

	s.Start()
	<-entered

	stopped := make(chan struct{})
	go func() {
		s.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a pass was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the pass finished")
	}
	if !st.sent(1) {
		t.Fatal("in-flight pass should have completed its write-back")
	}
}

func TestPassesNeverOverlap(t *testing.T) {
	var rows []reminder.Reminder
	for i := uint64(1); i <= 5; i++ {
		rows = append(rows, dueReminder(i, -time.Duration(i)*time.Minute))
	}
	st := newMemStore(rows...)

	var active, maxActive atomic.Int32
	n := notify.Func(func(context.Context, reminder.Reminder) error {
		cur := active.Add(1)
		for {
			m := maxActive.Load()
			if cur <= m || maxActive.CompareAndSwap(m, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return nil
	})
	// a store that never marks, so every pass has work
	s := newTestScheduler(noMark{st}, n, 5*time.Millisecond)

	s.Start()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.TriggerCheck(context.Background())
		}()
	}
	wg.Wait()
	time.Sleep(30 * time.Millisecond)
	s.Stop(context.Background())

	if maxActive.Load() != 1 {
		t.Fatalf("max concurrent dispatches = %d, want 1", maxActive.Load())
	}
}

func TestSetCadenceWhileStopped(t *testing.T) {
	st := newMemStore()
	s := newTestScheduler(st, &recorder{}, time.Minute)

	if err := s.SetCadence(context.Background(), time.Hour); err != nil {
		t.Fatalf("SetCadence: %v", err)
	}
	got := s.Status()
	if got.IsRunning || got.Cadence != time.Hour {
		t.Fatalf("status = %+v, want stopped at 1h", got)
	}
	if n := st.findCalls.Load(); n != 0 {
		t.Fatalf("passes = %d, want none while stopped", n)
	}

	for _, bad := range []time.Duration{0, -time.Second} {
		if err := s.SetCadence(context.Background(), bad); !errors.Is(err, ErrInvalidCadence) {
			t.Fatalf("SetCadence(%s) err = %v, want ErrInvalidCadence", bad, err)
		}
	}
	if got := s.Status().Cadence; got != time.Hour {
		t.Fatalf("cadence after rejected change = %s, want 1h", got)
	}
}

func TestSetCadenceRestartsRunningSchedule(t *testing.T) {
	st := newMemStore()
	s := newTestScheduler(st, &recorder{}, time.Hour)

	s.Start()
	defer s.Stop(context.Background())
	waitFor(t, time.Second, func() bool { return st.findCalls.Load() >= 1 })

	// on the hourly schedule nothing else would run inside the test
	if err := s.SetCadence(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("SetCadence: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return st.findCalls.Load() >= 5 })

	got := s.Status()
	if !got.IsRunning || got.Cadence != 20*time.Millisecond {
		t.Fatalf("status = %+v, want running at 20ms", got)
	}
}

type noMark struct{ *memStore }

func (noMark) MarkNotified(context.Context, uint64) (bool, error) { return true, nil }

func TestCadenceFirstActivationIsImmediate(t *testing.T) {
	c := &cadence{every: time.Minute}
	if got := c.Next(now); !got.Equal(now) {
		t.Fatalf("first Next = %v, want %v", got, now)
	}
	if got := c.Next(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("second Next = %v, want %v", got, now.Add(time.Minute))
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(Config{}, newMemStore(), &recorder{}, nil, zerolog.Nop())
	if s.Status().Cadence != DefaultCadence {
		t.Fatalf("Cadence = %v, want %v", s.Status().Cadence, DefaultCadence)
	}
	if s.Status().LastCheck != nil {
		t.Fatal("LastCheck should be nil before any pass")
	}
}
