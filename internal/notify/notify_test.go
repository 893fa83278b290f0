package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"remindly/internal/auth"
	"remindly/internal/reminder"
)

var due = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func sample() reminder.Reminder {
	return reminder.Reminder{
		ID:               11,
		UserID:           3,
		Title:            "dentist",
		ReminderDateTime: due,
		Priority:         reminder.PriorityHigh,
		Category:         reminder.CategoryHealth,
	}
}

func TestBody(t *testing.T) {
	b := Body(sample())
	for _, want := range []string{"No description", "Priority: high", "Category: health", "Due: 2025-03-10 09:00 UTC"} {
		if !strings.Contains(b, want) {
			t.Fatalf("body %q missing %q", b, want)
		}
	}
}

func TestMultiTriesEveryChild(t *testing.T) {
	var calls int
	ok := Func(func(context.Context, reminder.Reminder) error { calls++; return nil })
	bad := Func(func(context.Context, reminder.Reminder) error { calls++; return errors.New("smtp down") })

	err := Multi{bad, ok, ok}.Notify(context.Background(), sample())
	if !errors.Is(err, ErrDeliveryFailure) {
		t.Fatalf("err = %v, want ErrDeliveryFailure", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}

	if err := (Multi{ok}).Notify(context.Background(), sample()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Log: zerolog.New(&buf)}
	if err := n.Notify(context.Background(), sample()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("bad log output %q: %v", buf.String(), err)
	}
	if rec["title"] != "dentist" || rec["reminder_id"] != float64(11) {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestLogNotifierIncludesOwner(t *testing.T) {
	gdb := openInbox(t)
	if err := gdb.AutoMigrate(&auth.User{}); err != nil {
		t.Fatalf("migrate users: %v", err)
	}
	if err := gdb.Create(&auth.User{ID: 3, Email: "ann@example.com", Username: "ann", PasswordHash: "x", CreatedAt: due}).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	var buf bytes.Buffer
	n := LogNotifier{Log: zerolog.New(&buf), DB: gdb}
	if err := n.Notify(context.Background(), sample()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("bad log output %q: %v", buf.String(), err)
	}
	if rec["username"] != "ann" || rec["email"] != "ann@example.com" {
		t.Fatalf("owner missing from record: %v", rec)
	}

	buf.Reset()
	orphan := sample()
	orphan.UserID = 99
	if err := n.Notify(context.Background(), orphan); err != nil {
		t.Fatalf("Notify orphan: %v", err)
	}
	if !strings.Contains(buf.String(), "owner_lookup_error") {
		t.Fatalf("expected lookup error field, got %q", buf.String())
	}
}

func openInbox(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "inbox.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := gdb.AutoMigrate(&Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestInAppNotifierAndInbox(t *testing.T) {
	gdb := openInbox(t)
	ctx := context.Background()
	n := &InAppNotifier{DB: gdb, Clock: reminder.ClockFunc(func() time.Time { return due })}

	if err := n.Notify(ctx, sample()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	inbox := &Inbox{DB: gdb}
	got, err := inbox.List(ctx, 3, true, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ReminderID != 11 || got[0].Title != "dentist" || got[0].IsRead {
		t.Fatalf("unexpected inbox: %+v", got)
	}

	if ok, err := inbox.MarkRead(ctx, 4, got[0].ID); err != nil || ok {
		t.Fatalf("MarkRead foreign = %v, %v; want false, nil", ok, err)
	}
	if ok, err := inbox.MarkRead(ctx, 3, got[0].ID); err != nil || !ok {
		t.Fatalf("MarkRead = %v, %v; want true, nil", ok, err)
	}
	unread, err := inbox.List(ctx, 3, true, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected no unread, got %d", len(unread))
	}
}

func TestInAppRedeliveryKeepsOneRow(t *testing.T) {
	gdb := openInbox(t)
	ctx := context.Background()
	inapp := &InAppNotifier{DB: gdb, Clock: reminder.ClockFunc(func() time.Time { return due })}
	failing := Func(func(context.Context, reminder.Reminder) error { return errors.New("chat not found") })

	for i := 0; i < 3; i++ {
		if err := (Multi{inapp, failing}).Notify(ctx, sample()); !errors.Is(err, ErrDeliveryFailure) {
			t.Fatalf("pass %d err = %v, want ErrDeliveryFailure", i, err)
		}
	}

	var rows int64
	if err := gdb.Model(&Notification{}).Where("reminder_id = ?", sample().ID).Count(&rows).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("inbox rows = %d, want 1", rows)
	}

	other := sample()
	other.ID = 12
	if err := inapp.Notify(ctx, other); err != nil {
		t.Fatalf("Notify other: %v", err)
	}
	got, err := (&Inbox{DB: gdb}).List(ctx, 3, false, 0)
	if err != nil || len(got) != 2 {
		t.Fatalf("List = %d rows, %v; want 2", len(got), err)
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(to tele.Recipient, what any, _ ...any) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, to.Recipient()+"|"+what.(string))
	return &tele.Message{ID: len(f.sent)}, nil
}

func TestTelegramNotifier(t *testing.T) {
	s := &fakeSender{}
	n := newTelegram(s, 42, 100)
	if err := n.Notify(context.Background(), sample()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 || !strings.HasPrefix(s.sent[0], "42|⏰ Reminder: dentist") {
		t.Fatalf("unexpected sends: %v", s.sent)
	}

	// another user's reminder lands in the same operator chat
	other := sample()
	other.UserID = 4
	other.Title = "gym"
	if err := n.Notify(context.Background(), other); err != nil {
		t.Fatalf("Notify other user: %v", err)
	}
	if len(s.sent) != 2 || !strings.HasPrefix(s.sent[1], "42|⏰ Reminder: gym") {
		t.Fatalf("unexpected sends: %v", s.sent)
	}

	s.err = errors.New("429 too many requests")
	if err := n.Notify(context.Background(), sample()); !errors.Is(err, ErrDeliveryFailure) {
		t.Fatalf("err = %v, want ErrDeliveryFailure", err)
	}
}

func TestTelegramNotifierHonoursContext(t *testing.T) {
	n := newTelegram(&fakeSender{}, 42, 1)
	ctx, cancel := context.WithCancel(context.Background())
	// drain the single burst token, then a cancelled wait must fail fast
	if err := n.Notify(ctx, sample()); err != nil {
		t.Fatalf("first Notify: %v", err)
	}
	cancel()
	if err := n.Notify(ctx, sample()); !errors.Is(err, ErrDeliveryFailure) {
		t.Fatalf("err = %v, want ErrDeliveryFailure", err)
	}
}

func TestNewTelegramValidation(t *testing.T) {
	if _, err := NewTelegram("", 1, 1); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := NewTelegram("tok", 0, 1); err == nil {
		t.Fatal("expected error for empty chat")
	}
}
