package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"remindly/internal/reminder"
)

var ErrDeliveryFailure = errors.New("delivery failure")

// Notifier delivers one due reminder through some channel.
type Notifier interface {
	Notify(ctx context.Context, r reminder.Reminder) error
}

type Func func(ctx context.Context, r reminder.Reminder) error

func (f Func) Notify(ctx context.Context, r reminder.Reminder) error { return f(ctx, r) }

func deliveryErr(channel string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrDeliveryFailure, channel, err)
}

// Multi sends to every child. It fails if any child fails, after all of
// them have been tried.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, r reminder.Reminder) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	if errors.Is(err, ErrDeliveryFailure) {
		return err
	}
	return deliveryErr("multi", err)
}

// Body renders the human readable part of a reminder notification.
func Body(r reminder.Reminder) string {
	desc := strings.TrimSpace(r.Description)
	if desc == "" {
		desc = "No description"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", desc)
	fmt.Fprintf(&b, "Priority: %s\n", r.Priority)
	fmt.Fprintf(&b, "Category: %s\n", r.Category)
	fmt.Fprintf(&b, "Due: %s", r.ReminderDateTime.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}
