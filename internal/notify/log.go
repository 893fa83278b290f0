package notify

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"remindly/internal/auth"
	"remindly/internal/reminder"
)

// LogNotifier writes the notification to the structured log. With DB set,
// the owner's username and email are looked up and included.
type LogNotifier struct {
	Log zerolog.Logger
	DB  *gorm.DB
}

func (n LogNotifier) Notify(ctx context.Context, r reminder.Reminder) error {
	ev := n.Log.Info().
		Uint64("reminder_id", r.ID).
		Uint64("user_id", r.UserID).
		Str("title", r.Title).
		Str("description", r.Description).
		Str("priority", string(r.Priority)).
		Str("category", string(r.Category)).
		Time("due", r.ReminderDateTime)

	if n.DB != nil {
		var u auth.User
		err := n.DB.WithContext(ctx).Select("username", "email").Where("id = ?", r.UserID).Take(&u).Error
		if err != nil {
			ev = ev.AnErr("owner_lookup_error", err)
		} else {
			ev = ev.Str("username", u.Username).Str("email", u.Email)
		}
	}

	ev.Msg("reminder notification")
	return nil
}
