package notify

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"remindly/internal/reminder"
)

// Notification is an in-app inbox entry. There is at most one per reminder,
// however often the reminder is redelivered.
type Notification struct {
	ID         uint64 `gorm:"primaryKey" json:"id"`
	UserID     uint64 `gorm:"index;not null" json:"user_id"`
	ReminderID uint64 `gorm:"uniqueIndex;not null" json:"reminder_id"`

	Title    string `gorm:"type:text;not null" json:"title"`
	Body     string `gorm:"type:text;not null;default:''" json:"body"`
	Priority string `gorm:"type:text;not null" json:"priority"`
	Category string `gorm:"type:text;not null" json:"category"`

	DueAt     time.Time `gorm:"not null" json:"due_at"`
	IsRead    bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

type InAppNotifier struct {
	DB    *gorm.DB
	Clock reminder.Clock
}

func (n *InAppNotifier) Notify(ctx context.Context, r reminder.Reminder) error {
	clk := n.Clock
	if clk == nil {
		clk = reminder.SystemClock
	}
	row := Notification{
		UserID:     r.UserID,
		ReminderID: r.ID,
		Title:      r.Title,
		Body:       Body(r),
		Priority:   string(r.Priority),
		Category:   string(r.Category),
		DueAt:      reminder.Instant(r.ReminderDateTime),
		CreatedAt:  reminder.Instant(clk.Now()),
	}
	err := n.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "reminder_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return deliveryErr("in-app", err)
	}
	return nil
}

// Inbox is the read side of the in-app notifications.
type Inbox struct {
	DB *gorm.DB
}

func (i *Inbox) List(ctx context.Context, userID uint64, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := i.DB.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var out []Notification
	if err := q.Order("created_at desc, id desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead reports false when the notification does not belong to userID.
func (i *Inbox) MarkRead(ctx context.Context, userID, id uint64) (bool, error) {
	res := i.DB.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
