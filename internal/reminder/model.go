package reminder

import "time"

type Type string

const (
	TypeOnce    Type = "once"
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
	TypeMonthly Type = "monthly"
	TypeYearly  Type = "yearly"
)

func (t Type) Valid() bool {
	switch t {
	case TypeOnce, TypeDaily, TypeWeekly, TypeMonthly, TypeYearly:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Category string

const (
	CategoryPersonal Category = "personal"
	CategoryWork     Category = "work"
	CategoryHealth   Category = "health"
	CategorySocial   Category = "social"
	CategoryOther    Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryPersonal, CategoryWork, CategoryHealth, CategorySocial, CategoryOther:
		return true
	}
	return false
}

// Reminder is one due instance. A recurring series is a chain of rows,
// each completed row pointing forward only through its successor's date.
type Reminder struct {
	ID     uint64 `gorm:"primaryKey" json:"id"`
	UserID uint64 `gorm:"index;not null" json:"user_id"`

	Title       string `gorm:"type:text;not null" json:"title"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`

	ReminderDateTime time.Time `gorm:"not null" json:"reminder_date_time"`
	ReminderType     Type      `gorm:"type:text;not null;default:'once'" json:"reminder_type"`
	Priority         Priority  `gorm:"type:text;not null;default:'medium'" json:"priority"`
	Category         Category  `gorm:"type:text;not null;default:'personal'" json:"category"`

	IsActive    bool       `gorm:"not null" json:"is_active"`
	IsCompleted bool       `gorm:"not null;default:false" json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	SnoozeUntil *time.Time `json:"snooze_until,omitempty"`

	NotificationSent bool `gorm:"not null;default:false" json:"notification_sent"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
