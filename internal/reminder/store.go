package reminder

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Store is the query/update facade over the reminders table.
type Store struct {
	DB *gorm.DB

	Clock    Clock
	Location *time.Location // calendar for recurrence; nil means UTC
}

func (s *Store) now() time.Time {
	c := s.Clock
	if c == nil {
		c = SystemClock
	}
	return Instant(c.Now())
}

func dueScope(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.
			Where("is_active = ? AND is_completed = ?", true, false).
			Where("reminder_date_time <= ?", now).
			Where("(snooze_until IS NULL OR snooze_until <= ?)", now)
	}
}

func ownedBy(id, owner uint64) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("id = ? AND user_id = ?", id, owner)
	}
}

const byDueTime = "reminder_date_time asc, id asc"

// FindDue returns every due reminder, earliest first; ties keep insertion order.
func (s *Store) FindDue(ctx context.Context, now time.Time) ([]Reminder, error) {
	var out []Reminder
	err := s.DB.WithContext(ctx).
		Scopes(dueScope(Instant(now))).
		Order(byDueTime).
		Find(&out).Error
	if err != nil {
		return nil, storeErr("find due", err)
	}
	return out, nil
}

func (s *Store) FindDueForUser(ctx context.Context, owner uint64, now time.Time) ([]Reminder, error) {
	var out []Reminder
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", owner).
		Scopes(dueScope(Instant(now))).
		Order(byDueTime).
		Find(&out).Error
	if err != nil {
		return nil, storeErr("find due for user", err)
	}
	return out, nil
}

// FindUpcoming lists open reminders in (now, now+horizon].
func (s *Store) FindUpcoming(ctx context.Context, owner uint64, now time.Time, horizon time.Duration) ([]Reminder, error) {
	now = Instant(now)
	var out []Reminder
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", owner).
		Where("is_active = ? AND is_completed = ?", true, false).
		Where("reminder_date_time > ? AND reminder_date_time <= ?", now, now.Add(horizon)).
		Order(byDueTime).
		Find(&out).Error
	if err != nil {
		return nil, storeErr("find upcoming", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id, owner uint64) (Reminder, error) {
	var r Reminder
	if err := s.DB.WithContext(ctx).Scopes(ownedBy(id, owner)).First(&r).Error; err != nil {
		return Reminder{}, storeErr("get", err)
	}
	return r, nil
}

type Filter struct {
	Status   string // "", all, active, completed, inactive
	Category string
	Priority string
}

func (s *Store) List(ctx context.Context, owner uint64, f Filter) ([]Reminder, error) {
	q := s.DB.WithContext(ctx).Where("user_id = ?", owner)

	switch strings.ToLower(strings.TrimSpace(f.Status)) {
	case "", "all":
	case "active":
		q = q.Where("is_active = ? AND is_completed = ?", true, false)
	case "completed":
		q = q.Where("is_completed = ?", true)
	case "inactive":
		q = q.Where("is_active = ?", false)
	default:
		return nil, invalid("status", "must be one of all, active, completed, inactive")
	}

	if c := strings.ToLower(strings.TrimSpace(f.Category)); c != "" && c != "all" {
		if !Category(c).Valid() {
			return nil, invalid("category", "unknown category")
		}
		q = q.Where("category = ?", c)
	}
	if p := strings.ToLower(strings.TrimSpace(f.Priority)); p != "" && p != "all" {
		if !Priority(p).Valid() {
			return nil, invalid("priority", "unknown priority")
		}
		q = q.Where("priority = ?", p)
	}

	var out []Reminder
	if err := q.Order(byDueTime).Find(&out).Error; err != nil {
		return nil, storeErr("list", err)
	}
	return out, nil
}

type CreateInput struct {
	Title            string
	Description      string
	ReminderDateTime time.Time
	ReminderType     Type
	Priority         Priority
	Category         Category
}

func (s *Store) Create(ctx context.Context, owner uint64, in CreateInput) (Reminder, error) {
	now := s.now()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Reminder{}, invalid("title", "required")
	}
	if in.ReminderDateTime.IsZero() {
		return Reminder{}, invalid("reminder_date_time", "required")
	}
	at := Instant(in.ReminderDateTime)
	if !at.After(now) {
		return Reminder{}, invalid("reminder_date_time", "must be in the future")
	}

	r := Reminder{
		UserID:           owner,
		Title:            title,
		Description:      strings.TrimSpace(in.Description),
		ReminderDateTime: at,
		ReminderType:     in.ReminderType,
		Priority:         in.Priority,
		Category:         in.Category,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if r.ReminderType == "" {
		r.ReminderType = TypeOnce
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if r.Category == "" {
		r.Category = CategoryPersonal
	}
	if err := validateEnums(r.ReminderType, r.Priority, r.Category); err != nil {
		return Reminder{}, err
	}

	if err := s.DB.WithContext(ctx).Create(&r).Error; err != nil {
		return Reminder{}, storeErr("create", err)
	}
	return r, nil
}

func validateEnums(t Type, p Priority, c Category) error {
	if !t.Valid() {
		return invalid("reminder_type", "must be one of once, daily, weekly, monthly, yearly")
	}
	if !p.Valid() {
		return invalid("priority", "must be one of low, medium, high")
	}
	if !c.Valid() {
		return invalid("category", "must be one of personal, work, health, social, other")
	}
	return nil
}

// UpdateInput is a partial update; nil fields are left alone.
type UpdateInput struct {
	Title            *string
	Description      *string
	ReminderDateTime *time.Time
	ReminderType     *Type
	Priority         *Priority
	Category         *Category
	IsActive         *bool
}

func (s *Store) Update(ctx context.Context, id, owner uint64, in UpdateInput) (Reminder, error) {
	now := s.now()
	m := map[string]any{"updated_at": now}

	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return Reminder{}, invalid("title", "must not be empty")
		}
		m["title"] = t
	}
	if in.Description != nil {
		m["description"] = strings.TrimSpace(*in.Description)
	}
	if in.ReminderDateTime != nil {
		at := Instant(*in.ReminderDateTime)
		if !at.After(now) {
			return Reminder{}, invalid("reminder_date_time", "must be in the future")
		}
		m["reminder_date_time"] = at
	}
	if in.ReminderType != nil {
		if !in.ReminderType.Valid() {
			return Reminder{}, invalid("reminder_type", "must be one of once, daily, weekly, monthly, yearly")
		}
		m["reminder_type"] = string(*in.ReminderType)
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return Reminder{}, invalid("priority", "must be one of low, medium, high")
		}
		m["priority"] = string(*in.Priority)
	}
	if in.Category != nil {
		if !in.Category.Valid() {
			return Reminder{}, invalid("category", "must be one of personal, work, health, social, other")
		}
		m["category"] = string(*in.Category)
	}
	if in.IsActive != nil {
		m["is_active"] = *in.IsActive
	}

	var out Reminder
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Reminder{}).Scopes(ownedBy(id, owner)).Updates(m)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", id).First(&out).Error
	})
	if err != nil {
		return Reminder{}, storeErr("update", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id, owner uint64) error {
	res := s.DB.WithContext(ctx).Scopes(ownedBy(id, owner)).Delete(&Reminder{})
	if res.Error != nil {
		return storeErr("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete marks an open reminder done. See CompleteWithNext.
func (s *Store) Complete(ctx context.Context, id, owner uint64) (Reminder, error) {
	done, _, err := s.CompleteWithNext(ctx, id, owner)
	return done, err
}

// CompleteWithNext completes an active, not yet completed reminder and, for
// recurring types, inserts its successor in the same transaction. The
// is_completed guard on the update means at most one caller ever creates a
// successor for a given row.
func (s *Store) CompleteWithNext(ctx context.Context, id, owner uint64) (Reminder, *Reminder, error) {
	now := s.now()

	var (
		done Reminder
		next *Reminder
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Reminder{}).
			Scopes(ownedBy(id, owner)).
			Where("is_active = ? AND is_completed = ?", true, false).
			Updates(map[string]any{
				"is_completed": true,
				"completed_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Where("id = ?", id).First(&done).Error; err != nil {
			return err
		}

		at, ok := Advance(done.ReminderDateTime, done.ReminderType, s.Location)
		if !ok {
			return nil
		}
		succ := Reminder{
			UserID:           done.UserID,
			Title:            done.Title,
			Description:      done.Description,
			ReminderDateTime: Instant(at),
			ReminderType:     done.ReminderType,
			Priority:         done.Priority,
			Category:         done.Category,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Create(&succ).Error; err != nil {
			return err
		}
		next = &succ
		return nil
	})
	if err != nil {
		return Reminder{}, nil, storeErr("complete", err)
	}
	return done, next, nil
}

// MaxSnoozeMinutes caps a snooze at 366 days.
const MaxSnoozeMinutes = 366 * 24 * 60

// Snooze defers due-ness until now+minutes. Flags are left untouched.
func (s *Store) Snooze(ctx context.Context, id, owner uint64, minutes int) (Reminder, error) {
	if minutes < 0 {
		return Reminder{}, invalid("minutes", "must not be negative")
	}
	if minutes > MaxSnoozeMinutes {
		return Reminder{}, invalid("minutes", "must be at most 366 days")
	}
	now := s.now()
	until := now.Add(time.Duration(minutes) * time.Minute)

	var out Reminder
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Reminder{}).
			Scopes(ownedBy(id, owner)).
			Updates(map[string]any{"snooze_until": until, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", id).First(&out).Error
	})
	if err != nil {
		return Reminder{}, storeErr("snooze", err)
	}
	return out, nil
}

// MarkNotified flips notification_sent false->true with a conditional
// update. claimed is true only for the caller that performed the flip, which
// makes it safe to run from several pollers against one database.
func (s *Store) MarkNotified(ctx context.Context, id uint64) (claimed bool, err error) {
	res := s.DB.WithContext(ctx).
		Model(&Reminder{}).
		Where("id = ? AND notification_sent = ?", id, false).
		Updates(map[string]any{"notification_sent": true, "updated_at": s.now()})
	if res.Error != nil {
		return false, storeErr("mark notified", res.Error)
	}
	return res.RowsAffected > 0, nil
}

type Stats struct {
	Total      int64              `json:"total"`
	Active     int64              `json:"active"`
	Completed  int64              `json:"completed"`
	Due        int64              `json:"due"`
	Today      int64              `json:"today"`
	ByCategory map[Category]int64 `json:"by_category"`
	ByPriority map[Priority]int64 `json:"by_priority"`
}

func (s *Store) Stats(ctx context.Context, owner uint64, now time.Time) (Stats, error) {
	now = Instant(now)
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	startOfDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
	endOfDay := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc).UTC()

	db := s.DB.WithContext(ctx)
	mine := func() *gorm.DB { return db.Model(&Reminder{}).Where("user_id = ?", owner) }

	st := Stats{
		ByCategory: map[Category]int64{},
		ByPriority: map[Priority]int64{},
	}
	counts := []struct {
		dst *int64
		q   *gorm.DB
	}{
		{&st.Total, mine()},
		{&st.Active, mine().Where("is_active = ? AND is_completed = ?", true, false)},
		{&st.Completed, mine().Where("is_completed = ?", true)},
		{&st.Due, mine().Scopes(dueScope(now))},
		{&st.Today, mine().Where("reminder_date_time >= ? AND reminder_date_time < ?", startOfDay, endOfDay)},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dst).Error; err != nil {
			return Stats{}, storeErr("stats", err)
		}
	}

	type bucket struct {
		Name  string
		Count int64
	}
	var cats, prios []bucket
	if err := mine().Select("category as name, count(*) as count").Group("category").Scan(&cats).Error; err != nil {
		return Stats{}, storeErr("stats", err)
	}
	if err := mine().Select("priority as name, count(*) as count").Group("priority").Scan(&prios).Error; err != nil {
		return Stats{}, storeErr("stats", err)
	}
	for _, b := range cats {
		st.ByCategory[Category(b.Name)] = b.Count
	}
	for _, b := range prios {
		st.ByPriority[Priority(b.Name)] = b.Count
	}
	return st, nil
}
