package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("task not found")
	ErrInvalid          = errors.New("invalid task")
	ErrStoreUnavailable = errors.New("task store unavailable")
)

// Task is a plain per-user to-do item. Unlike a reminder it has no due time.
type Task struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UserID    uint64    `gorm:"index;not null" json:"user_id"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Completed bool      `gorm:"not null;default:false" json:"completed"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

type Store struct {
	DB  *gorm.DB
	Now func() time.Time // nil means time.Now
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC().Truncate(time.Second)
	}
	return s.Now().UTC().Truncate(time.Second)
}

func storeErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

func (s *Store) List(ctx context.Context, owner uint64) ([]Task, error) {
	var out []Task
	if err := s.DB.WithContext(ctx).Where("user_id = ?", owner).Order("id asc").Find(&out).Error; err != nil {
		return nil, storeErr("list", err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, owner uint64, title string) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	now := s.now()
	t := Task{UserID: owner, Title: title, CreatedAt: now, UpdatedAt: now}
	if err := s.DB.WithContext(ctx).Create(&t).Error; err != nil {
		return Task{}, storeErr("create", err)
	}
	return t, nil
}

type UpdateInput struct {
	Title     *string
	Completed *bool
}

func (s *Store) Update(ctx context.Context, id, owner uint64, in UpdateInput) (Task, error) {
	m := map[string]any{"updated_at": s.now()}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return Task{}, fmt.Errorf("%w: title must not be empty", ErrInvalid)
		}
		m["title"] = title
	}
	if in.Completed != nil {
		m["completed"] = *in.Completed
	}

	var out Task
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Task{}).Where("id = ? AND user_id = ?", id, owner).Updates(m)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", id).First(&out).Error
	})
	if err != nil {
		return Task{}, storeErr("update", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id, owner uint64) error {
	res := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, owner).Delete(&Task{})
	if res.Error != nil {
		return storeErr("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
