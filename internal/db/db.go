package db

import (
	"fmt"

	"remindly/internal/auth"
	"remindly/internal/notify"
	"remindly/internal/reminder"
	"remindly/internal/task"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a gorm handle. driver is "postgres" or "sqlite"; sqlite is
// meant for local runs and tests.
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		// one writer at a time; avoids SQLITE_BUSY on concurrent updates
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&auth.User{},
		&reminder.Reminder{},
		&notify.Notification{},
		&task.Task{},
	); err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		// due scan: is_active/is_completed equality, then range on the due time
		`create index if not exists idx_reminders_due on reminders(is_active, is_completed, reminder_date_time);`,
		`create index if not exists idx_reminders_user_time on reminders(user_id, reminder_date_time);`,
		`create index if not exists idx_notifications_user_created on notifications(user_id, created_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
