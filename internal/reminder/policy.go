package reminder

import "time"

// Clock is the time source used by the store and the scheduler.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

var SystemClock Clock = ClockFunc(time.Now)

// Instant normalizes t to the store's resolution: UTC, whole seconds.
func Instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// IsDue reports whether r needs a notification at now.
// An expired snooze counts the same as no snooze; SnoozeUntil is never cleared.
func IsDue(r Reminder, now time.Time) bool {
	if !r.IsActive || r.IsCompleted {
		return false
	}
	if r.ReminderDateTime.After(now) {
		return false
	}
	return r.SnoozeUntil == nil || !r.SnoozeUntil.After(now)
}

// Advance returns the next occurrence of a recurring reminder due at t.
// Calendar math happens in loc. Month and year steps clamp the day of month
// to the last day of the target month (Jan 31 -> Feb 28, Feb 29 -> Feb 28).
// The second result is false for TypeOnce and unknown types.
func Advance(t time.Time, typ Type, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)

	var next time.Time
	switch typ {
	case TypeDaily:
		next = local.AddDate(0, 0, 1)
	case TypeWeekly:
		next = local.AddDate(0, 0, 7)
	case TypeMonthly:
		next = addMonthsClamped(local, 1)
	case TypeYearly:
		next = addMonthsClamped(local, 12)
	default:
		return time.Time{}, false
	}
	return next.UTC(), true
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	// day 1 never overflows, so this lands in the target month
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
