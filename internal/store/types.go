package store

import (
	"context"
	"errors"
	"time"

	"remindd/internal/reminder"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty, "sqlite" is assumed.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// UserPrefs holds per-owner scheduling preferences, stored alongside the
// owner's profile.
type UserPrefs struct {
	OwnerID  string
	Timezone string
	Quiet    reminder.QuietWindow

	// CheckInTime is the owner's preferred local check-in time ("HH:MM").
	// Empty disables check-ins for this owner.
	CheckInTime string

	// DigestEvery is the digest cadence; 0 disables digests.
	// NextDigestAt is persisted so a milestone trigger can pull it forward.
	DigestEvery  time.Duration
	NextDigestAt time.Time

	DefaultChannels []reminder.Channel
	LastSeenAt      time.Time
}

// CheckInDue reports whether the owner's local wall-clock check-in time
// matches at within ±tolerance. Evaluated in Go because it depends on the
// owner's timezone, which SQL cannot resolve portably.
func (p UserPrefs) CheckInDue(at time.Time, tolerance time.Duration) bool {
	if p.CheckInTime == "" {
		return false
	}
	want, err := parseWallClock(p.CheckInTime)
	if err != nil {
		return false
	}
	local := at.In(locationOf(p.Timezone))
	have := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute

	diff := have - want
	if diff < 0 {
		diff = -diff
	}
	// Also consider the wrap distance (23:55 vs 00:05 is 10 minutes apart).
	if wrap := 24*time.Hour - diff; wrap < diff {
		diff = wrap
	}
	return diff <= tolerance
}

// ReminderFilter narrows owner-scoped reminder queries.
type ReminderFilter struct {
	Status   reminder.Status
	Category reminder.Category
	Since    time.Time // on scheduled_time, inclusive
	Until    time.Time // on scheduled_time, inclusive
	Limit    int
	Offset   int
}

// ExecutionRecord is the persisted mirror of one task execution result.
type ExecutionRecord struct {
	TaskID    string
	TaskName  string
	TaskType  string
	StartedAt time.Time
	Duration  time.Duration
	Success   bool
	Processed int
	Failed    int
	Errors    string // compact JSON, empty when clean
}

// Store is the persistence API the core consumes.
type Store interface {
	CreateReminder(ctx context.Context, r *reminder.Reminder) error
	GetReminder(ctx context.Context, id string) (*reminder.Reminder, error)
	UpdateReminder(ctx context.Context, r *reminder.Reminder) error
	DeleteReminder(ctx context.Context, id string) error

	// DueReminders returns active and snoozed reminders with
	// scheduled_time <= at, oldest first. Snoozed reminders carry their
	// snooze time as scheduled_time, so surfacing here means the snooze
	// has run out. limit <= 0 means no limit.
	DueReminders(ctx context.Context, at time.Time, limit int) ([]*reminder.Reminder, error)
	RemindersByOwner(ctx context.Context, ownerID string, f ReminderFilter) ([]*reminder.Reminder, error)

	PutUserPrefs(ctx context.Context, p UserPrefs) error
	GetUserPrefs(ctx context.Context, ownerID string) (UserPrefs, bool, error)
	// CheckInOwners returns owners whose local check-in time matches at
	// within ±tolerance.
	CheckInOwners(ctx context.Context, at time.Time, tolerance time.Duration) ([]UserPrefs, error)
	// DigestOwners returns owners whose digest is due at or before at.
	DigestOwners(ctx context.Context, at time.Time) ([]UserPrefs, error)
	// InactiveOwners returns owners not seen since the given instant.
	InactiveOwners(ctx context.Context, since time.Time) ([]UserPrefs, error)

	AppendExecution(ctx context.Context, rec ExecutionRecord) error
	Executions(ctx context.Context, limit int) ([]ExecutionRecord, error)
	// PruneExecutions removes execution log rows started before cutoff.
	PruneExecutions(ctx context.Context, cutoff time.Time) (int, error)
	// PruneReminders removes terminal reminders not updated since cutoff.
	PruneReminders(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

func parseWallClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func locationOf(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
