// Package reminder holds the core domain model: reminders, recurrence
// patterns, delivery channels and the quiet-hours window check.
//
// Everything in this package is pure data and pure computation; persistence
// and side effects live in internal/store and internal/lifecycle.
package reminder

import (
	"strings"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusSnoozed   Status = "snoozed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition out of the status is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

type Category string

const (
	CategoryPersonal Category = "personal"
	CategoryWork     Category = "work"
	CategoryHealth   Category = "health"
	CategorySocial   Category = "social"
	CategoryLearning Category = "learning"
	CategoryCustom   Category = "custom"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type CreatedBy string

const (
	CreatedByUser         CreatedBy = "user"
	CreatedBySystem       CreatedBy = "system"
	CreatedByAISuggestion CreatedBy = "ai_suggestion"
)

type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelWebhook  ChannelType = "webhook"
	ChannelSMS      ChannelType = "sms"
	ChannelPush     ChannelType = "push"
	ChannelLog      ChannelType = "log"
)

// Channel is one delivery transport entry on a reminder.
// Rank orders delivery attempts (lower = tried first).
type Channel struct {
	Type    ChannelType `json:"type"`
	Address string      `json:"address"`
	Enabled bool        `json:"enabled"`
	Rank    int         `json:"rank"`
}

type RecurrenceType string

const (
	RecurDaily   RecurrenceType = "daily"
	RecurWeekly  RecurrenceType = "weekly"
	RecurMonthly RecurrenceType = "monthly"
	RecurYearly  RecurrenceType = "yearly"
	RecurCustom  RecurrenceType = "custom"
)

// RecurrencePattern describes how a reminder repeats.
//
// The constraint sets (DaysOfWeek/DaysOfMonth/MonthsOfYear) only apply to
// custom patterns; the fixed types use plain calendar arithmetic.
type RecurrencePattern struct {
	Type           RecurrenceType `json:"type"`
	Interval       int            `json:"interval"`
	DaysOfWeek     []time.Weekday `json:"days_of_week,omitempty"`
	DaysOfMonth    []int          `json:"days_of_month,omitempty"`
	MonthsOfYear   []time.Month   `json:"months_of_year,omitempty"`
	EndDate        *time.Time     `json:"end_date,omitempty"`
	MaxOccurrences int            `json:"max_occurrences,omitempty"` // 0 = unlimited
}

// Meta carries recurrence-chain bookkeeping.
// The first reminder of a chain has RecurrenceInstance 0 and no ParentID.
type Meta struct {
	ParentID           string `json:"parent_id,omitempty"`
	RecurrenceInstance int    `json:"recurrence_instance,omitempty"`
}

// Reminder is a single user-owned, time-triggered engagement.
//
// Invariant: ScheduledTime always reflects the next instant the reminder
// should fire, regardless of status history (snooze rewrites it, recurrence
// spawns a new reminder rather than mutating the completed one).
type Reminder struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    Category `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Priority    Priority `json:"priority,omitempty"`

	ScheduledTime time.Time          `json:"scheduled_time"`
	Timezone      string             `json:"timezone,omitempty"`
	Recurrence    *RecurrencePattern `json:"recurrence,omitempty"`

	Channels      []Channel       `json:"channels,omitempty"`
	AdvanceNotice []time.Duration `json:"advance_notice,omitempty"`
	Tone          string          `json:"tone,omitempty"`

	Status      Status     `json:"status"`
	SnoozeUntil *time.Time `json:"snooze_until,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy CreatedBy `json:"created_by"`
	Meta      Meta      `json:"meta,omitempty"`
}

// MaxScheduleAhead bounds how far in the future a reminder may be scheduled.
const MaxScheduleAheadYears = 5

// ValidateNew checks the constraints that must hold at creation time.
func (r *Reminder) ValidateNew(now time.Time) error {
	if strings.TrimSpace(r.Title) == "" {
		return ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if r.ScheduledTime.IsZero() {
		return ValidationError{Field: "scheduled_time", Reason: "is required"}
	}
	if !r.ScheduledTime.After(now) {
		return ValidationError{Field: "scheduled_time", Reason: "must be in the future"}
	}
	if r.ScheduledTime.After(now.AddDate(MaxScheduleAheadYears, 0, 0)) {
		return ValidationError{Field: "scheduled_time", Reason: "must be at most 5 years ahead"}
	}
	if r.Recurrence != nil {
		if err := r.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a recurrence pattern's internal consistency.
func (p *RecurrencePattern) Validate() error {
	switch p.Type {
	case RecurDaily, RecurWeekly, RecurMonthly, RecurYearly, RecurCustom:
	default:
		return ValidationError{Field: "recurrence.type", Reason: "unknown type " + string(p.Type)}
	}
	if p.Interval < 1 {
		return ValidationError{Field: "recurrence.interval", Reason: "must be positive"}
	}
	if p.MaxOccurrences < 0 {
		return ValidationError{Field: "recurrence.max_occurrences", Reason: "must not be negative"}
	}
	for _, d := range p.DaysOfMonth {
		if d < 1 || d > 31 {
			return ValidationError{Field: "recurrence.days_of_month", Reason: "day out of range"}
		}
	}
	return nil
}

// EnabledChannels returns the reminder's enabled channels in ascending rank order.
func (r *Reminder) EnabledChannels() []Channel {
	out := make([]Channel, 0, len(r.Channels))
	for _, c := range r.Channels {
		if c.Enabled {
			out = append(out, c)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Rank < out[j-1].Rank; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
