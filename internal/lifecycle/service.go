// Package lifecycle implements CRUD and the state machine over individual
// reminders, including recurrence chaining on completion.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"remindd/internal/eventbus"
	"remindd/internal/reminder"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

// Config controls lifecycle defaults.
type Config struct {
	// FallbackChannel is used when neither the create input nor the owner's
	// stored preferences carry any channel.
	FallbackChannel reminder.Channel
}

type Service struct {
	cfg   Config
	store store.Store
	log   logx.Logger
	bus   eventbus.Bus

	// now is swappable for tests.
	now func() time.Time
}

func New(cfg Config, st store.Store, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.FallbackChannel.Type == "" {
		cfg.FallbackChannel = reminder.Channel{Type: reminder.ChannelLog, Address: "default", Enabled: true}
	}
	return &Service{
		cfg:   cfg,
		store: st,
		log:   log,
		bus:   bus,
		now:   time.Now,
	}
}

// CreateInput carries the user-supplied fields for a new reminder.
type CreateInput struct {
	OwnerID     string
	Title       string
	Description string
	Category    reminder.Category
	Tags        []string
	Priority    reminder.Priority

	ScheduledTime time.Time
	Timezone      string
	Recurrence    *reminder.RecurrencePattern

	Channels      []reminder.Channel
	AdvanceNotice []time.Duration
	Tone          string

	CreatedBy reminder.CreatedBy
}

// Create validates and persists a new active reminder.
// Violated constraints surface as reminder.ValidationError.
func (s *Service) Create(ctx context.Context, in CreateInput) (*reminder.Reminder, error) {
	now := s.now()

	r := &reminder.Reminder{
		ID:            uuid.NewString(),
		OwnerID:       in.OwnerID,
		Title:         in.Title,
		Description:   in.Description,
		Category:      in.Category,
		Tags:          in.Tags,
		Priority:      in.Priority,
		ScheduledTime: in.ScheduledTime,
		Timezone:      in.Timezone,
		Recurrence:    in.Recurrence,
		Channels:      in.Channels,
		AdvanceNotice: in.AdvanceNotice,
		Tone:          in.Tone,
		Status:        reminder.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     in.CreatedBy,
	}
	if r.Category == "" {
		r.Category = reminder.CategoryPersonal
	}
	if r.Priority == "" {
		r.Priority = reminder.PriorityMedium
	}
	if r.CreatedBy == "" {
		r.CreatedBy = reminder.CreatedByUser
	}

	if err := r.ValidateNew(now); err != nil {
		return nil, err
	}

	if len(r.Channels) == 0 {
		r.Channels = s.defaultChannels(ctx, r.OwnerID)
	}

	if err := s.store.CreateReminder(ctx, r); err != nil {
		return nil, reminder.ProcessingError{Op: "create reminder", Err: err}
	}

	s.publish(eventbus.TypeReminderCreated, CreatedEvent{
		ID: r.ID, OwnerID: r.OwnerID, ScheduledTime: r.ScheduledTime, CreatedBy: r.CreatedBy,
	})
	s.log.Debug("reminder.created",
		logx.String("id", r.ID),
		logx.String("owner", r.OwnerID),
		logx.Time("scheduled", r.ScheduledTime))
	return r, nil
}

// defaultChannels resolves the owner's stored preference, then the fallback.
func (s *Service) defaultChannels(ctx context.Context, ownerID string) []reminder.Channel {
	prefs, ok, err := s.store.GetUserPrefs(ctx, ownerID)
	if err == nil && ok && len(prefs.DefaultChannels) > 0 {
		return prefs.DefaultChannels
	}
	return []reminder.Channel{s.cfg.FallbackChannel}
}

// Patch carries partial updates; nil fields are left unchanged.
type Patch struct {
	Title         *string
	Description   *string
	Category      *reminder.Category
	Tags          *[]string
	Priority      *reminder.Priority
	ScheduledTime *time.Time
	Timezone      *string
	Recurrence    *reminder.RecurrencePattern
	// ClearRecurrence removes the pattern; wins over Recurrence.
	ClearRecurrence bool
	Channels        *[]reminder.Channel
	Tone            *string
}

// Update applies the patch and re-validates the schedule when it changed.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*reminder.Reminder, error) {
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Tags != nil {
		r.Tags = *p.Tags
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Timezone != nil {
		r.Timezone = *p.Timezone
	}
	if p.Channels != nil {
		r.Channels = *p.Channels
	}
	if p.Tone != nil {
		r.Tone = *p.Tone
	}
	if p.ClearRecurrence {
		r.Recurrence = nil
	} else if p.Recurrence != nil {
		if err := p.Recurrence.Validate(); err != nil {
			return nil, err
		}
		r.Recurrence = p.Recurrence
	}
	if p.ScheduledTime != nil {
		if !p.ScheduledTime.After(now) {
			return nil, reminder.ValidationError{Field: "scheduled_time", Reason: "must be in the future"}
		}
		if p.ScheduledTime.After(now.AddDate(reminder.MaxScheduleAheadYears, 0, 0)) {
			return nil, reminder.ValidationError{Field: "scheduled_time", Reason: "must be at most 5 years ahead"}
		}
		r.ScheduledTime = *p.ScheduledTime
	}
	if r.Title == "" {
		return nil, reminder.ValidationError{Field: "title", Reason: "must not be empty"}
	}

	r.UpdatedAt = now
	if err := s.store.UpdateReminder(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel marks the reminder cancelled (terminal). Idempotent.
func (s *Service) Cancel(ctx context.Context, id string) error {
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return err
	}
	if r.Status == reminder.StatusCancelled {
		return nil
	}
	r.Status = reminder.StatusCancelled
	r.SnoozeUntil = nil
	r.UpdatedAt = s.now()
	if err := s.store.UpdateReminder(ctx, r); err != nil {
		return err
	}
	s.publish(eventbus.TypeReminderCancelled, CancelledEvent{ID: r.ID, OwnerID: r.OwnerID})
	return nil
}

// Delete removes the reminder entirely. Idempotent.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteReminder(ctx, id)
}

// Snooze pushes the reminder to fire at until.
func (s *Service) Snooze(ctx context.Context, id string, until time.Time) (*reminder.Reminder, error) {
	now := s.now()
	if !until.After(now) {
		return nil, reminder.ValidationError{Field: "snooze_until", Reason: "must be in the future"}
	}
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, reminder.ValidationError{Field: "status", Reason: "cannot snooze a " + string(r.Status) + " reminder"}
	}

	from := r.ScheduledTime
	r.Status = reminder.StatusSnoozed
	r.SnoozeUntil = &until
	r.ScheduledTime = until
	r.UpdatedAt = now

	if err := s.store.UpdateReminder(ctx, r); err != nil {
		return nil, err
	}
	s.publish(eventbus.TypeReminderSnoozed, SnoozedEvent{
		ID: r.ID, OwnerID: r.OwnerID, From: from, Until: until,
	})
	return r, nil
}

// Reactivate returns a snoozed reminder to active once its snooze time has
// passed. The sweep calls this when a snoozed reminder surfaces as due, so
// snooze defers delivery instead of silencing the reminder for good.
// Reactivating a reminder in any other status is a no-op.
func (s *Service) Reactivate(ctx context.Context, id string) (*reminder.Reminder, error) {
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != reminder.StatusSnoozed {
		return r, nil
	}
	r.Status = reminder.StatusActive
	r.SnoozeUntil = nil
	r.UpdatedAt = s.now()
	if err := s.store.UpdateReminder(ctx, r); err != nil {
		return nil, err
	}
	s.publish(eventbus.TypeReminderReactivated, ReactivatedEvent{ID: r.ID, OwnerID: r.OwnerID})
	return r, nil
}

// CompleteOptions carries the optional completion details.
type CompleteOptions struct {
	Notes         string
	Effectiveness int // 1..5, 0 = unrated
}

// Complete marks the reminder done and, for recurring reminders, spawns the
// next instance as a brand-new reminder. The completed reminder is never
// mutated back to active.
//
// Returns the completed reminder and the spawned next instance (nil when the
// chain is exhausted or the reminder does not recur).
func (s *Service) Complete(ctx context.Context, id string, opts CompleteOptions) (*reminder.Reminder, *reminder.Reminder, error) {
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if r.Status.Terminal() {
		return nil, nil, reminder.ValidationError{Field: "status", Reason: "cannot complete a " + string(r.Status) + " reminder"}
	}

	now := s.now()
	originalScheduled := r.ScheduledTime

	r.Status = reminder.StatusCompleted
	r.CompletedAt = &now
	r.SnoozeUntil = nil
	r.UpdatedAt = now
	if err := s.store.UpdateReminder(ctx, r); err != nil {
		return nil, nil, err
	}

	var next *reminder.Reminder
	if r.Recurrence != nil {
		nextAt, ok := reminder.NextOccurrence(originalScheduled, *r.Recurrence, r.Meta.RecurrenceInstance)
		if ok {
			next = spawnNext(r, nextAt, now)
			next.ID = uuid.NewString()
			if err := s.store.CreateReminder(ctx, next); err != nil {
				return nil, nil, reminder.ProcessingError{Op: "spawn recurrence instance", Err: err}
			}
		}
	}

	ev := CompletedEvent{
		ID:      r.ID,
		OwnerID: r.OwnerID,
		// On-time means completed at or before the scheduled instant.
		OnTime:        !now.After(originalScheduled),
		Notes:         opts.Notes,
		Effectiveness: opts.Effectiveness,
	}
	if next != nil {
		ev.SpawnedID = next.ID
	}
	s.publish(eventbus.TypeReminderCompleted, ev)
	return r, next, nil
}

// MarkExpired transitions an overdue active reminder to expired.
// Used by the sweep handler's expiry policy.
func (s *Service) MarkExpired(ctx context.Context, id string) error {
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != reminder.StatusActive && r.Status != reminder.StatusSnoozed {
		return nil
	}
	r.Status = reminder.StatusExpired
	r.UpdatedAt = s.now()
	if err := s.store.UpdateReminder(ctx, r); err != nil {
		return err
	}
	s.publish(eventbus.TypeReminderExpired, ExpiredEvent{ID: r.ID, OwnerID: r.OwnerID})
	return nil
}

func spawnNext(from *reminder.Reminder, at, now time.Time) *reminder.Reminder {
	next := *from
	next.ScheduledTime = at
	next.Status = reminder.StatusActive
	next.SnoozeUntil = nil
	next.CompletedAt = nil
	next.CreatedAt = now
	next.UpdatedAt = now
	next.Meta = reminder.Meta{
		ParentID:           from.ID,
		RecurrenceInstance: from.Meta.RecurrenceInstance + 1,
	}
	// Deep-copy the shared slices so later edits don't alias the chain.
	next.Tags = append([]string(nil), from.Tags...)
	next.Channels = append([]reminder.Channel(nil), from.Channels...)
	next.AdvanceNotice = append([]time.Duration(nil), from.AdvanceNotice...)
	if from.Recurrence != nil {
		rc := *from.Recurrence
		next.Recurrence = &rc
	}
	return &next
}

func (s *Service) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
