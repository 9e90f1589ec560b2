package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"remindd/internal/eventbus"
	"remindd/internal/reminder"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

func newTestService(t *testing.T, now time.Time) (*Service, store.Store) {
	t.Helper()
	st := store.NewMemory()
	svc := New(Config{
		FallbackChannel: reminder.Channel{Type: reminder.ChannelLog, Enabled: true},
	}, st, logx.Nop(), eventbus.New())
	svc.now = func() time.Time { return now }
	return svc, st
}

func TestCreateDefaults(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, st := newTestService(t, now)
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateInput{
		OwnerID:       "alice",
		Title:         "take medication",
		ScheduledTime: now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if r.Status != reminder.StatusActive {
		t.Fatalf("Status = %s, want active", r.Status)
	}
	if r.Category != reminder.CategoryPersonal {
		t.Fatalf("Category = %s, want personal default", r.Category)
	}
	if r.Priority != reminder.PriorityMedium {
		t.Fatalf("Priority = %s, want medium default", r.Priority)
	}
	if r.CreatedBy != reminder.CreatedByUser {
		t.Fatalf("CreatedBy = %s, want user default", r.CreatedBy)
	}
	// No channels anywhere: the fallback channel must be applied.
	if len(r.Channels) != 1 || r.Channels[0].Type != reminder.ChannelLog {
		t.Fatalf("Channels = %v, want the log fallback", r.Channels)
	}

	got, err := st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReminder error: %v", err)
	}
	if got.Title != "take medication" {
		t.Fatalf("persisted title = %q", got.Title)
	}
}

func TestCreateUsesOwnerDefaultChannels(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, st := newTestService(t, now)
	ctx := context.Background()

	if err := st.PutUserPrefs(ctx, store.UserPrefs{
		OwnerID: "bob",
		DefaultChannels: []reminder.Channel{
			{Type: reminder.ChannelTelegram, Address: "42", Enabled: true},
		},
	}); err != nil {
		t.Fatalf("PutUserPrefs error: %v", err)
	}

	r, err := svc.Create(ctx, CreateInput{
		OwnerID:       "bob",
		Title:         "standup",
		ScheduledTime: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(r.Channels) != 1 || r.Channels[0].Type != reminder.ChannelTelegram {
		t.Fatalf("Channels = %v, want owner's telegram default", r.Channels)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	_, err := svc.Create(context.Background(), CreateInput{
		OwnerID:       "alice",
		Title:         "too late",
		ScheduledTime: now.Add(-time.Hour),
	})
	var verr reminder.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSnooze(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, st := newTestService(t, now)
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateInput{
		OwnerID: "alice", Title: "call mom", ScheduledTime: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	until := now.Add(3 * time.Hour)
	snoozed, err := svc.Snooze(ctx, r.ID, until)
	if err != nil {
		t.Fatalf("Snooze error: %v", err)
	}
	if snoozed.Status != reminder.StatusSnoozed {
		t.Fatalf("Status = %s, want snoozed", snoozed.Status)
	}
	if !snoozed.ScheduledTime.Equal(until) {
		t.Fatalf("ScheduledTime = %v, want %v", snoozed.ScheduledTime, until)
	}

	// A snoozed reminder must not be due before its snooze time.
	due, err := st.DueReminders(ctx, now.Add(2*time.Hour), 0)
	if err != nil {
		t.Fatalf("DueReminders error: %v", err)
	}
	for _, d := range due {
		if d.ID == r.ID {
			t.Fatal("snoozed reminder surfaced as due before snooze_until")
		}
	}

	// Once snooze_until passes, the reminder is due again.
	due, err = st.DueReminders(ctx, until.Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("DueReminders error: %v", err)
	}
	found := false
	for _, d := range due {
		if d.ID == r.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("snoozed reminder not due after snooze_until passed")
	}

	// Reactivate flips it back to active and clears the snooze.
	woken, err := svc.Reactivate(ctx, r.ID)
	if err != nil {
		t.Fatalf("Reactivate error: %v", err)
	}
	if woken.Status != reminder.StatusActive || woken.SnoozeUntil != nil {
		t.Fatalf("reactivated = %+v, want active with no snooze", woken)
	}

	// Reactivating an already-active reminder is a no-op.
	again, err := svc.Reactivate(ctx, r.ID)
	if err != nil {
		t.Fatalf("Reactivate error: %v", err)
	}
	if again.Status != reminder.StatusActive {
		t.Fatalf("Status = %s, want active", again.Status)
	}

	// Snoozing into the past is rejected.
	if _, err := svc.Snooze(ctx, r.ID, now.Add(-time.Minute)); err == nil {
		t.Fatal("expected error snoozing into the past")
	}
}

func TestCompleteSpawnsNextInstance(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	ctx := context.Background()

	scheduled := now.Add(time.Hour)
	r, err := svc.Create(ctx, CreateInput{
		OwnerID:       "alice",
		Title:         "take medication",
		ScheduledTime: scheduled,
		Recurrence:    &reminder.RecurrencePattern{Type: reminder.RecurDaily, Interval: 1},
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	done, next, err := svc.Complete(ctx, r.ID, CompleteOptions{Notes: "done", Effectiveness: 4})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if done.Status != reminder.StatusCompleted {
		t.Fatalf("Status = %s, want completed", done.Status)
	}
	if next == nil {
		t.Fatal("recurring reminder must spawn a next instance")
	}
	if next.ID == done.ID {
		t.Fatal("spawned instance must be a new reminder")
	}
	if next.Status != reminder.StatusActive {
		t.Fatalf("spawned Status = %s, want active", next.Status)
	}
	if want := scheduled.AddDate(0, 0, 1); !next.ScheduledTime.Equal(want) {
		t.Fatalf("spawned ScheduledTime = %v, want %v", next.ScheduledTime, want)
	}
	if next.Meta.ParentID != done.ID {
		t.Fatalf("ParentID = %s, want %s", next.Meta.ParentID, done.ID)
	}
	if next.Meta.RecurrenceInstance != 1 {
		t.Fatalf("RecurrenceInstance = %d, want 1", next.Meta.RecurrenceInstance)
	}

	// Completing again is rejected: completed is terminal.
	if _, _, err := svc.Complete(ctx, r.ID, CompleteOptions{}); err == nil {
		t.Fatal("expected error completing a completed reminder")
	}
}

func TestCompleteHonorsMaxOccurrences(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateInput{
		OwnerID:       "alice",
		Title:         "physio",
		ScheduledTime: now.Add(time.Hour),
		Recurrence:    &reminder.RecurrencePattern{Type: reminder.RecurDaily, Interval: 1, MaxOccurrences: 2},
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	// Instance 0 completes and spawns instance 1, the last allowed.
	_, next, err := svc.Complete(ctx, r.ID, CompleteOptions{})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if next == nil {
		t.Fatal("instance 0 of 2 should spawn")
	}

	// Instance 1 completes; the chain is exhausted.
	_, next2, err := svc.Complete(ctx, next.ID, CompleteOptions{})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if next2 != nil {
		t.Fatal("chain of 2 must not spawn a third instance")
	}
}

func TestCancelIdempotent(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateInput{
		OwnerID: "alice", Title: "dentist", ScheduledTime: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := svc.Cancel(ctx, r.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if err := svc.Cancel(ctx, r.ID); err != nil {
		t.Fatalf("second Cancel must be a no-op, got %v", err)
	}
}

func TestMarkExpired(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, st := newTestService(t, now)
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateInput{
		OwnerID: "alice", Title: "old", ScheduledTime: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := svc.MarkExpired(ctx, r.ID); err != nil {
		t.Fatalf("MarkExpired error: %v", err)
	}
	got, err := st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReminder error: %v", err)
	}
	if got.Status != reminder.StatusExpired {
		t.Fatalf("Status = %s, want expired", got.Status)
	}
}

func TestUpdateMissingReminder(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	title := "x"
	_, err := svc.Update(context.Background(), "no-such-id", Patch{Title: &title})
	var nf reminder.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
