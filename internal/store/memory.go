package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"remindd/internal/reminder"
)

// memoryStore keeps everything in process memory. Used by tests and by
// ephemeral deployments that don't care about restarts.
type memoryStore struct {
	mu        sync.RWMutex
	reminders map[string]*reminder.Reminder
	prefs     map[string]UserPrefs
	execs     []ExecutionRecord
}

func NewMemory() Store {
	return &memoryStore{
		reminders: map[string]*reminder.Reminder{},
		prefs:     map[string]UserPrefs{},
	}
}

func (s *memoryStore) Close() error { return nil }

func cloneReminder(r *reminder.Reminder) *reminder.Reminder {
	cp := *r
	if r.Recurrence != nil {
		rc := *r.Recurrence
		cp.Recurrence = &rc
	}
	if r.SnoozeUntil != nil {
		t := *r.SnoozeUntil
		cp.SnoozeUntil = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Tags = append([]string(nil), r.Tags...)
	cp.Channels = append([]reminder.Channel(nil), r.Channels...)
	cp.AdvanceNotice = append([]time.Duration(nil), r.AdvanceNotice...)
	return &cp
}

func (s *memoryStore) CreateReminder(_ context.Context, r *reminder.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = cloneReminder(r)
	return nil
}

func (s *memoryStore) GetReminder(_ context.Context, id string) (*reminder.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, reminder.NotFoundError{ID: id}
	}
	return cloneReminder(r), nil
}

func (s *memoryStore) UpdateReminder(_ context.Context, r *reminder.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[r.ID]; !ok {
		return reminder.NotFoundError{ID: r.ID}
	}
	s.reminders[r.ID] = cloneReminder(r)
	return nil
}

func (s *memoryStore) DeleteReminder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reminders, id)
	return nil
}

func (s *memoryStore) DueReminders(_ context.Context, at time.Time, limit int) ([]*reminder.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*reminder.Reminder
	for _, r := range s.reminders {
		if (r.Status == reminder.StatusActive || r.Status == reminder.StatusSnoozed) && !r.ScheduledTime.After(at) {
			out = append(out, cloneReminder(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) RemindersByOwner(_ context.Context, ownerID string, f ReminderFilter) ([]*reminder.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*reminder.Reminder
	for _, r := range s.reminders {
		if r.OwnerID != ownerID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		if !f.Since.IsZero() && r.ScheduledTime.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && r.ScheduledTime.After(f.Until) {
			continue
		}
		out = append(out, cloneReminder(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memoryStore) PutUserPrefs(_ context.Context, p UserPrefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[p.OwnerID] = p
	return nil
}

func (s *memoryStore) GetUserPrefs(_ context.Context, ownerID string) (UserPrefs, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[ownerID]
	return p, ok, nil
}

func (s *memoryStore) CheckInOwners(_ context.Context, at time.Time, tolerance time.Duration) ([]UserPrefs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []UserPrefs
	for _, p := range s.prefs {
		if p.CheckInDue(at, tolerance) {
			out = append(out, p)
		}
	}
	sortPrefs(out)
	return out, nil
}

func (s *memoryStore) DigestOwners(_ context.Context, at time.Time) ([]UserPrefs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []UserPrefs
	for _, p := range s.prefs {
		if p.DigestEvery > 0 && !p.NextDigestAt.IsZero() && !p.NextDigestAt.After(at) {
			out = append(out, p)
		}
	}
	sortPrefs(out)
	return out, nil
}

func (s *memoryStore) InactiveOwners(_ context.Context, since time.Time) ([]UserPrefs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []UserPrefs
	for _, p := range s.prefs {
		if !p.LastSeenAt.IsZero() && p.LastSeenAt.Before(since) {
			out = append(out, p)
		}
	}
	sortPrefs(out)
	return out, nil
}

func (s *memoryStore) AppendExecution(_ context.Context, rec ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	s.execs = append(s.execs, rec)
	return nil
}

func (s *memoryStore) Executions(_ context.Context, limit int) ([]ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]ExecutionRecord(nil), s.execs...)
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) PruneExecutions(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.execs[:0]
	removed := 0
	for _, e := range s.execs {
		if e.StartedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.execs = kept
	return removed, nil
}

func (s *memoryStore) PruneReminders(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, r := range s.reminders {
		if r.Status.Terminal() && r.UpdatedAt.Before(cutoff) {
			delete(s.reminders, id)
			removed++
		}
	}
	return removed, nil
}

func sortPrefs(ps []UserPrefs) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].OwnerID < ps[j].OwnerID })
}
