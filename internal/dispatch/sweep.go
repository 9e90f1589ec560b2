package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"remindd/internal/batch"
	"remindd/internal/delivery"
	"remindd/internal/lifecycle"
	"remindd/internal/reminder"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

// SweepConfig controls the reminder sweep pass.
type SweepConfig struct {
	BatchSize int
	// Limit caps the due population per pass; <=0 means unlimited.
	Limit int
	// ExpireAfter marks a reminder expired instead of delivering once it is
	// overdue by more than this. <=0 means 168h.
	ExpireAfter time.Duration
}

// SweepHandler delivers due reminders grouped per owner.
//
// Delivery is not completion: a delivered reminder stays active until the
// user's own completion flow runs, and a failed delivery is simply retried
// by the next pass because the due query recomputes from persisted state.
type SweepHandler struct {
	cfg       SweepConfig
	store     store.Store
	lifecycle *lifecycle.Service
	router    *delivery.Router
	log       logx.Logger
}

func NewSweepHandler(cfg SweepConfig, st store.Store, lc *lifecycle.Service, router *delivery.Router, log logx.Logger) *SweepHandler {
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 168 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SweepHandler{cfg: cfg, store: st, lifecycle: lc, router: router, log: log}
}

func (h *SweepHandler) Type() TaskType { return TaskSweep }

// ownerDue is one owner's share of a sweep pass.
type ownerDue struct {
	ownerID string
	items   []*reminder.Reminder
}

func (h *SweepHandler) Handle(ctx context.Context, tc Context) (Result, error) {
	limit := h.cfg.Limit
	if p, ok := tc.Params.(SweepParams); ok && p.Limit > 0 {
		limit = p.Limit
	}

	due, err := h.store.DueReminders(ctx, tc.ExecutionTime, limit)
	if err != nil {
		return Result{}, reminder.ServiceUnavailableError{Op: "query due reminders", Err: err}
	}

	var res Result
	res.Processed = len(due)

	// Expiry policy: reminders overdue past the horizon are expired instead
	// of delivered, so a permanently undeliverable reminder stops consuming
	// passes eventually.
	deliverable := due[:0]
	expiryCutoff := tc.ExecutionTime.Add(-h.cfg.ExpireAfter)
	for _, r := range due {
		if r.ScheduledTime.Before(expiryCutoff) {
			if err := h.lifecycle.MarkExpired(ctx, r.ID); err != nil {
				res.Errors = append(res.Errors, batch.ItemError{
					SubjectID: r.ID, Err: err, Severity: batch.SeverityMedium,
				})
			} else {
				h.log.Info("reminder.expired", logx.String("id", r.ID), logx.Time("scheduled", r.ScheduledTime))
			}
			continue
		}
		// A snoozed reminder surfacing as due means the snooze ran out;
		// flip it back to active so it is delivered like any other.
		if r.Status == reminder.StatusSnoozed {
			if _, err := h.lifecycle.Reactivate(ctx, r.ID); err != nil {
				res.Errors = append(res.Errors, batch.ItemError{
					SubjectID: r.ID, Err: err, Severity: batch.SeverityMedium,
				})
				continue
			}
			r.Status = reminder.StatusActive
			r.SnoozeUntil = nil
		}
		deliverable = append(deliverable, r)
	}

	groups := groupByOwner(deliverable)
	bres := batch.Run(ctx, groups, batch.Options{BatchSize: h.cfg.BatchSize},
		func(g ownerDue) string { return g.ownerID },
		func(ctx context.Context, g ownerDue) error {
			return h.deliverOwner(ctx, tc, g)
		})

	res.Errors = append(res.Errors, bres.Errors...)
	res.Metrics = bres.Metrics
	return res, nil
}

func (h *SweepHandler) deliverOwner(ctx context.Context, tc Context, g ownerDue) error {
	prefs, havePrefs, err := h.store.GetUserPrefs(ctx, g.ownerID)
	if err != nil {
		return batch.WithSeverity(fmt.Errorf("load prefs: %w", err), batch.SeverityLow)
	}

	// Quiet hours suppress this pass only; the reminders stay due and are
	// re-evaluated on the next trigger.
	if havePrefs && reminder.InQuietHours(tc.ExecutionTime, prefs.Quiet, prefs.Timezone) {
		h.log.Debug("sweep.quiet_hours_skip", logx.String("owner", g.ownerID), logx.Int("items", len(g.items)))
		return nil
	}

	items := make([]delivery.Item, 0, len(g.items))
	for _, r := range g.items {
		items = append(items, delivery.Item{Title: r.Title, Body: r.Description})
	}
	msg := delivery.Combine(items)
	msg.Tone = g.items[0].Tone

	channels := g.items[0].Channels
	if havePrefs && len(prefs.DefaultChannels) > 0 && len(channels) == 0 {
		channels = prefs.DefaultChannels
	}

	if _, err := h.router.Deliver(ctx, g.ownerID, channels, msg); err != nil {
		return batch.WithSeverity(fmt.Errorf("deliver %d reminder(s): %w", len(g.items), err), batch.SeverityHigh)
	}
	return nil
}

// groupByOwner buckets due reminders per owner, preserving scheduled order
// within each bucket, and orders owners deterministically.
func groupByOwner(due []*reminder.Reminder) []ownerDue {
	byOwner := map[string][]*reminder.Reminder{}
	for _, r := range due {
		byOwner[r.OwnerID] = append(byOwner[r.OwnerID], r)
	}
	out := make([]ownerDue, 0, len(byOwner))
	for owner, items := range byOwner {
		out = append(out, ownerDue{ownerID: owner, items: items})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ownerID < out[j].ownerID })
	return out
}
