package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"remindd/internal/batch"
	"remindd/internal/delivery"
	"remindd/internal/genai"
	"remindd/internal/reminder"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

// DigestConfig controls the periodic summary pass.
type DigestConfig struct {
	BatchSize int
	// DefaultPeriod is the summary window when neither the task params nor
	// the owner's cadence specify one. <=0 means 168h.
	DefaultPeriod time.Duration
}

// DigestHandler summarizes each due owner's recent and upcoming reminders,
// delivers the digest and persists the owner's next digest time.
type DigestHandler struct {
	cfg    DigestConfig
	store  store.Store
	gen    genai.Generator
	router *delivery.Router
	log    logx.Logger
}

func NewDigestHandler(cfg DigestConfig, st store.Store, gen genai.Generator, router *delivery.Router, log logx.Logger) *DigestHandler {
	if cfg.DefaultPeriod <= 0 {
		cfg.DefaultPeriod = 168 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DigestHandler{cfg: cfg, store: st, gen: gen, router: router, log: log}
}

func (h *DigestHandler) Type() TaskType { return TaskDigest }

func (h *DigestHandler) Handle(ctx context.Context, tc Context) (Result, error) {
	owners, err := h.store.DigestOwners(ctx, tc.ExecutionTime)
	if err != nil {
		return Result{}, reminder.ServiceUnavailableError{Op: "query digest owners", Err: err}
	}

	var res Result
	res.Processed = len(owners)

	var (
		nextMu   sync.Mutex
		earliest time.Time
	)

	bres := batch.Run(ctx, owners, batch.Options{BatchSize: h.cfg.BatchSize},
		func(p store.UserPrefs) string { return p.OwnerID },
		func(ctx context.Context, p store.UserPrefs) error {
			next, err := h.digestOwner(ctx, tc, p)
			if err != nil {
				return err
			}
			nextMu.Lock()
			if earliest.IsZero() || next.Before(earliest) {
				earliest = next
			}
			nextMu.Unlock()
			return nil
		})

	res.Errors = bres.Errors
	res.Metrics = bres.Metrics
	if !earliest.IsZero() {
		res.NextScheduledTime = &earliest
	}
	return res, nil
}

// digestOwner builds and delivers one owner's digest. Returns the owner's
// next digest time, which is persisted before delivery is attempted so a
// flaky channel cannot make the digest fire on every pass.
func (h *DigestHandler) digestOwner(ctx context.Context, tc Context, p store.UserPrefs) (time.Time, error) {
	period := h.cfg.DefaultPeriod
	if p.DigestEvery > 0 {
		period = p.DigestEvery
	}
	if params, ok := tc.Params.(DigestParams); ok && params.Period > 0 {
		period = params.Period
	}

	next := tc.ExecutionTime.Add(period)
	p.NextDigestAt = next
	if err := h.store.PutUserPrefs(ctx, p); err != nil {
		return time.Time{}, batch.WithSeverity(fmt.Errorf("advance digest schedule: %w", err), batch.SeverityHigh)
	}

	completed, err := h.store.RemindersByOwner(ctx, p.OwnerID, store.ReminderFilter{
		Status: reminder.StatusCompleted,
		Since:  tc.ExecutionTime.Add(-period),
		Until:  tc.ExecutionTime,
	})
	if err != nil {
		return time.Time{}, batch.WithSeverity(fmt.Errorf("gather completed reminders: %w", err), batch.SeverityMedium)
	}
	upcoming, err := h.store.RemindersByOwner(ctx, p.OwnerID, store.ReminderFilter{
		Status: reminder.StatusActive,
		Since:  tc.ExecutionTime,
		Until:  tc.ExecutionTime.Add(period),
	})
	if err != nil {
		return time.Time{}, batch.WithSeverity(fmt.Errorf("gather upcoming reminders: %w", err), batch.SeverityMedium)
	}

	gen, err := h.gen.Generate(ctx, genai.Request{
		Kind:    genai.KindDigest,
		OwnerID: p.OwnerID,
		Prompt:  digestSource(completed, upcoming, period),
	})
	if err != nil {
		return time.Time{}, batch.WithSeverity(fmt.Errorf("generate digest: %w", err), batch.SeverityMedium)
	}

	msg := delivery.Message{Subject: "Your digest", Body: gen.Text}
	if _, err := h.router.Deliver(ctx, p.OwnerID, p.DefaultChannels, msg); err != nil {
		return time.Time{}, batch.WithSeverity(fmt.Errorf("deliver digest: %w", err), batch.SeverityHigh)
	}
	return next, nil
}

func digestSource(completed, upcoming []*reminder.Reminder, period time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary period: %s.\n", period)
	fmt.Fprintf(&b, "Completed: %d.\n", len(completed))
	for _, r := range completed {
		fmt.Fprintf(&b, "- %s\n", r.Title)
	}
	fmt.Fprintf(&b, "Upcoming: %d.\n", len(upcoming))
	for _, r := range upcoming {
		fmt.Fprintf(&b, "- %s (%s)\n", r.Title, r.ScheduledTime.Format("Jan 2 15:04"))
	}
	return b.String()
}
