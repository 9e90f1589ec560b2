package dispatch

import (
	"context"
	"fmt"
	"time"

	"remindd/internal/batch"
	"remindd/internal/delivery"
	"remindd/internal/genai"
	"remindd/internal/reminder"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

// CheckInConfig controls the daily check-in pass.
type CheckInConfig struct {
	BatchSize int
	// Tolerance widens the local-wall-clock match window around the owner's
	// configured check-in time. <=0 means 15m.
	Tolerance time.Duration
}

// CheckInHandler sends a personalized prompt to owners whose local check-in
// time matches the execution instant.
type CheckInHandler struct {
	cfg    CheckInConfig
	store  store.Store
	gen    genai.Generator
	router *delivery.Router
	log    logx.Logger
}

func NewCheckInHandler(cfg CheckInConfig, st store.Store, gen genai.Generator, router *delivery.Router, log logx.Logger) *CheckInHandler {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 15 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CheckInHandler{cfg: cfg, store: st, gen: gen, router: router, log: log}
}

func (h *CheckInHandler) Type() TaskType { return TaskCheckIn }

func (h *CheckInHandler) Handle(ctx context.Context, tc Context) (Result, error) {
	tolerance := h.cfg.Tolerance
	if p, ok := tc.Params.(CheckInParams); ok && p.Tolerance > 0 {
		tolerance = p.Tolerance
	}

	owners, err := h.store.CheckInOwners(ctx, tc.ExecutionTime, tolerance)
	if err != nil {
		return Result{}, reminder.ServiceUnavailableError{Op: "query check-in owners", Err: err}
	}

	// Quiet hours exclude the owner from this pass up front; their check-in
	// time will match again tomorrow.
	eligible := owners[:0]
	for _, p := range owners {
		if reminder.InQuietHours(tc.ExecutionTime, p.Quiet, p.Timezone) {
			h.log.Debug("checkin.quiet_hours_skip", logx.String("owner", p.OwnerID))
			continue
		}
		eligible = append(eligible, p)
	}

	var res Result
	res.Processed = len(eligible)

	bres := batch.Run(ctx, eligible, batch.Options{BatchSize: h.cfg.BatchSize},
		func(p store.UserPrefs) string { return p.OwnerID },
		func(ctx context.Context, p store.UserPrefs) error {
			return h.checkIn(ctx, tc, p)
		})

	res.Errors = bres.Errors
	res.Metrics = bres.Metrics
	return res, nil
}

func (h *CheckInHandler) checkIn(ctx context.Context, tc Context, p store.UserPrefs) error {
	gen, err := h.gen.Generate(ctx, genai.Request{
		Kind:    genai.KindCheckIn,
		OwnerID: p.OwnerID,
		Prompt: fmt.Sprintf("Write a short check-in prompt for a user whose local time is %s.",
			tc.ExecutionTime.In(locationOf(p.Timezone)).Format("15:04")),
	})
	if err != nil {
		// Generation failures are a per-item error, never a batch abort.
		return batch.WithSeverity(fmt.Errorf("generate check-in: %w", err), batch.SeverityMedium)
	}

	msg := delivery.Message{Subject: "Check-in", Body: gen.Text}
	if _, err := h.router.Deliver(ctx, p.OwnerID, p.DefaultChannels, msg); err != nil {
		return batch.WithSeverity(fmt.Errorf("deliver check-in: %w", err), batch.SeverityHigh)
	}
	return nil
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
