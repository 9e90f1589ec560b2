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

// EngagementConfig controls the re-engagement pass.
type EngagementConfig struct {
	BatchSize int
	// InactiveFor is how long an owner must be silent before an outreach
	// message is sent. <=0 means 7d.
	InactiveFor time.Duration
}

// EngagementHandler reaches out to owners who have gone quiet.
type EngagementHandler struct {
	cfg    EngagementConfig
	store  store.Store
	gen    genai.Generator
	router *delivery.Router
	log    logx.Logger
}

func NewEngagementHandler(cfg EngagementConfig, st store.Store, gen genai.Generator, router *delivery.Router, log logx.Logger) *EngagementHandler {
	if cfg.InactiveFor <= 0 {
		cfg.InactiveFor = 7 * 24 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &EngagementHandler{cfg: cfg, store: st, gen: gen, router: router, log: log}
}

func (h *EngagementHandler) Type() TaskType { return TaskEngagement }

func (h *EngagementHandler) Handle(ctx context.Context, tc Context) (Result, error) {
	inactiveFor := h.cfg.InactiveFor
	if p, ok := tc.Params.(EngagementParams); ok && p.InactiveFor > 0 {
		inactiveFor = p.InactiveFor
	}

	owners, err := h.store.InactiveOwners(ctx, tc.ExecutionTime.Add(-inactiveFor))
	if err != nil {
		return Result{}, reminder.ServiceUnavailableError{Op: "query inactive owners", Err: err}
	}

	eligible := owners[:0]
	for _, p := range owners {
		if reminder.InQuietHours(tc.ExecutionTime, p.Quiet, p.Timezone) {
			h.log.Debug("engage.quiet_hours_skip", logx.String("owner", p.OwnerID))
			continue
		}
		eligible = append(eligible, p)
	}

	var res Result
	res.Processed = len(eligible)

	bres := batch.Run(ctx, eligible, batch.Options{BatchSize: h.cfg.BatchSize},
		func(p store.UserPrefs) string { return p.OwnerID },
		func(ctx context.Context, p store.UserPrefs) error {
			return h.reach(ctx, tc, p)
		})

	res.Errors = bres.Errors
	res.Metrics = bres.Metrics
	return res, nil
}

func (h *EngagementHandler) reach(ctx context.Context, tc Context, p store.UserPrefs) error {
	silent := tc.ExecutionTime.Sub(p.LastSeenAt)
	gen, err := h.gen.Generate(ctx, genai.Request{
		Kind:    genai.KindOutreach,
		OwnerID: p.OwnerID,
		Prompt: fmt.Sprintf("Write a warm, short re-engagement message for a user who has been away for about %d days.",
			int(silent.Hours()/24)),
	})
	if err != nil {
		return batch.WithSeverity(fmt.Errorf("generate outreach: %w", err), batch.SeverityMedium)
	}

	msg := delivery.Message{Subject: "We miss you", Body: gen.Text}
	if _, err := h.router.Deliver(ctx, p.OwnerID, p.DefaultChannels, msg); err != nil {
		return batch.WithSeverity(fmt.Errorf("deliver outreach: %w", err), batch.SeverityHigh)
	}
	return nil
}
