package dispatch

import (
	"context"
	"fmt"
	"time"

	"remindd/internal/batch"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

// MaintenanceConfig controls retention for the cleanup routine.
type MaintenanceConfig struct {
	// ExecutionRetention is how long execution log rows are kept. <=0 means 30d.
	ExecutionRetention time.Duration
	// ReminderRetention is how long terminal reminders are kept. <=0 means 90d.
	ReminderRetention time.Duration
}

// MaintenanceHandler dispatches to one named routine per pass. A routine
// failure is recorded as a single high-severity error, never a crash.
type MaintenanceHandler struct {
	cfg     MaintenanceConfig
	store   store.Store
	history *History
	log     logx.Logger
}

func NewMaintenanceHandler(cfg MaintenanceConfig, st store.Store, history *History, log logx.Logger) *MaintenanceHandler {
	if cfg.ExecutionRetention <= 0 {
		cfg.ExecutionRetention = 30 * 24 * time.Hour
	}
	if cfg.ReminderRetention <= 0 {
		cfg.ReminderRetention = 90 * 24 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &MaintenanceHandler{cfg: cfg, store: st, history: history, log: log}
}

func (h *MaintenanceHandler) Type() TaskType { return TaskMaintenance }

func (h *MaintenanceHandler) Handle(ctx context.Context, tc Context) (Result, error) {
	params, ok := tc.Params.(MaintenanceParams)
	if !ok || params.Routine == "" {
		return Result{}, fmt.Errorf("maintenance task requires a routine")
	}

	var res Result
	res.Processed = 1
	res.Metrics.TotalAttempts = 1

	err := h.run(ctx, tc, params.Routine)
	if err != nil {
		res.Metrics.FailedAttempts = 1
		res.Errors = append(res.Errors, batch.ItemError{
			SubjectID: string(params.Routine),
			Err:       err,
			Severity:  batch.SeverityHigh,
		})
		return res, nil
	}
	res.Metrics.SuccessfulAttempts = 1
	return res, nil
}

func (h *MaintenanceHandler) run(ctx context.Context, tc Context, routine MaintenanceRoutine) (err error) {
	// One bad routine must not take the dispatch down.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("routine %s panicked: %v", routine, r)
		}
	}()

	switch routine {
	case RoutineStoreCleanup:
		return h.storeCleanup(ctx, tc)
	case RoutineCacheRefresh:
		return h.cacheRefresh(ctx)
	case RoutinePerformanceAnalysis:
		return h.performanceAnalysis()
	case RoutineHealthProbe:
		return h.healthProbe(ctx)
	default:
		return fmt.Errorf("unknown maintenance routine %q", routine)
	}
}

func (h *MaintenanceHandler) storeCleanup(ctx context.Context, tc Context) error {
	execs, err := h.store.PruneExecutions(ctx, tc.ExecutionTime.Add(-h.cfg.ExecutionRetention))
	if err != nil {
		return fmt.Errorf("prune executions: %w", err)
	}
	rems, err := h.store.PruneReminders(ctx, tc.ExecutionTime.Add(-h.cfg.ReminderRetention))
	if err != nil {
		return fmt.Errorf("prune reminders: %w", err)
	}
	h.log.Info("maintenance.store_cleanup",
		logx.Int("executions_pruned", execs),
		logx.Int("reminders_pruned", rems))
	return nil
}

// cacheRefresh re-resolves every owner timezone so a stale or broken tzdata
// entry surfaces here instead of silently degrading quiet-hours checks to UTC.
func (h *MaintenanceHandler) cacheRefresh(ctx context.Context) error {
	owners, err := h.store.InactiveOwners(ctx, time.Now().AddDate(10, 0, 0))
	if err != nil {
		return fmt.Errorf("load owners: %w", err)
	}
	bad := 0
	for _, p := range owners {
		if p.Timezone == "" {
			continue
		}
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			bad++
			h.log.Warn("maintenance.bad_timezone",
				logx.String("owner", p.OwnerID),
				logx.String("tz", p.Timezone))
		}
	}
	h.log.Info("maintenance.cache_refresh", logx.Int("owners", len(owners)), logx.Int("bad_timezones", bad))
	return nil
}

func (h *MaintenanceHandler) performanceAnalysis() error {
	if h.history == nil {
		return fmt.Errorf("no execution history available")
	}
	st := h.history.Stats()
	h.log.Info("maintenance.performance",
		logx.Int("executions", st.TotalExecutions),
		logx.Float64("success_rate", st.SuccessRate),
		logx.Float64("error_rate", st.ErrorRate),
		logx.Duration("avg_exec", st.AverageExecutionTime))
	if st.TotalExecutions > 0 && st.SuccessRate < 0.5 {
		h.log.Warn("maintenance.degraded", logx.Float64("success_rate", st.SuccessRate))
	}
	return nil
}

// healthProbe is a cheap store round trip.
func (h *MaintenanceHandler) healthProbe(ctx context.Context) error {
	if _, err := h.store.Executions(ctx, 1); err != nil {
		return fmt.Errorf("store probe: %w", err)
	}
	return nil
}
