package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"remindd/internal/dispatch"
	"remindd/internal/eventbus"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

type countingHandler struct {
	typ   dispatch.TaskType
	fires atomic.Int64
}

func (h *countingHandler) Type() dispatch.TaskType { return h.typ }

func (h *countingHandler) Handle(_ context.Context, tc dispatch.Context) (dispatch.Result, error) {
	h.fires.Add(1)
	return dispatch.Result{Processed: 3}, nil
}

func newTestService(t *testing.T, cfg Config) (*Service, *countingHandler) {
	t.Helper()
	h := &countingHandler{typ: dispatch.TaskMaintenance}
	disp := dispatch.New(dispatch.Config{}, store.NewMemory(), logx.Nop(), eventbus.New())
	disp.Register(h)
	return New(cfg, disp, logx.Nop()), h
}

func TestAddNormalizesIntervalSpecs(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, Config{})

	if err := s.Add(Def{
		Name:     "hourly-probe",
		Type:     dispatch.TaskMaintenance,
		Schedule: "55m",
		Params:   dispatch.MaintenanceParams{Routine: dispatch.RoutineHealthProbe},
	}); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(entries))
	}
	if entries[0].Spec != "@every 55m0s" {
		t.Fatalf("Spec = %q, want interval rewritten to @every form", entries[0].Spec)
	}
}

func TestAddRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, Config{})

	if err := s.Add(Def{Name: "bad", Type: dispatch.TaskMaintenance, Schedule: "soonish"}); err == nil {
		t.Fatal("Add must reject an unparseable schedule")
	}
	if err := s.Add(Def{Name: "", Type: dispatch.TaskMaintenance, Schedule: "55m"}); err == nil {
		t.Fatal("Add must reject an empty name")
	}
}

func TestAddReplacesSameName(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, Config{})

	for _, spec := range []string{"10m", "20m"} {
		if err := s.Add(Def{
			Name:     "probe",
			Type:     dispatch.TaskMaintenance,
			Schedule: spec,
			Params:   dispatch.MaintenanceParams{Routine: dispatch.RoutineHealthProbe},
		}); err != nil {
			t.Fatalf("Add(%s) error: %v", spec, err)
		}
	}

	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("len(Entries) = %d, want replacement not accumulation", len(entries))
	}
	if entries[0].Spec != "@every 20m0s" {
		t.Fatalf("Spec = %q, want the second registration to win", entries[0].Spec)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, Config{})

	if err := s.Add(Def{
		Name:     "probe",
		Type:     dispatch.TaskMaintenance,
		Schedule: "10m",
		Params:   dispatch.MaintenanceParams{Routine: dispatch.RoutineHealthProbe},
	}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	s.Remove("probe")
	s.Remove("probe") // idempotent

	if got := s.Entries(); len(got) != 0 {
		t.Fatalf("Entries = %v, want empty after Remove", got)
	}
}

func TestRunNow(t *testing.T) {
	t.Parallel()
	s, h := newTestService(t, Config{})

	if err := s.Add(Def{
		Name:     "probe",
		Type:     dispatch.TaskMaintenance,
		Schedule: "1h",
		Params:   dispatch.MaintenanceParams{Routine: dispatch.RoutineHealthProbe},
	}); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	res, err := s.RunNow(context.Background(), "probe")
	if err != nil {
		t.Fatalf("RunNow error: %v", err)
	}
	if h.fires.Load() != 1 {
		t.Fatalf("fires = %d, want 1", h.fires.Load())
	}
	if res.Processed != 3 || !res.Success {
		t.Fatalf("res = %+v, want the handler's result graded as success", res)
	}

	if _, err := s.RunNow(context.Background(), "nope"); err == nil {
		t.Fatal("RunNow must reject an unknown schedule name")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, Config{Enabled: false})

	if err := s.Add(Def{
		Name:     "probe",
		Type:     dispatch.TaskMaintenance,
		Schedule: "10m",
		Params:   dispatch.MaintenanceParams{Routine: dispatch.RoutineHealthProbe},
	}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	// Disabled service never registers with cron, so no next fire exists.
	if next := s.Entries()[0].Next; !next.IsZero() {
		t.Fatalf("Next = %v, want zero while disabled", next)
	}
}

func TestStartSchedulesRegisteredDefs(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, Config{Enabled: true, Timezone: "UTC"})

	if err := s.Add(Def{
		Name:     "probe",
		Type:     dispatch.TaskMaintenance,
		Schedule: "1h",
		Params:   dispatch.MaintenanceParams{Routine: dispatch.RoutineHealthProbe},
	}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	s.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	next := s.Entries()[0].Next
	if next.IsZero() {
		t.Fatal("Next must be set once the scheduler is running")
	}
	if until := time.Until(next); until <= 0 || until > time.Hour+time.Minute {
		t.Fatalf("next fire in %v, want within the hour", until)
	}
}
