package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"remindd/internal/batch"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

// stubHandler returns a canned result or error for its task type.
type stubHandler struct {
	typ TaskType
	res Result
	err error
}

func (s stubHandler) Type() TaskType                                  { return s.typ }
func (s stubHandler) Handle(context.Context, Context) (Result, error) { return s.res, s.err }

func testContext(t *testing.T, typ TaskType, params Params) Context {
	t.Helper()
	now := time.Date(2026, time.July, 1, 9, 0, 0, 0, time.UTC)
	tc, err := NewContext(typ, "task-1", string(typ), now, now, "UTC", params)
	if err != nil {
		t.Fatalf("NewContext error: %v", err)
	}
	return tc
}

func TestNewContextRejectsMismatchedParams(t *testing.T) {
	t.Parallel()
	now := time.Now()
	_, err := NewContext(TaskSweep, "id", "sweep", now, now, "", CheckInParams{})
	if err == nil {
		t.Fatal("expected error for check_in params on a sweep context")
	}
}

func TestRunGradesByErrorRate(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()

	tests := []struct {
		name        string
		metrics     batch.Metrics
		errs        int
		wantSuccess bool
	}{
		{name: "clean pass", metrics: batch.Metrics{TotalAttempts: 100, SuccessfulAttempts: 100}, wantSuccess: true},
		{name: "under threshold", metrics: batch.Metrics{TotalAttempts: 100, SuccessfulAttempts: 96, FailedAttempts: 4}, errs: 4, wantSuccess: true},
		{name: "at threshold", metrics: batch.Metrics{TotalAttempts: 100, SuccessfulAttempts: 95, FailedAttempts: 5}, errs: 5, wantSuccess: false},
		{name: "empty population", metrics: batch.Metrics{}, wantSuccess: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{}, st, logx.Nop(), nil)
			res := Result{Processed: tt.metrics.TotalAttempts, Metrics: tt.metrics}
			for i := 0; i < tt.errs; i++ {
				res.Errors = append(res.Errors, batch.ItemError{SubjectID: "x", Err: errors.New("boom")})
			}
			d.Register(stubHandler{typ: TaskSweep, res: res})

			got := d.Run(context.Background(), testContext(t, TaskSweep, nil))
			if got.Success != tt.wantSuccess {
				t.Fatalf("Success = %v, want %v", got.Success, tt.wantSuccess)
			}
		})
	}
}

func TestRunWholeTaskFailure(t *testing.T) {
	t.Parallel()
	d := New(Config{}, store.NewMemory(), logx.Nop(), nil)
	d.Register(stubHandler{typ: TaskDigest, err: errors.New("store is down")})

	got := d.Run(context.Background(), testContext(t, TaskDigest, nil))
	if got.Success {
		t.Fatal("whole-task failure must not grade successful")
	}
	if len(got.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(got.Errors))
	}
	if got.Errors[0].SubjectID != "system" {
		t.Fatalf("subject = %s, want system", got.Errors[0].SubjectID)
	}
	if got.Errors[0].Severity != batch.SeverityCritical {
		t.Fatalf("severity = %s, want critical", got.Errors[0].Severity)
	}
}

func TestRunUnknownTaskType(t *testing.T) {
	t.Parallel()
	d := New(Config{}, store.NewMemory(), logx.Nop(), nil)

	got := d.Run(context.Background(), testContext(t, TaskEngagement, nil))
	if got.Success {
		t.Fatal("unknown task type must fail")
	}
	var ute *UnknownTaskError
	if len(got.Errors) != 1 || !errors.As(got.Errors[0].Err, &ute) {
		t.Fatalf("Errors = %v, want UnknownTaskError", got.Errors)
	}
}

func TestRunRecordsHistoryAndStore(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	d := New(Config{HistorySize: 5}, st, logx.Nop(), nil)
	d.Register(stubHandler{typ: TaskCheckIn, res: Result{
		Processed: 3,
		Metrics:   batch.Metrics{TotalAttempts: 3, SuccessfulAttempts: 3},
	}})

	d.Run(context.Background(), testContext(t, TaskCheckIn, CheckInParams{}))

	if d.History().Len() != 1 {
		t.Fatalf("history Len = %d, want 1", d.History().Len())
	}
	recs, err := st.Executions(context.Background(), 10)
	if err != nil {
		t.Fatalf("Executions error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("persisted executions = %d, want 1", len(recs))
	}
	if recs[0].TaskType != string(TaskCheckIn) || !recs[0].Success || recs[0].Processed != 3 {
		t.Fatalf("record = %+v", recs[0])
	}
}

type captureSink struct{ recs []MetricRecord }

func (c *captureSink) Observe(rec MetricRecord) { c.recs = append(c.recs, rec) }

func TestRunMetricsSink(t *testing.T) {
	t.Parallel()
	d := New(Config{}, store.NewMemory(), logx.Nop(), nil)
	sink := &captureSink{}
	d.SetMetricsSink(sink)
	d.Register(stubHandler{typ: TaskSweep, res: Result{Processed: 7, Metrics: batch.Metrics{TotalAttempts: 7, SuccessfulAttempts: 7}}})

	d.Run(context.Background(), testContext(t, TaskSweep, nil))

	if len(sink.recs) != 1 {
		t.Fatalf("sink observations = %d, want 1", len(sink.recs))
	}
	rec := sink.recs[0]
	if rec.Endpoint != "task/reminder_sweep" || rec.StatusCode != 200 || rec.Items != 7 {
		t.Fatalf("record = %+v", rec)
	}
}
