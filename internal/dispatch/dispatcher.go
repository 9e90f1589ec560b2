package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"remindd/internal/batch"
	"remindd/internal/eventbus"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

// DefaultErrorRateThreshold is the failed/total ratio above which a task
// execution is graded unsuccessful.
const DefaultErrorRateThreshold = 0.05

type Config struct {
	ErrorRateThreshold float64 // <=0 means DefaultErrorRateThreshold
	HistorySize        int     // <=0 means DefaultHistorySize
}

// MetricRecord is one observation handed to the optional metrics sink.
type MetricRecord struct {
	Endpoint   string // "task/<type>"
	Duration   time.Duration
	StatusCode int // 200 on success, 500 on failure (status code analogue)
	Items      int
}

// MetricsSink receives one record per completed task execution.
type MetricsSink interface {
	Observe(rec MetricRecord)
}

// Dispatcher owns routing and aggregation only; all task semantics live in
// the per-type handlers.
type Dispatcher struct {
	cfg      Config
	handlers map[TaskType]Handler
	history  *History
	store    store.Store
	sink     MetricsSink
	log      logx.Logger
	bus      eventbus.Bus
}

func New(cfg Config, st store.Store, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = DefaultErrorRateThreshold
	}
	return &Dispatcher{
		cfg:      cfg,
		handlers: map[TaskType]Handler{},
		history:  NewHistory(cfg.HistorySize),
		store:    st,
		log:      log,
		bus:      bus,
	}
}

// Register installs a handler for its task type. Later registrations win.
func (d *Dispatcher) Register(h Handler) {
	d.handlers[h.Type()] = h
}

// SetMetricsSink installs the optional observability sink.
func (d *Dispatcher) SetMetricsSink(s MetricsSink) { d.sink = s }

func (d *Dispatcher) History() *History { return d.history }

// Run executes one dispatch pass. It never panics and never returns an
// error: whole-task failures are folded into the Result as a single
// system-subject critical error.
func (d *Dispatcher) Run(ctx context.Context, tc Context) Result {
	start := time.Now()

	res, err := d.invoke(ctx, tc)
	if err != nil {
		// Whole-task failure: the handler could not even attempt its
		// population query.
		res = Result{
			Errors: []batch.ItemError{{
				SubjectID: "system",
				Err:       err,
				Severity:  batch.SeverityCritical,
			}},
		}
	}

	res.TaskID = tc.TaskID
	res.TaskName = tc.TaskName
	res.Type = tc.Type
	res.ExecutionTime = tc.ExecutionTime
	res.Duration = time.Since(start)
	res.Success = err == nil && d.grade(res)

	d.history.Append(res)
	d.record(ctx, res)
	d.observe(res)

	if res.Success {
		d.log.Info("task.executed",
			logx.String("task", string(tc.Type)),
			logx.String("task_id", tc.TaskID),
			logx.Int("processed", res.Processed),
			logx.Int("failed", res.Metrics.FailedAttempts),
			logx.Duration("dur", res.Duration))
	} else {
		d.log.Warn("task.failed",
			logx.String("task", string(tc.Type)),
			logx.String("task_id", tc.TaskID),
			logx.Int("processed", res.Processed),
			logx.Int("failed", res.Metrics.FailedAttempts),
			logx.Int("errors", len(res.Errors)),
			logx.Duration("dur", res.Duration))
	}
	return res
}

func (d *Dispatcher) invoke(ctx context.Context, tc Context) (Result, error) {
	h, ok := d.handlers[tc.Type]
	if !ok {
		return Result{}, &UnknownTaskError{Type: tc.Type}
	}
	return h.Handle(ctx, tc)
}

// grade applies the error-rate threshold: a task with some per-item failures
// is still a success while the rate stays below the threshold.
func (d *Dispatcher) grade(res Result) bool {
	total := res.Metrics.TotalAttempts
	if total == 0 {
		return len(res.Errors) == 0
	}
	rate := float64(res.Metrics.FailedAttempts) / float64(total)
	return rate < d.cfg.ErrorRateThreshold
}

// record mirrors the result into the persistent execution log (best effort).
func (d *Dispatcher) record(ctx context.Context, res Result) {
	if d.store == nil {
		return
	}
	rec := store.ExecutionRecord{
		TaskID:    res.TaskID,
		TaskName:  res.TaskName,
		TaskType:  string(res.Type),
		StartedAt: res.ExecutionTime,
		Duration:  res.Duration,
		Success:   res.Success,
		Processed: res.Processed,
		Failed:    res.Metrics.FailedAttempts,
		Errors:    encodeErrors(res.Errors),
	}
	if err := d.store.AppendExecution(ctx, rec); err != nil {
		d.log.Warn("task.record_failed", logx.String("task_id", res.TaskID), logx.Err(err))
	}
}

func (d *Dispatcher) observe(res Result) {
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{
			Type: eventbus.TypeTaskExecuted,
			Data: map[string]any{
				"task":      string(res.Type),
				"task_id":   res.TaskID,
				"success":   res.Success,
				"processed": res.Processed,
				"failed":    res.Metrics.FailedAttempts,
				"dur_ms":    res.Duration.Milliseconds(),
			},
		})
	}
	if d.sink != nil {
		status := 200
		if !res.Success {
			status = 500
		}
		d.sink.Observe(MetricRecord{
			Endpoint:   "task/" + string(res.Type),
			Duration:   res.Duration,
			StatusCode: status,
			Items:      res.Processed,
		})
	}
}

func encodeErrors(errs []batch.ItemError) string {
	if len(errs) == 0 {
		return ""
	}
	type wireErr struct {
		Subject  string `json:"subject"`
		Error    string `json:"error"`
		Severity string `json:"severity"`
	}
	out := make([]wireErr, 0, len(errs))
	for _, e := range errs {
		w := wireErr{Subject: e.SubjectID, Severity: string(e.Severity)}
		if e.Err != nil {
			w.Error = e.Err.Error()
		}
		out = append(out, w)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return ""
	}
	return string(b)
}

// UnknownTaskError reports a context whose task type has no registered handler.
type UnknownTaskError struct {
	Type TaskType
}

func (e *UnknownTaskError) Error() string {
	return "no handler registered for task type " + string(e.Type)
}

// LogSink is a MetricsSink that writes observations to the log. Used when no
// external observability backend is configured.
type LogSink struct {
	Log logx.Logger
}

func (s LogSink) Observe(rec MetricRecord) {
	s.Log.Debug("metrics.task_execution",
		logx.String("endpoint", rec.Endpoint),
		logx.Int("status", rec.StatusCode),
		logx.Int("items", rec.Items),
		logx.Duration("dur", rec.Duration))
}
