// Package dispatch is the top-level orchestrator: it routes a scheduled task
// context to the handler for its task type, runs the due population through
// the batch executor, grades the outcome against the error-rate threshold
// and records it in the execution history.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"remindd/internal/batch"
)

type TaskType string

const (
	TaskCheckIn     TaskType = "check_in"
	TaskSweep       TaskType = "reminder_sweep"
	TaskDigest      TaskType = "digest"
	TaskMaintenance TaskType = "maintenance"
	TaskEngagement  TaskType = "engagement"
)

// MaintenanceRoutine names one maintenance sub-task.
type MaintenanceRoutine string

const (
	RoutineStoreCleanup        MaintenanceRoutine = "store_cleanup"
	RoutineCacheRefresh        MaintenanceRoutine = "cache_refresh"
	RoutinePerformanceAnalysis MaintenanceRoutine = "performance_analysis"
	RoutineHealthProbe         MaintenanceRoutine = "health_probe"
)

// Params is a sealed tagged union of per-task-type parameters; each variant
// carries only what its task type needs, checked at Context construction.
type Params interface {
	taskType() TaskType
}

type CheckInParams struct {
	// Tolerance widens the local-wall-clock match window. <=0 uses the
	// handler default.
	Tolerance time.Duration
}

func (CheckInParams) taskType() TaskType { return TaskCheckIn }

type SweepParams struct {
	// Limit caps the due population per pass. <=0 means unlimited.
	Limit int
}

func (SweepParams) taskType() TaskType { return TaskSweep }

type DigestParams struct {
	// Period is the summary window. <=0 falls back to the owner's cadence.
	Period time.Duration
}

func (DigestParams) taskType() TaskType { return TaskDigest }

type MaintenanceParams struct {
	Routine MaintenanceRoutine
}

func (MaintenanceParams) taskType() TaskType { return TaskMaintenance }

type EngagementParams struct {
	// InactiveFor selects owners not seen for at least this long.
	// <=0 uses the handler default.
	InactiveFor time.Duration
}

func (EngagementParams) taskType() TaskType { return TaskEngagement }

// Context describes one dispatch pass. ScheduledTime is the intended fire
// instant, ExecutionTime the actual one.
type Context struct {
	TaskID        string
	TaskName      string
	Type          TaskType
	ScheduledTime time.Time
	ExecutionTime time.Time
	Timezone      string
	Params        Params
}

// NewContext builds a Context and rejects a params variant that does not
// match the task type, so a mismatched bag cannot reach a handler.
func NewContext(typ TaskType, taskID, name string, scheduled, execution time.Time, tz string, params Params) (Context, error) {
	if params != nil && params.taskType() != typ {
		return Context{}, fmt.Errorf("params %T do not belong to task type %q", params, typ)
	}
	if execution.IsZero() {
		execution = time.Now()
	}
	if scheduled.IsZero() {
		scheduled = execution
	}
	return Context{
		TaskID:        taskID,
		TaskName:      name,
		Type:          typ,
		ScheduledTime: scheduled,
		ExecutionTime: execution,
		Timezone:      tz,
		Params:        params,
	}, nil
}

// Result is the outcome of one dispatch pass.
type Result struct {
	TaskID        string
	TaskName      string
	Type          TaskType
	Success       bool
	ExecutionTime time.Time
	Duration      time.Duration
	Processed     int
	Errors        []batch.ItemError
	Metrics       batch.Metrics

	// NextScheduledTime is set by handlers that compute their own next fire
	// (digest cadence); nil otherwise.
	NextScheduledTime *time.Time
}

// Handler runs one task type's pipeline over its due population.
//
// A returned error means the whole task could not even be attempted
// (infrastructure failure); per-item failures belong in Result.Errors.
type Handler interface {
	Type() TaskType
	Handle(ctx context.Context, tc Context) (Result, error)
}
