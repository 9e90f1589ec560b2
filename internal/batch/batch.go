// Package batch runs a list of work items in contiguous bounded batches:
// items within a batch execute concurrently, batches execute sequentially.
// A failing or panicking item never aborts its siblings.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultBatchSize is the default concurrent width of one batch.
const DefaultBatchSize = 100

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ItemError records one item's failure without failing the run.
type ItemError struct {
	SubjectID string
	Err       error
	Severity  Severity
}

type Metrics struct {
	TotalAttempts         int
	SuccessfulAttempts    int
	FailedAttempts        int
	AverageProcessingTime time.Duration
}

type Result struct {
	Errors  []ItemError
	Metrics Metrics
}

type Options struct {
	// BatchSize caps concurrent handler invocations. <=0 means DefaultBatchSize.
	BatchSize int
}

// Handler processes one item. Returned errors (and panics) are captured as
// ItemErrors; they never propagate past Run.
type Handler[T any] func(ctx context.Context, item T) error

// severityError attaches a severity to an error for ItemError classification.
type severityError struct {
	err error
	sev Severity
}

func (e severityError) Error() string { return e.err.Error() }
func (e severityError) Unwrap() error { return e.err }

// WithSeverity tags err with a severity for the batch result.
// Untagged errors default to medium; panics are critical.
func WithSeverity(err error, sev Severity) error {
	if err == nil {
		return nil
	}
	return severityError{err: err, sev: sev}
}

// SeverityOf extracts the severity tag from err (medium if untagged).
func SeverityOf(err error) Severity {
	var se severityError
	if errors.As(err, &se) {
		return se.sev
	}
	return SeverityMedium
}

// Run processes items in order-of-submission batches. id names the item in
// error records.
//
// Invariants:
//   - SuccessfulAttempts + FailedAttempts == len(items)
//   - Run never panics past the call boundary
//   - a cancelled context fails the not-yet-started remainder instead of
//     abandoning it silently
func Run[T any](ctx context.Context, items []T, opts Options, id func(T) string, fn Handler[T]) Result {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	if id == nil {
		id = func(T) string { return "" }
	}

	res := Result{Metrics: Metrics{TotalAttempts: len(items)}}
	var totalDur time.Duration

	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			// Count the remainder as failed so the attempt invariant holds.
			for _, it := range items[start:] {
				res.Errors = append(res.Errors, ItemError{
					SubjectID: id(it),
					Err:       err,
					Severity:  SeverityHigh,
				})
				res.Metrics.FailedAttempts++
			}
			break
		}

		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		errs := make([]error, len(chunk))
		durs := make([]time.Duration, len(chunk))

		var wg sync.WaitGroup
		for i := range chunk {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				began := time.Now()
				// Panic guard: one bad item must not take the batch down.
				defer func() {
					durs[i] = time.Since(began)
					if r := recover(); r != nil {
						errs[i] = WithSeverity(
							fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
							SeverityCritical,
						)
					}
				}()
				errs[i] = fn(ctx, chunk[i])
			}(i)
		}
		wg.Wait()

		for i := range chunk {
			totalDur += durs[i]
			if errs[i] != nil {
				res.Errors = append(res.Errors, ItemError{
					SubjectID: id(chunk[i]),
					Err:       errs[i],
					Severity:  SeverityOf(errs[i]),
				})
				res.Metrics.FailedAttempts++
				continue
			}
			res.Metrics.SuccessfulAttempts++
		}
	}

	div := res.Metrics.SuccessfulAttempts
	if div < 1 {
		div = 1
	}
	res.Metrics.AverageProcessingTime = totalDur / time.Duration(div)
	return res
}
