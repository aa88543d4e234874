package scheduler

import (
	"context"
	"time"
)

// Job represents a recurring task that can be claimed and executed by any
// process sharing the job ledger
type Job interface {
	// Execute runs the job with the given context. A returned error is
	// recorded on the ledger row and logged; it is never propagated past
	// the poll tick.
	Execute(ctx context.Context) error

	// Name returns the stable identifier for the job. It is the primary
	// key of the ledger row, so it must not change across deploys.
	Name() string

	// Interval returns the minimum spacing between successful runs.
	Interval() time.Duration
}

// JobLedger is the durable coordination surface shared by every scheduler
// process. One row per job name; the claim is the only cross-process
// synchronization primitive.
type JobLedger interface {
	// Reconcile upserts the ledger row for a registered job, updating the
	// declared interval without disturbing run history or the enabled flag.
	Reconcile(ctx context.Context, name string, interval time.Duration) error

	// TryClaim atomically checks eligibility and asserts execution rights
	// for one cycle. Returns true only if this caller advanced last_run_at.
	TryClaim(ctx context.Context, name string, interval time.Duration) (bool, error)

	// RecordResult writes the run outcome back to the ledger row. A nil
	// runErr clears last_error.
	RecordResult(ctx context.Context, name string, duration time.Duration, runErr error) error

	// SetEnabled flips the enabled flag for a job. Disabled jobs are never
	// claimable.
	SetEnabled(ctx context.Context, name string, enabled bool) error

	// List returns every ledger row for operational visibility.
	List(ctx context.Context) ([]LedgerRow, error)
}

// FuncJob adapts a plain function to the Job interface
type FuncJob struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

// NewFuncJob wraps fn as a Job with the given name and interval
func NewFuncJob(name string, interval time.Duration, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{
		name:     name,
		interval: interval,
		fn:       fn,
	}
}

func (f *FuncJob) Execute(ctx context.Context) error {
	return f.fn(ctx)
}

func (f *FuncJob) Name() string {
	return f.name
}

func (f *FuncJob) Interval() time.Duration {
	return f.interval
}
