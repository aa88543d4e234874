package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker"

	"github.com/retainloop/core/pkg/database"
	"github.com/retainloop/core/pkg/logger"
)

// ErrJobNotFound is returned when an operation targets a job name with no
// ledger row
var ErrJobNotFound = errors.New("job not found in ledger")

// LedgerRow is the durable state of one job, shared across all processes
type LedgerRow struct {
	Name              string
	IntervalMs        int64
	Enabled           bool
	LastRunAt         *time.Time
	LastRunDurationMs *int64
	LastError         *string
	UpdatedAt         time.Time
}

const schemaQuery = `
CREATE TABLE IF NOT EXISTS cron_jobs (
	name                 TEXT PRIMARY KEY,
	interval_ms          BIGINT NOT NULL,
	enabled              BOOLEAN NOT NULL DEFAULT TRUE,
	last_run_at          TIMESTAMPTZ,
	last_run_duration_ms BIGINT,
	last_error           TEXT,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const reconcileQuery = `
INSERT INTO cron_jobs (name, interval_ms, enabled, updated_at)
VALUES ($1, $2, TRUE, now())
ON CONFLICT (name) DO UPDATE
SET interval_ms = EXCLUDED.interval_ms, updated_at = now()`

// The claim both checks eligibility and advances last_run_at in a single
// statement. Two processes racing on the same due job will have exactly one
// row-affecting UPDATE; the loser sees zero rows and skips. There is no
// separate lock row, so a crashed executor can never wedge a job: once
// last_run_at goes stale relative to interval_ms the next claim succeeds.
const claimQuery = `
UPDATE cron_jobs
SET last_run_at = now(), updated_at = now()
WHERE name = $1
  AND enabled
  AND (last_run_at IS NULL OR last_run_at < now() - ($2::bigint * interval '1 millisecond'))`

const recordResultQuery = `
UPDATE cron_jobs
SET last_run_duration_ms = $2, last_error = $3, updated_at = now()
WHERE name = $1`

const setEnabledQuery = `
UPDATE cron_jobs
SET enabled = $2, updated_at = now()
WHERE name = $1`

const listQuery = `
SELECT name, interval_ms, enabled, last_run_at, last_run_duration_ms, last_error, updated_at
FROM cron_jobs
ORDER BY name`

// PostgresJobLedger implements JobLedger on the shared cron_jobs table
type PostgresJobLedger struct {
	db      database.DBTX
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// NewPostgresJobLedger creates a ledger backed by the cron_jobs table.
// Claim attempts go through a circuit breaker so an unreachable database
// fails claims fast instead of stalling every poll tick.
func NewPostgresJobLedger(db database.DBTX) *PostgresJobLedger {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "job-ledger-claim",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &PostgresJobLedger{
		db:      db,
		breaker: breaker,
		logger:  logger.New("job-ledger"),
	}
}

// Migrate creates the cron_jobs table if it does not exist
func (l *PostgresJobLedger) Migrate(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schemaQuery); err != nil {
		return fmt.Errorf("failed to migrate cron_jobs table: %w", err)
	}
	return nil
}

// Reconcile upserts the row for a registered job. Existing rows only get
// their interval refreshed; enabled, last_run_at and last_error are left
// untouched so reconciliation never disturbs run history.
func (l *PostgresJobLedger) Reconcile(ctx context.Context, name string, interval time.Duration) error {
	_, err := l.db.Exec(ctx, reconcileQuery, name, interval.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to reconcile ledger row for job %s: %w", name, err)
	}

	l.logger.Debug().
		Str("job_name", name).
		Int64("interval_ms", interval.Milliseconds()).
		Str("action", "ledger_reconciled").
		Msg("Ledger row reconciled")

	return nil
}

// TryClaim attempts the atomic conditional claim. The returned bool is the
// claim result; an error means the attempt could not be made at all and the
// caller should treat the job as not claimed this tick.
func (l *PostgresJobLedger) TryClaim(ctx context.Context, name string, interval time.Duration) (bool, error) {
	result, err := l.breaker.Execute(func() (interface{}, error) {
		return l.db.Exec(ctx, claimQuery, name, interval.Milliseconds())
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", name, err)
	}

	tag := result.(pgconn.CommandTag)
	claimed := tag.RowsAffected() == 1

	l.logger.LogClaim(name, claimed)

	return claimed, nil
}

// RecordResult writes duration and outcome back after a run. This is an
// unconditional write keyed by name; the claim already serialized access
// for this cycle.
func (l *PostgresJobLedger) RecordResult(ctx context.Context, name string, duration time.Duration, runErr error) error {
	var lastError *string
	if runErr != nil {
		msg := runErr.Error()
		lastError = &msg
	}

	_, err := l.db.Exec(ctx, recordResultQuery, name, duration.Milliseconds(), lastError)
	if err != nil {
		return fmt.Errorf("failed to record result for job %s: %w", name, err)
	}
	return nil
}

// SetEnabled flips the enabled flag for a job. Disabled jobs fail the claim
// condition on every tick in every process.
func (l *PostgresJobLedger) SetEnabled(ctx context.Context, name string, enabled bool) error {
	tag, err := l.db.Exec(ctx, setEnabledQuery, name, enabled)
	if err != nil {
		return fmt.Errorf("failed to set enabled=%t for job %s: %w", enabled, name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no ledger row for job %s: %w", name, ErrJobNotFound)
	}

	l.logger.Info().
		Str("job_name", name).
		Bool("enabled", enabled).
		Str("action", "ledger_enabled_changed").
		Msg("Job enabled flag updated")

	return nil
}

// List returns all ledger rows ordered by name
func (l *PostgresJobLedger) List(ctx context.Context) ([]LedgerRow, error) {
	rows, err := l.db.Query(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger rows: %w", err)
	}
	defer rows.Close()

	var out []LedgerRow
	for rows.Next() {
		var row LedgerRow
		if err := rows.Scan(
			&row.Name,
			&row.IntervalMs,
			&row.Enabled,
			&row.LastRunAt,
			&row.LastRunDurationMs,
			&row.LastError,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger rows: %w", err)
	}

	return out, nil
}
