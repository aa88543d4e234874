package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/retainloop/core/pkg/logger"
	"github.com/retainloop/core/pkg/utils"
)

type state int

const (
	stateUnstarted state = iota
	stateRunning
	stateStopped
)

// Config holds scheduler-wide settings. Per-job intervals are declared by
// the jobs themselves at registration time.
type Config struct {
	// PollInterval is the cadence of the claim loop. It should be much
	// shorter than the smallest job interval.
	PollInterval time.Duration
	// StatementTimeout bounds each individual ledger statement (claim,
	// reconcile, result write). It never applies to job handlers: handlers
	// own their internal timeouts and the scheduler runs them to
	// completion, however long that takes.
	StatementTimeout time.Duration
}

// DefaultConfig returns scheduler settings suitable for production
func DefaultConfig() *Config {
	return &Config{
		PollInterval:     15 * time.Second,
		StatementTimeout: 30 * time.Second,
	}
}

// Scheduler coordinates recurring jobs across any number of processes
// through the shared job ledger. Each instance runs a single cooperative
// poll loop; the ledger claim is the only cross-process serialization
// point, so independent instances are safe to run in parallel.
type Scheduler struct {
	cron         *cron.Cron
	ledger       JobLedger
	jobs         []Job
	names        map[string]bool
	instanceID   string
	pollInterval time.Duration
	stmtTimeout  time.Duration
	logger       *logger.Logger
	state        state
}

// New creates a scheduler bound to the given ledger. Jobs must be
// registered before Start.
func New(ledger JobLedger, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	instanceID := uuid.New().String()

	// One cooperative poll loop per process: a tick that outlasts the poll
	// interval suppresses the next tick instead of running concurrently.
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:         c,
		ledger:       ledger,
		jobs:         make([]Job, 0),
		names:        make(map[string]bool),
		instanceID:   instanceID,
		pollInterval: cfg.PollInterval,
		stmtTimeout:  cfg.StatementTimeout,
		logger:       logger.New("scheduler").WithInstance(instanceID),
	}
}

// InstanceID returns the identity token for this process. It appears in
// logs only and plays no part in coordination.
func (s *Scheduler) InstanceID() string {
	return s.instanceID
}

// Register adds a job to this instance's registry. Names are normalized to
// slugs so every process derives the same ledger key. Registration after
// Start is rejected: a late job would miss reconciliation.
func (s *Scheduler) Register(job Job) error {
	if s.state != stateUnstarted {
		return fmt.Errorf("cannot register job after scheduler start")
	}
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}

	name := utils.JobSlug(job.Name())
	if name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if job.Interval() <= 0 {
		return fmt.Errorf("job %s has non-positive interval %v", name, job.Interval())
	}
	if s.names[name] {
		return fmt.Errorf("job %s is already registered", name)
	}

	s.logger.Info().
		Str("action", "register_job").
		Str("job_name", name).
		Dur("interval", job.Interval()).
		Msg("Registering job")

	s.names[name] = true
	s.jobs = append(s.jobs, &namedJob{name: name, job: job})
	return nil
}

// namedJob pins the normalized name next to the underlying job so the
// registry, ledger and logs all agree on the key.
type namedJob struct {
	name string
	job  Job
}

func (n *namedJob) Execute(ctx context.Context) error { return n.job.Execute(ctx) }
func (n *namedJob) Name() string                      { return n.name }
func (n *namedJob) Interval() time.Duration           { return n.job.Interval() }

// Start reconciles the ledger, runs one immediate poll tick so a fresh
// deploy participates right away, then begins the recurring loop. Calling
// Start on a running scheduler is a no-op; a stopped scheduler cannot be
// restarted.
func (s *Scheduler) Start() error {
	switch s.state {
	case stateRunning:
		return nil
	case stateStopped:
		return fmt.Errorf("scheduler is stopped and cannot be restarted")
	}

	s.logger.Info().
		Str("action", "start").
		Int("job_count", len(s.jobs)).
		Dur("poll_interval", s.pollInterval).
		Msg("Starting scheduler")

	s.reconcileAll()

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.pollInterval), s.tick); err != nil {
		return fmt.Errorf("failed to schedule poll loop: %w", err)
	}

	s.state = stateRunning
	s.tick()
	s.cron.Start()

	return nil
}

// Stop cancels the recurring loop and waits for an in-flight tick to
// finish. In-flight job handlers are not interrupted. Stop is terminal for
// this instance.
func (s *Scheduler) Stop() {
	if s.state != stateRunning {
		return
	}

	s.logger.Info().
		Str("action", "stop_initiated").
		Msg("Stopping scheduler")

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.state = stateStopped

	s.logger.Info().
		Str("action", "stopped").
		Msg("Scheduler stopped")
}

// Jobs returns the registered jobs in registration order
func (s *Scheduler) Jobs() []Job {
	return append([]Job(nil), s.jobs...)
}

// reconcileAll upserts a ledger row for every registered job. Failures are
// isolated per job: a row that cannot be reconciled now simply never wins a
// claim until a later process start succeeds.
func (s *Scheduler) reconcileAll() {
	for _, job := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.stmtTimeout)
		err := s.ledger.Reconcile(ctx, job.Name(), job.Interval())
		cancel()
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("job_name", job.Name()).
				Str("action", "reconcile_failed").
				Msg("Failed to reconcile ledger row")
			continue
		}
	}
}

func (s *Scheduler) tick() {
	s.pollOnce(context.Background())
}

// pollOnce offers every registered job one claim attempt, in registration
// order. Most jobs are not due on most ticks; a skipped claim is the steady
// state, not an error.
func (s *Scheduler) pollOnce(ctx context.Context) {
	for _, job := range s.jobs {
		s.attempt(ctx, job)
	}
}

// attempt claims one job and, if the claim succeeds, runs it inline to
// completion and writes the outcome back. Claim errors and handler failures
// are both confined to this job and this tick. Only the ledger statements
// carry a deadline; the handler inherits a deadline-free context and runs
// until it returns.
func (s *Scheduler) attempt(ctx context.Context, job Job) {
	log := s.logger.WithRequestID(uuid.New().String()).WithJob(job.Name())

	claimCtx, cancelClaim := context.WithTimeout(ctx, s.stmtTimeout)
	claimed, err := s.ledger.TryClaim(claimCtx, job.Name(), job.Interval())
	cancelClaim()
	if err != nil {
		log.Warn().
			Err(err).
			Str("action", "claim_error").
			Msg("Claim attempt failed, skipping until next tick")
		return
	}
	if !claimed {
		return
	}

	log.LogJobStart(job.Name(), job.Interval())
	start := time.Now()
	runErr := runJob(log.ToContext(ctx), job)
	duration := time.Since(start)

	recordCtx, cancelRecord := context.WithTimeout(ctx, s.stmtTimeout)
	defer cancelRecord()
	if err := s.ledger.RecordResult(recordCtx, job.Name(), duration, runErr); err != nil {
		log.Error().
			Err(err).
			Str("action", "record_result_failed").
			Msg("Failed to write run outcome to ledger")
	}

	if runErr != nil {
		log.Error().
			Err(runErr).
			Str("action", "job_failed").
			Dur("duration", duration).
			Msg("Job execution failed")
		return
	}

	log.LogJobComplete(job.Name(), duration)
}

// runJob executes the handler, converting a panic into an error so one
// misbehaving job cannot take down the poll loop.
func runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Execute(ctx)
}
