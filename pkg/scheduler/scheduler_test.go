package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeLedger implements JobLedger with scripted claim outcomes
type fakeLedger struct {
	mu            sync.Mutex
	reconciled    map[string]int
	reconcileErr  map[string]error
	claims        map[string]bool
	claimErr      map[string]error
	claimDeadline map[string]bool
	results       map[string]recordedResult
}

type recordedResult struct {
	duration time.Duration
	err      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		reconciled:    make(map[string]int),
		reconcileErr:  make(map[string]error),
		claims:        make(map[string]bool),
		claimErr:      make(map[string]error),
		claimDeadline: make(map[string]bool),
		results:       make(map[string]recordedResult),
	}
}

func (f *fakeLedger) Reconcile(ctx context.Context, name string, interval time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reconcileErr[name]; err != nil {
		return err
	}
	f.reconciled[name]++
	return nil
}

func (f *fakeLedger) TryClaim(ctx context.Context, name string, interval time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.claimDeadline[name] = ctx.Deadline()
	if err := f.claimErr[name]; err != nil {
		return false, err
	}
	return f.claims[name], nil
}

func (f *fakeLedger) RecordResult(ctx context.Context, name string, duration time.Duration, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[name] = recordedResult{duration: duration, err: runErr}
	return nil
}

func (f *fakeLedger) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return nil
}

func (f *fakeLedger) List(ctx context.Context) ([]LedgerRow, error) {
	return nil, nil
}

func (f *fakeLedger) reconcileCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconciled[name]
}

func (f *fakeLedger) result(name string) (recordedResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[name]
	return r, ok
}

type mockJob struct {
	name        string
	interval    time.Duration
	executeFunc func(ctx context.Context) error
	executed    bool
}

func (m *mockJob) Execute(ctx context.Context) error {
	m.executed = true
	if m.executeFunc != nil {
		return m.executeFunc(ctx)
	}
	return nil
}

func (m *mockJob) Name() string {
	return m.name
}

func (m *mockJob) Interval() time.Duration {
	return m.interval
}

// quietConfig keeps the recurring loop from ticking during a test
func quietConfig() *Config {
	return &Config{
		PollInterval:     time.Hour,
		StatementTimeout: time.Minute,
	}
}

func TestScheduler_Register(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{
			name: "valid job",
			job: &mockJob{
				name:     "test-job",
				interval: time.Minute,
			},
			wantErr: false,
		},
		{
			name:    "nil job",
			job:     nil,
			wantErr: true,
		},
		{
			name: "empty name",
			job: &mockJob{
				name:     "",
				interval: time.Minute,
			},
			wantErr: true,
		},
		{
			name: "non-positive interval",
			job: &mockJob{
				name:     "bad-interval",
				interval: 0,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(newFakeLedger(), quietConfig())
			err := s.Register(tt.job)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_RegisterDuplicateName(t *testing.T) {
	s := New(newFakeLedger(), quietConfig())

	if err := s.Register(&mockJob{name: "cache-eviction", interval: time.Minute}); err != nil {
		t.Fatalf("Failed to register first job: %v", err)
	}

	// Same name, even spelled differently, must be rejected
	if err := s.Register(&mockJob{name: "Cache Eviction", interval: time.Minute}); err == nil {
		t.Error("Expected duplicate registration to be rejected")
	}
}

func TestScheduler_RegisterNormalizesName(t *testing.T) {
	ledger := newFakeLedger()
	s := New(ledger, quietConfig())

	if err := s.Register(&mockJob{name: "Session Cleanup", interval: time.Minute}); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	defer s.Stop()

	if ledger.reconcileCount("session-cleanup") != 1 {
		t.Error("Expected ledger key to be the normalized slug session-cleanup")
	}
}

func TestScheduler_RegisterAfterStart(t *testing.T) {
	s := New(newFakeLedger(), quietConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	defer s.Stop()

	err := s.Register(&mockJob{name: "late-job", interval: time.Minute})
	if err == nil {
		t.Error("Expected registration after start to be rejected")
	}
}

func TestScheduler_StartIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	s := New(ledger, quietConfig())

	if err := s.Register(&mockJob{name: "test-job", interval: time.Minute}); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("First start failed: %v", err)
	}
	defer s.Stop()

	if err := s.Start(); err != nil {
		t.Fatalf("Second start should be a no-op, got: %v", err)
	}

	// Reconciliation runs once, not once per Start call
	if got := ledger.reconcileCount("test-job"); got != 1 {
		t.Errorf("Expected 1 reconcile, got %d", got)
	}
}

func TestScheduler_StopIsTerminal(t *testing.T) {
	s := New(newFakeLedger(), quietConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	s.Stop()

	// Stopping again is harmless
	s.Stop()

	if err := s.Start(); err == nil {
		t.Error("Expected start after stop to fail")
	}
}

func TestScheduler_ImmediatePollOnStart(t *testing.T) {
	ledger := newFakeLedger()
	ledger.claims["fresh-job"] = true

	job := &mockJob{name: "fresh-job", interval: time.Minute}

	s := New(ledger, quietConfig())
	if err := s.Register(job); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	// Start runs one poll tick synchronously before the recurring loop, so
	// a freshly deployed process participates without waiting an interval
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	defer s.Stop()

	if !job.executed {
		t.Error("Expected job to run during the immediate poll on start")
	}
}

func TestScheduler_ReconcileFailureIsolation(t *testing.T) {
	ledger := newFakeLedger()
	ledger.reconcileErr["job-a"] = errors.New("upsert failed")

	s := New(ledger, quietConfig())
	if err := s.Register(&mockJob{name: "job-a", interval: time.Minute}); err != nil {
		t.Fatalf("Failed to register job-a: %v", err)
	}
	if err := s.Register(&mockJob{name: "job-b", interval: time.Minute}); err != nil {
		t.Fatalf("Failed to register job-b: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start should survive a reconcile failure: %v", err)
	}
	defer s.Stop()

	if ledger.reconcileCount("job-b") != 1 {
		t.Error("Failure reconciling job-a must not prevent reconciling job-b")
	}
}

func TestScheduler_HandlerFailureIsolation(t *testing.T) {
	ledger := newFakeLedger()
	ledger.claims["failing-job"] = true
	ledger.claims["healthy-job"] = true

	failErr := errors.New("handler blew up")
	jobA := &mockJob{
		name:     "failing-job",
		interval: time.Minute,
		executeFunc: func(ctx context.Context) error {
			return failErr
		},
	}
	jobB := &mockJob{name: "healthy-job", interval: time.Minute}

	s := New(ledger, quietConfig())
	if err := s.Register(jobA); err != nil {
		t.Fatalf("Failed to register jobA: %v", err)
	}
	if err := s.Register(jobB); err != nil {
		t.Fatalf("Failed to register jobB: %v", err)
	}

	s.pollOnce(context.Background())

	if !jobA.executed || !jobB.executed {
		t.Fatal("Both jobs should execute in the same tick despite jobA failing")
	}

	resA, ok := ledger.result("failing-job")
	if !ok || !errors.Is(resA.err, failErr) {
		t.Error("Expected jobA failure to be recorded on the ledger")
	}
	resB, ok := ledger.result("healthy-job")
	if !ok || resB.err != nil {
		t.Error("Expected jobB success to be recorded with no error")
	}
}

func TestScheduler_HandlerPanicIsolation(t *testing.T) {
	ledger := newFakeLedger()
	ledger.claims["panicking-job"] = true
	ledger.claims["healthy-job"] = true

	jobA := &mockJob{
		name:     "panicking-job",
		interval: time.Minute,
		executeFunc: func(ctx context.Context) error {
			panic("boom")
		},
	}
	jobB := &mockJob{name: "healthy-job", interval: time.Minute}

	s := New(ledger, quietConfig())
	if err := s.Register(jobA); err != nil {
		t.Fatalf("Failed to register jobA: %v", err)
	}
	if err := s.Register(jobB); err != nil {
		t.Fatalf("Failed to register jobB: %v", err)
	}

	s.pollOnce(context.Background())

	if !jobB.executed {
		t.Fatal("Panic in jobA must not prevent jobB from running")
	}

	resA, ok := ledger.result("panicking-job")
	if !ok || resA.err == nil {
		t.Fatal("Expected the panic to be recorded as an error")
	}
}

func TestScheduler_ClaimErrorSkipsJob(t *testing.T) {
	ledger := newFakeLedger()
	ledger.claimErr["unreachable-job"] = errors.New("connection refused")
	ledger.claims["healthy-job"] = true

	jobA := &mockJob{name: "unreachable-job", interval: time.Minute}
	jobB := &mockJob{name: "healthy-job", interval: time.Minute}

	s := New(ledger, quietConfig())
	if err := s.Register(jobA); err != nil {
		t.Fatalf("Failed to register jobA: %v", err)
	}
	if err := s.Register(jobB); err != nil {
		t.Fatalf("Failed to register jobB: %v", err)
	}

	s.pollOnce(context.Background())

	if jobA.executed {
		t.Error("Job must not execute when its claim attempt errored")
	}
	if !jobB.executed {
		t.Error("Claim error on jobA must not abort the tick")
	}
	if _, ok := ledger.result("unreachable-job"); ok {
		t.Error("No result should be recorded for a job that never ran")
	}
}

func TestScheduler_UnclaimedJobIsSkippedSilently(t *testing.T) {
	ledger := newFakeLedger()
	// claims default to false: another process got there first

	job := &mockJob{name: "busy-job", interval: time.Minute}

	s := New(ledger, quietConfig())
	if err := s.Register(job); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	s.pollOnce(context.Background())

	if job.executed {
		t.Error("Unclaimed job must not execute")
	}
	if _, ok := ledger.result("busy-job"); ok {
		t.Error("No result should be recorded for an unclaimed job")
	}
}

func TestScheduler_NoDeadlineOnHandlers(t *testing.T) {
	ledger := newFakeLedger()
	ledger.claims["nightly-rollup"] = true

	// A well-behaved handler that honors cancellation but legitimately runs
	// far longer than any ledger statement bound
	job := &mockJob{
		name:     "nightly-rollup",
		interval: 24 * time.Hour,
		executeFunc: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); ok {
				return errors.New("handler context carried a deadline")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(150 * time.Millisecond):
				return nil
			}
		},
	}

	s := New(ledger, &Config{PollInterval: time.Hour, StatementTimeout: 20 * time.Millisecond})
	if err := s.Register(job); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	s.pollOnce(context.Background())

	res, ok := ledger.result("nightly-rollup")
	if !ok {
		t.Fatal("Expected a recorded result for the claimed job")
	}
	if res.err != nil {
		t.Fatalf("Handler outliving the statement timeout must complete cleanly, got: %v", res.err)
	}

	// The timeout still applies to the ledger side of the tick
	ledger.mu.Lock()
	claimBounded := ledger.claimDeadline["nightly-rollup"]
	ledger.mu.Unlock()
	if !claimBounded {
		t.Error("Claim statement should run under a deadline")
	}
}

func TestScheduler_RegistrationOrder(t *testing.T) {
	ledger := newFakeLedger()
	ledger.claims["first"] = true
	ledger.claims["second"] = true
	ledger.claims["third"] = true

	var order []string
	mkJob := func(name string) *mockJob {
		return &mockJob{
			name:     name,
			interval: time.Minute,
			executeFunc: func(ctx context.Context) error {
				order = append(order, name)
				return nil
			},
		}
	}

	s := New(ledger, quietConfig())
	for _, name := range []string{"first", "second", "third"} {
		if err := s.Register(mkJob(name)); err != nil {
			t.Fatalf("Failed to register %s: %v", name, err)
		}
	}

	s.pollOnce(context.Background())

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("Jobs should run in registration order, got %v", order)
	}
}

func TestScheduler_RecurringLoop(t *testing.T) {
	ledger := newFakeLedger()
	ledger.claims["ticking-job"] = true

	var mu sync.Mutex
	runs := 0
	job := &mockJob{
		name:     "ticking-job",
		interval: time.Millisecond,
		executeFunc: func(ctx context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		},
	}

	s := New(ledger, &Config{PollInterval: 50 * time.Millisecond, StatementTimeout: time.Second})
	if err := s.Register(job); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}

	time.Sleep(180 * time.Millisecond)
	s.Stop()

	mu.Lock()
	got := runs
	mu.Unlock()
	// Immediate poll plus at least two recurring ticks
	if got < 3 {
		t.Errorf("Expected at least 3 runs, got %d", got)
	}
}

func TestScheduler_RegisterFuncJob(t *testing.T) {
	ledger := newFakeLedger()
	ledger.claims["closure-job"] = true

	ran := false
	job := NewFuncJob("closure-job", time.Minute, func(ctx context.Context) error {
		ran = true
		return nil
	})

	s := New(ledger, quietConfig())
	if err := s.Register(job); err != nil {
		t.Fatalf("Failed to register func job: %v", err)
	}

	s.pollOnce(context.Background())

	if !ran {
		t.Error("Expected func job to run when claimed")
	}
}

func TestScheduler_InstanceID(t *testing.T) {
	a := New(newFakeLedger(), quietConfig())
	b := New(newFakeLedger(), quietConfig())

	if a.InstanceID() == "" {
		t.Fatal("Instance ID should not be empty")
	}
	if a.InstanceID() == b.InstanceID() {
		t.Error("Each scheduler instance should have its own identity")
	}
}
