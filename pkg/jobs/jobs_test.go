package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCounter struct {
	count int64
	err   error
	calls int
}

func (f *fakeCounter) run() (int64, error) {
	f.calls++
	return f.count, f.err
}

type fakeCacheEvictor struct{ fakeCounter }

func (f *fakeCacheEvictor) EvictExpired(ctx context.Context) (int64, error) { return f.run() }

type fakeSessionPurger struct{ fakeCounter }

func (f *fakeSessionPurger) PurgeExpired(ctx context.Context) (int64, error) { return f.run() }

type fakeWinbackDispatcher struct{ fakeCounter }

func (f *fakeWinbackDispatcher) DispatchDue(ctx context.Context) (int64, error) { return f.run() }

type fakeDigestSender struct{ fakeCounter }

func (f *fakeDigestSender) SendDigests(ctx context.Context) (int64, error) { return f.run() }

func TestCacheEvictionJob_Contract(t *testing.T) {
	job := NewCacheEvictionJob(nil)
	if got := job.Name(); got != "cache-eviction" {
		t.Errorf("Name() = %v, want cache-eviction", got)
	}
	if got := job.Interval(); got != 10*time.Minute {
		t.Errorf("Interval() = %v, want 10m", got)
	}
	if err := job.Execute(context.Background()); err == nil {
		t.Error("Expected error with nil service")
	}
}

func TestCacheEvictionJob_Execute(t *testing.T) {
	svc := &fakeCacheEvictor{fakeCounter{count: 7}}
	job := NewCacheEvictionJob(svc)

	if err := job.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if svc.calls != 1 {
		t.Errorf("Expected 1 eviction call, got %d", svc.calls)
	}
}

func TestSessionCleanupJob_Contract(t *testing.T) {
	job := NewSessionCleanupJob(nil)
	if got := job.Name(); got != "session-cleanup" {
		t.Errorf("Name() = %v, want session-cleanup", got)
	}
	if got := job.Interval(); got != time.Hour {
		t.Errorf("Interval() = %v, want 1h", got)
	}
	if err := job.Execute(context.Background()); err == nil {
		t.Error("Expected error with nil service")
	}
}

func TestPushDigestJob_Execute(t *testing.T) {
	svc := &fakeDigestSender{fakeCounter{count: 42}}
	job := NewPushDigestJob(svc)

	if err := job.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if svc.calls != 1 {
		t.Errorf("Expected 1 digest call, got %d", svc.calls)
	}
}

func TestSessionCleanupJob_ExecutePropagatesError(t *testing.T) {
	svcErr := errors.New("relation does not exist")
	svc := &fakeSessionPurger{fakeCounter{err: svcErr}}
	job := NewSessionCleanupJob(svc)

	err := job.Execute(context.Background())
	if !errors.Is(err, svcErr) {
		t.Errorf("Execute() should return the service error, got %v", err)
	}
}

func TestWinbackCampaignJob_Contract(t *testing.T) {
	job := NewWinbackCampaignJob(nil)
	if got := job.Name(); got != "winback-campaign" {
		t.Errorf("Name() = %v, want winback-campaign", got)
	}
	if got := job.Interval(); got != 24*time.Hour {
		t.Errorf("Interval() = %v, want 24h", got)
	}
	if err := job.Execute(context.Background()); err == nil {
		t.Error("Expected error with nil service")
	}
}

func TestWinbackCampaignJob_Execute(t *testing.T) {
	svc := &fakeWinbackDispatcher{fakeCounter{count: 3}}
	job := NewWinbackCampaignJob(svc)

	if err := job.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if svc.calls != 1 {
		t.Errorf("Expected 1 dispatch call, got %d", svc.calls)
	}
}

func TestPushDigestJob_Contract(t *testing.T) {
	job := NewPushDigestJob(nil)
	if got := job.Name(); got != "push-digest" {
		t.Errorf("Name() = %v, want push-digest", got)
	}
	if got := job.Interval(); got != 6*time.Hour {
		t.Errorf("Interval() = %v, want 6h", got)
	}
	if err := job.Execute(context.Background()); err == nil {
		t.Error("Expected error with nil service")
	}
}
