package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/retainloop/core/pkg/logger"
	"github.com/retainloop/core/pkg/services"
)

type SessionCleanupJob struct {
	sessionService services.SessionPurger
}

// NewSessionCleanupJob creates a new session cleanup job
func NewSessionCleanupJob(sessionService services.SessionPurger) *SessionCleanupJob {
	return &SessionCleanupJob{
		sessionService: sessionService,
	}
}

func (j *SessionCleanupJob) Execute(ctx context.Context) error {
	if j.sessionService == nil {
		return fmt.Errorf("session service is not initialized")
	}

	log := logger.WithContext(ctx, "session-cleanup")
	start := time.Now()

	purged, err := j.sessionService.PurgeExpired(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("action", "cleanup_failed").
			Dur("duration", duration).
			Msg("Session cleanup failed")
		return err
	}

	log.Info().
		Str("action", "cleanup_complete").
		Int64("purged", purged).
		Dur("duration", duration).
		Msg("Session cleanup completed")
	return nil
}

func (j *SessionCleanupJob) Name() string {
	return "session-cleanup"
}

func (j *SessionCleanupJob) Interval() time.Duration {
	return time.Hour
}
