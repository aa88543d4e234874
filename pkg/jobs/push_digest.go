package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/retainloop/core/pkg/logger"
	"github.com/retainloop/core/pkg/services"
)

type PushDigestJob struct {
	pushService services.DigestSender
}

// NewPushDigestJob creates a new push digest job
func NewPushDigestJob(pushService services.DigestSender) *PushDigestJob {
	return &PushDigestJob{
		pushService: pushService,
	}
}

func (j *PushDigestJob) Execute(ctx context.Context) error {
	if j.pushService == nil {
		return fmt.Errorf("push service is not initialized")
	}

	log := logger.WithContext(ctx, "push-digest")
	start := time.Now()

	queued, err := j.pushService.SendDigests(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("action", "digest_failed").
			Dur("duration", duration).
			Msg("Push digest fan-out failed")
		return err
	}

	log.Info().
		Str("action", "digest_complete").
		Int64("queued", queued).
		Dur("duration", duration).
		Msg("Push digest fan-out completed")
	return nil
}

func (j *PushDigestJob) Name() string {
	return "push-digest"
}

func (j *PushDigestJob) Interval() time.Duration {
	return 6 * time.Hour
}
