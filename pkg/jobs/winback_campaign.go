package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/retainloop/core/pkg/logger"
	"github.com/retainloop/core/pkg/services"
)

// WinbackCampaignJob dispatches win-back campaigns for lapsed accounts.
// Duplicate execution would double-contact customers, which is why this job
// leans entirely on the scheduler's one-executor-per-cycle guarantee.
type WinbackCampaignJob struct {
	winbackService services.WinbackDispatcher
}

// NewWinbackCampaignJob creates a new win-back campaign job
func NewWinbackCampaignJob(winbackService services.WinbackDispatcher) *WinbackCampaignJob {
	return &WinbackCampaignJob{
		winbackService: winbackService,
	}
}

func (j *WinbackCampaignJob) Execute(ctx context.Context) error {
	if j.winbackService == nil {
		return fmt.Errorf("winback service is not initialized")
	}

	log := logger.WithContext(ctx, "winback-campaign")
	start := time.Now()

	dispatched, err := j.winbackService.DispatchDue(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("action", "dispatch_failed").
			Dur("duration", duration).
			Msg("Win-back dispatch failed")
		return err
	}

	log.Info().
		Str("action", "dispatch_complete").
		Int64("dispatched", dispatched).
		Dur("duration", duration).
		Msg("Win-back dispatch completed")
	return nil
}

func (j *WinbackCampaignJob) Name() string {
	return "winback-campaign"
}

func (j *WinbackCampaignJob) Interval() time.Duration {
	return 24 * time.Hour
}
