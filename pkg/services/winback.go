package services

import (
	"context"
	"fmt"
	"time"

	"github.com/retainloop/core/pkg/database"
	"github.com/retainloop/core/pkg/logger"
)

// WinbackService marks lapsed accounts for win-back campaigns. The actual
// email delivery is handled downstream off the campaign queue; this service
// only decides who is due and records the dispatch.
type WinbackService struct {
	db     database.DBTX
	logger *logger.Logger

	// LapsedAfter is how long an account must be inactive before it is a
	// win-back candidate.
	LapsedAfter time.Duration
	// Cooldown prevents re-contacting the same account too often.
	Cooldown time.Duration
}

// NewWinbackService creates a win-back service with production thresholds
func NewWinbackService(db database.DBTX) *WinbackService {
	return &WinbackService{
		db:          db,
		logger:      logger.New("winback-service"),
		LapsedAfter: 30 * 24 * time.Hour,
		Cooldown:    90 * 24 * time.Hour,
	}
}

// A single conditional UPDATE keeps dispatch idempotent under concurrent
// callers, the same discipline as the job ledger claim.
const dispatchDueQuery = `
UPDATE accounts
SET winback_sent_at = now()
WHERE last_seen_at < now() - ($1::bigint * interval '1 millisecond')
  AND (winback_sent_at IS NULL OR winback_sent_at < now() - ($2::bigint * interval '1 millisecond'))`

// DispatchDue marks every due account as contacted and returns the count
func (s *WinbackService) DispatchDue(ctx context.Context) (int64, error) {
	start := time.Now()

	tag, err := s.db.Exec(ctx, dispatchDueQuery, s.LapsedAfter.Milliseconds(), s.Cooldown.Milliseconds())
	s.logger.LogDatabaseOperation("update", "accounts", int(tag.RowsAffected()), time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to dispatch win-back campaigns: %w", err)
	}

	if tag.RowsAffected() > 0 {
		s.logger.Info().
			Str("action", "winback_dispatched").
			Int64("accounts", tag.RowsAffected()).
			Msg("Win-back campaigns dispatched")
	}

	return tag.RowsAffected(), nil
}
