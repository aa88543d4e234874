package services

import (
	"context"
	"fmt"
	"time"

	"github.com/retainloop/core/pkg/database"
	"github.com/retainloop/core/pkg/logger"
)

// PushService queues digest pushes for opted-in devices. Delivery happens
// downstream off the push_queue table.
type PushService struct {
	db     database.DBTX
	logger *logger.Logger
}

// NewPushService creates a new push service
func NewPushService(db database.DBTX) *PushService {
	return &PushService{
		db:     db,
		logger: logger.New("push-service"),
	}
}

const queueDigestsQuery = `
INSERT INTO push_queue (device_id, kind, created_at)
SELECT id, 'digest', now()
FROM devices
WHERE push_enabled`

// SendDigests queues one digest push per opted-in device
func (s *PushService) SendDigests(ctx context.Context) (int64, error) {
	start := time.Now()

	tag, err := s.db.Exec(ctx, queueDigestsQuery)
	s.logger.LogDatabaseOperation("insert", "push_queue", int(tag.RowsAffected()), time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to queue digest pushes: %w", err)
	}

	return tag.RowsAffected(), nil
}
