package services

import (
	"context"
	"fmt"
	"time"

	"github.com/retainloop/core/pkg/database"
	"github.com/retainloop/core/pkg/logger"
)

// SessionService deletes expired rows from the sessions table
type SessionService struct {
	db     database.DBTX
	logger *logger.Logger
}

// NewSessionService creates a new session service
func NewSessionService(db database.DBTX) *SessionService {
	return &SessionService{
		db:     db,
		logger: logger.New("session-service"),
	}
}

const purgeExpiredQuery = `DELETE FROM sessions WHERE expires_at < now()`

// PurgeExpired removes sessions past their expiry in one statement
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	start := time.Now()

	tag, err := s.db.Exec(ctx, purgeExpiredQuery)
	s.logger.LogDatabaseOperation("delete", "sessions", int(tag.RowsAffected()), time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}
