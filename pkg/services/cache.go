package services

import (
	"context"
	"fmt"
	"time"

	"github.com/retainloop/core/pkg/database"
	"github.com/retainloop/core/pkg/logger"
)

// CacheService deletes expired rows from the response_cache table
type CacheService struct {
	db     database.DBTX
	logger *logger.Logger
}

// NewCacheService creates a new cache service
func NewCacheService(db database.DBTX) *CacheService {
	return &CacheService{
		db:     db,
		logger: logger.New("cache-service"),
	}
}

const evictExpiredQuery = `DELETE FROM response_cache WHERE expires_at < now()`

// EvictExpired removes cache entries past their TTL in one statement
func (s *CacheService) EvictExpired(ctx context.Context) (int64, error) {
	start := time.Now()

	tag, err := s.db.Exec(ctx, evictExpiredQuery)
	s.logger.LogDatabaseOperation("delete", "response_cache", int(tag.RowsAffected()), time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to evict expired cache entries: %w", err)
	}

	return tag.RowsAffected(), nil
}
