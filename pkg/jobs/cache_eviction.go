package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/retainloop/core/pkg/logger"
	"github.com/retainloop/core/pkg/services"
)

type CacheEvictionJob struct {
	cacheService services.CacheEvictor
}

// NewCacheEvictionJob creates a new cache eviction job
func NewCacheEvictionJob(cacheService services.CacheEvictor) *CacheEvictionJob {
	return &CacheEvictionJob{
		cacheService: cacheService,
	}
}

func (j *CacheEvictionJob) Execute(ctx context.Context) error {
	if j.cacheService == nil {
		return fmt.Errorf("cache service is not initialized")
	}

	log := logger.WithContext(ctx, "cache-eviction")
	start := time.Now()

	evicted, err := j.cacheService.EvictExpired(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("action", "eviction_failed").
			Dur("duration", duration).
			Msg("Cache eviction failed")
		return err
	}

	log.Info().
		Str("action", "eviction_complete").
		Int64("evicted", evicted).
		Dur("duration", duration).
		Msg("Cache eviction completed")
	return nil
}

func (j *CacheEvictionJob) Name() string {
	return "cache-eviction"
}

func (j *CacheEvictionJob) Interval() time.Duration {
	// Expired cache rows only waste space, so a short lag is fine
	return 10 * time.Minute
}
