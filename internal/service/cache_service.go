package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

// deadlineCachePattern matches every cached deadline. Any write that changes eligibility or occupancy drops them all.
const deadlineCachePattern = "deadline:*"

const cacheBackendTimeout = 500 * time.Millisecond

func absenceDeadlineKey(absenceID string) string {
	return fmt.Sprintf("deadline:absence:%s", absenceID)
}

// Credit deadlines depend on "today", so the date is part of the key.
func creditDeadlineKey(creditID string, today models.Date) string {
	return fmt.Sprintf("deadline:credit:%s:%s", creditID, today)
}

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService is the advisory deadline cache. Backend failures are logged and reported as misses so a
// Redis outage degrades to recomputation. A disabled service is a permanent miss.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	generation atomic.Uint64
}

// NewCacheService constructs a cache service. repo may be nil when Redis is not configured.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger.Named("deadline_cache"), enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads key into dest and reports whether it was found.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	getCtx, cancel := context.WithTimeout(ctx, cacheBackendTimeout)
	defer cancel()

	start := time.Now()
	err := s.repo.Get(getCtx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
	default:
		s.logger.Warn("cache read failed, recomputing", zap.String("key", key), zap.Error(err))
	}
	return false, nil
}

// Set stores value under key. A non-positive ttl uses the configured default. The write is detached from
// request cancellation because the value is already computed.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheBackendTimeout)
	defer cancel()

	start := time.Now()
	err := s.repo.Set(setCtx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Generation changes on every invalidation. A computation that started under an older generation may
// have read data that a committed write has since changed.
func (s *CacheService) Generation() uint64 {
	if s == nil {
		return 0
	}
	return s.generation.Load()
}

// Invalidate removes every key matching pattern. The generation moves before the delete so a value
// written after the delete is still recognised as stale.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if s == nil {
		return nil
	}
	s.generation.Add(1)
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", pattern, err)
	}
	return nil
}
