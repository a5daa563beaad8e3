package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

type cacheRepoStub struct {
	values   map[string]models.Date
	ttls     map[string]time.Duration
	patterns []string
	getErr   error
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{values: map[string]models.Date{}, ttls: map[string]time.Duration{}}
}

func (s *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	if s.getErr != nil {
		return s.getErr
	}
	v, ok := s.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*models.Date)) = v
	return nil
}

func (s *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.values[key] = value.(models.Date)
	s.ttls[key] = ttl
	return nil
}

func (s *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	repo := newCacheRepoStub()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)

	var got models.Date
	hit, err := svc.Get(context.Background(), "deadline:absence:a-1", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), "deadline:absence:a-1", day("2024-03-14"), 0))
	assert.Equal(t, time.Minute, repo.ttls["deadline:absence:a-1"])

	hit, err = svc.Get(context.Background(), "deadline:absence:a-1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "2024-03-14", got.String())

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
	assert.InDelta(t, 0.5, snapshot.CacheHitRatio, 0.001)
}

func TestCacheServiceBackendError(t *testing.T) {
	repo := newCacheRepoStub()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)

	var got models.Date
	hit, err := svc.Get(context.Background(), absenceDeadlineKey("a-1"), &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceInvalidateFailure(t *testing.T) {
	svc := NewCacheService(failingCacheRepo{}, nil, 0, nil, true)

	err := svc.Invalidate(context.Background(), deadlineCachePattern)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline:*")
}

type failingCacheRepo struct{}

func (failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return errors.New("down")
}

func (failingCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return errors.New("down")
}

func (failingCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	return errors.New("down")
}

func TestDeadlineCacheKeys(t *testing.T) {
	assert.Equal(t, "deadline:absence:a-1", absenceDeadlineKey("a-1"))
	assert.Equal(t, "deadline:credit:c-1:2024-03-04", creditDeadlineKey("c-1", day("2024-03-04")))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, 0, nil, false)

	assert.False(t, svc.Enabled())
	require.NoError(t, svc.Set(context.Background(), "k", day("2024-03-14"), 0))
	assert.Empty(t, repo.values)
	require.NoError(t, svc.Invalidate(context.Background(), deadlineCachePattern))
	assert.Empty(t, repo.patterns)

	var nilService *CacheService
	assert.False(t, nilService.Enabled())
}

func TestCacheServiceInvalidate(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, 0, nil, true)

	require.NoError(t, svc.Invalidate(context.Background(), deadlineCachePattern))
	assert.Equal(t, []string{"deadline:*"}, repo.patterns)
}

func TestCacheServiceGenerationAdvancesOnInvalidate(t *testing.T) {
	enabled := NewCacheService(newCacheRepoStub(), nil, 0, nil, true)
	disabled := NewCacheService(newCacheRepoStub(), nil, 0, nil, false)
	failing := NewCacheService(failingCacheRepo{}, nil, 0, nil, true)

	for _, svc := range []*CacheService{enabled, disabled, failing} {
		before := svc.Generation()
		_ = svc.Invalidate(context.Background(), deadlineCachePattern)
		assert.Equal(t, before+1, svc.Generation())
	}

	var nilService *CacheService
	assert.Zero(t, nilService.Generation())
	assert.NoError(t, nilService.Invalidate(context.Background(), deadlineCachePattern))
}
