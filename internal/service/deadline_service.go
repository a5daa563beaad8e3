package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/pkg/calendar"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
	"github.com/noah-isme/studio-makeup-api/pkg/middleware/requestid"
)

const (
	deadlineKindRepayment = "repayment"
	deadlineKindCredit    = "credit"
)

type snapshotLoader interface {
	LoadSnapshot(ctx context.Context, exec sqlx.ExtContext, studentID string, from, to models.Date) (*AvailabilitySnapshot, error)
}

type deadlineAbsenceReader interface {
	FindByID(ctx context.Context, id string) (*models.Absence, error)
}

type deadlineCreditReader interface {
	FindByID(ctx context.Context, id string) (*models.MakeupCredit, error)
}

type deadlineCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
	Generation() uint64
}

// DeadlineConfig tunes the deadline windows.
type DeadlineConfig struct {
	RepaymentUsableDays int
	CreditUsableDays    int
	HorizonDays         int
	CacheTTL            time.Duration
}

// DeadlineService computes repayment and credit usage deadlines by counting usable days.
type DeadlineService struct {
	snapshots snapshotLoader
	absences  deadlineAbsenceReader
	credits   deadlineCreditReader
	cache     deadlineCache
	metrics   *MetricsService
	config    DeadlineConfig
	logger    *zap.Logger
	group     singleflight.Group
}

// NewDeadlineService constructs the service. cache and metrics may be nil.
func NewDeadlineService(snapshots snapshotLoader, absences deadlineAbsenceReader, credits deadlineCreditReader, cache deadlineCache, metrics *MetricsService, config DeadlineConfig, logger *zap.Logger) *DeadlineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RepaymentUsableDays <= 0 {
		config.RepaymentUsableDays = 7
	}
	if config.CreditUsableDays <= 0 {
		config.CreditUsableDays = 30
	}
	if config.HorizonDays <= 0 {
		config.HorizonDays = calendar.DefaultHorizonDays
	}
	return &DeadlineService{
		snapshots: snapshots,
		absences:  absences,
		credits:   credits,
		cache:     cache,
		metrics:   metrics,
		config:    config,
		logger:    logger,
	}
}

// RepaymentDeadline returns the date on which the student reaches the configured number of usable
// days after absenceDate.
func (s *DeadlineService) RepaymentDeadline(ctx context.Context, exec sqlx.ExtContext, studentID string, absenceDate models.Date) (models.Date, error) {
	start := time.Now()
	from, to := absenceDate.AddDays(1), absenceDate.AddDays(s.config.HorizonDays)
	snapshot, err := s.snapshots.LoadSnapshot(ctx, exec, studentID, from, to)
	if err != nil {
		s.metrics.ObserveDeadline(deadlineKindRepayment, "error", time.Since(start))
		return models.Date{}, err
	}
	deadline, err := calendar.FindNthUsableDate(absenceDate, s.config.RepaymentUsableDays, snapshot.Usable, s.config.HorizonDays)
	if err != nil {
		s.metrics.ObserveDeadline(deadlineKindRepayment, "unreachable", time.Since(start))
		return models.Date{}, s.unreachable(ctx, err, studentID, absenceDate)
	}
	s.metrics.ObserveDeadline(deadlineKindRepayment, "ok", time.Since(start))
	return deadline, nil
}

// CreditDeadline returns min(validityDate, date of the configured number of usable days after today).
// When the validity date cuts the window short the validity date is the deadline, unless no slot is
// offered at all before it, which is reported as unreachable.
func (s *DeadlineService) CreditDeadline(ctx context.Context, exec sqlx.ExtContext, credit models.MakeupCredit, today models.Date) (models.Date, error) {
	if !credit.ValidityDate.After(today) {
		return credit.ValidityDate, nil
	}
	start := time.Now()
	from, to := today.AddDays(1), today.AddDays(s.config.HorizonDays)
	snapshot, err := s.snapshots.LoadSnapshot(ctx, exec, credit.StudentID, from, models.MinDate(to, credit.ValidityDate))
	if err != nil {
		s.metrics.ObserveDeadline(deadlineKindCredit, "error", time.Since(start))
		return models.Date{}, err
	}
	usable := func(d models.Date) bool {
		return !d.After(credit.ValidityDate) && snapshot.Usable(d)
	}
	deadline, err := calendar.FindNthUsableDate(today, s.config.CreditUsableDays, usable, s.config.HorizonDays)
	if err != nil {
		if errors.Is(err, calendar.ErrDeadlineUnreachable) && !credit.ValidityDate.After(to) && offersAnySlot(snapshot, from, credit.ValidityDate) {
			s.metrics.ObserveDeadline(deadlineKindCredit, "validity", time.Since(start))
			return credit.ValidityDate, nil
		}
		s.metrics.ObserveDeadline(deadlineKindCredit, "unreachable", time.Since(start))
		return models.Date{}, s.unreachable(ctx, err, credit.StudentID, today)
	}
	s.metrics.ObserveDeadline(deadlineKindCredit, "ok", time.Since(start))
	return models.MinDate(credit.ValidityDate, deadline), nil
}

func offersAnySlot(snapshot *AvailabilitySnapshot, from, to models.Date) bool {
	for _, d := range calendar.Range(from, to) {
		if len(snapshot.SlotsOn(d)) > 0 {
			return true
		}
	}
	return false
}

func (s *DeadlineService) unreachable(ctx context.Context, err error, studentID string, start models.Date) error {
	if !errors.Is(err, calendar.ErrDeadlineUnreachable) {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	s.logger.Error("deadline unreachable within search horizon, check slot and holiday configuration",
		zap.String("student_id", studentID),
		zap.String("date", start.String()),
		zap.Int("horizon_days", s.config.HorizonDays),
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrDeadlineUnreachable.Code, appErrors.ErrDeadlineUnreachable.Status, appErrors.ErrDeadlineUnreachable.Message)
}

// ForAbsence returns the repayment deadline of an absence and the days left from today.
func (s *DeadlineService) ForAbsence(ctx context.Context, absenceID string, today models.Date) (*models.Deadline, error) {
	key := absenceDeadlineKey(absenceID)
	date, err := s.cached(ctx, key, func() (models.Date, error) {
		absence, err := s.absences.FindByID(ctx, absenceID)
		if err != nil {
			return models.Date{}, lookupError(err, "absence not found", "failed to load absence")
		}
		return s.RepaymentDeadline(ctx, nil, absence.StudentID, absence.Date)
	})
	if err != nil {
		return nil, err
	}
	return &models.Deadline{DeadlineDate: date, DaysRemaining: today.DaysUntil(date)}, nil
}

// ForCredit returns the usage deadline of a credit and the days left from today.
func (s *DeadlineService) ForCredit(ctx context.Context, creditID string, today models.Date) (*models.Deadline, error) {
	key := creditDeadlineKey(creditID, today)
	date, err := s.cached(ctx, key, func() (models.Date, error) {
		credit, err := s.credits.FindByID(ctx, creditID)
		if err != nil {
			return models.Date{}, lookupError(err, "credit not found", "failed to load credit")
		}
		return s.CreditDeadline(ctx, nil, *credit, today)
	})
	if err != nil {
		return nil, err
	}
	return &models.Deadline{DeadlineDate: date, DaysRemaining: today.DaysUntil(date)}, nil
}

// cached serves key from the cache, coalescing concurrent misses into one computation. A value computed
// across an invalidation is returned to its callers but removed from the cache again.
func (s *DeadlineService) cached(ctx context.Context, key string, compute func() (models.Date, error)) (models.Date, error) {
	if s.cache != nil {
		var hit models.Date
		if ok, err := s.cache.Get(ctx, key, &hit); err == nil && ok && !hit.IsZero() {
			return hit, nil
		}
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var generation uint64
		if s.cache != nil {
			generation = s.cache.Generation()
		}
		date, err := compute()
		if err != nil {
			return models.Date{}, err
		}
		if s.cache != nil && s.cache.Set(ctx, key, date, s.config.CacheTTL) == nil && s.cache.Generation() != generation {
			if err := s.cache.Invalidate(ctx, key); err != nil {
				s.logger.Warn("failed to drop deadline computed across an invalidation", zap.String("key", key), zap.Error(err))
			}
		}
		return date, nil
	})
	if err != nil {
		return models.Date{}, err
	}
	return value.(models.Date), nil
}
