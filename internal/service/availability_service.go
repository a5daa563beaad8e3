package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/pkg/calendar"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

type availabilitySlotReader interface {
	ListActive(ctx context.Context, exec sqlx.ExtContext, weekday *int) ([]models.RecurringSlot, error)
}

type availabilityHolidayReader interface {
	ListInRange(ctx context.Context, exec sqlx.ExtContext, from, to models.Date) ([]models.Holiday, error)
}

type availabilityEnrollmentReader interface {
	ListActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.EnrollmentDetail, error)
	CountSeatHolders(ctx context.Context, exec sqlx.ExtContext) (map[string]int, error)
}

type availabilityRescheduleReader interface {
	ListApprovedInWindow(ctx context.Context, exec sqlx.ExtContext, studentID string, from, to models.Date) ([]models.RescheduleRequest, error)
}

type availabilityUsageReader interface {
	ListUsagesInRange(ctx context.Context, exec sqlx.ExtContext, from, to models.Date) ([]models.CreditUsage, error)
}

// AvailabilityReaders groups the read models the engine consumes.
type AvailabilityReaders struct {
	Slots       availabilitySlotReader
	Holidays    availabilityHolidayReader
	Enrollments availabilityEnrollmentReader
	Reschedules availabilityRescheduleReader
	Usages      availabilityUsageReader
}

// AvailabilityService loads snapshots and answers calendar and occupancy questions.
type AvailabilityService struct {
	readers      AvailabilityReaders
	policy       OccupancyPolicy
	maxRangeDays int
	logger       *zap.Logger
}

// NewAvailabilityService constructs the service. maxRangeDays caps calendar queries.
func NewAvailabilityService(readers AvailabilityReaders, policy OccupancyPolicy, maxRangeDays int, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRangeDays <= 0 {
		maxRangeDays = calendar.DefaultHorizonDays
	}
	return &AvailabilityService{readers: readers, policy: policy, maxRangeDays: maxRangeDays, logger: logger}
}

// LoadSnapshot reads everything needed to judge [from, to] for studentID. An empty studentID yields an
// occupancy-only snapshot. Pass a transaction as exec to read under the booking locks.
func (s *AvailabilityService) LoadSnapshot(ctx context.Context, exec sqlx.ExtContext, studentID string, from, to models.Date) (*AvailabilitySnapshot, error) {
	slots, err := s.readers.Slots.ListActive(ctx, exec, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slots")
	}
	holidays, err := s.readers.Holidays.ListInRange(ctx, exec, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load holidays")
	}
	seatHolders, err := s.readers.Enrollments.CountSeatHolders(ctx, exec)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	approved, err := s.readers.Reschedules.ListApprovedInWindow(ctx, exec, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reschedules")
	}
	usages, err := s.readers.Usages.ListUsagesInRange(ctx, exec, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credit usages")
	}

	var enrollments []models.EnrollmentDetail
	if studentID != "" {
		enrollments, err = s.readers.Enrollments.ListActiveByStudent(ctx, exec, studentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student enrollments")
		}
	}

	dates := make([]models.Date, 0, len(holidays))
	for _, h := range holidays {
		dates = append(dates, h.Date)
	}

	return NewAvailabilitySnapshot(SnapshotInput{
		StudentID:          studentID,
		Policy:             s.policy,
		Slots:              slots,
		Holidays:           dates,
		SeatHolders:        seatHolders,
		ApprovedRequests:   approved,
		Usages:             usages,
		StudentEnrollments: enrollments,
	}), nil
}

func (s *AvailabilityService) checkRange(from, to models.Date) error {
	if from.IsZero() || to.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "from and to are required")
	}
	if to.Before(from) {
		return appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	if span := from.DaysUntil(to) + 1; span > s.maxRangeDays {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("range spans %d days, maximum is %d", span, s.maxRangeDays))
	}
	return nil
}

func (s *AvailabilityService) loadRange(ctx context.Context, studentID string, from, to models.Date) (*AvailabilitySnapshot, []models.Date, error) {
	if studentID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if err := s.checkRange(from, to); err != nil {
		return nil, nil, err
	}
	snapshot, err := s.LoadSnapshot(ctx, nil, studentID, from, to)
	if err != nil {
		return nil, nil, err
	}
	return snapshot, calendar.Range(from, to), nil
}

// Calendar evaluates every date in [from, to] for the student.
func (s *AvailabilityService) Calendar(ctx context.Context, studentID string, from, to models.Date) ([]models.DayAvailability, error) {
	snapshot, days, err := s.loadRange(ctx, studentID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]models.DayAvailability, 0, len(days))
	for _, day := range days {
		out = append(out, snapshot.Evaluate(day))
	}
	return out, nil
}

// ListBookableSlots flattens the usable days of [from, to] into (date, slot, freeSeats) entries.
func (s *AvailabilityService) ListBookableSlots(ctx context.Context, studentID string, from, to models.Date) ([]models.BookableSlot, error) {
	snapshot, days, err := s.loadRange(ctx, studentID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]models.BookableSlot, 0)
	for _, day := range days {
		out = append(out, snapshot.Bookable(day)...)
	}
	return out, nil
}

// Occupancy returns the seat picture of one slot on one date.
func (s *AvailabilityService) Occupancy(ctx context.Context, slot models.RecurringSlot, date models.Date) (models.SlotOccupancy, error) {
	snapshot, err := s.LoadSnapshot(ctx, nil, "", date, date)
	if err != nil {
		return models.SlotOccupancy{}, err
	}
	return snapshot.Occupancy(slot, date), nil
}

// Headcount returns the committed seats of slot on date.
func (s *AvailabilityService) Headcount(ctx context.Context, slot models.RecurringSlot, date models.Date) (int, error) {
	occ, err := s.Occupancy(ctx, slot, date)
	if err != nil {
		return 0, err
	}
	return occ.Headcount, nil
}

// HasFreeSeat reports whether slot can take one more student on date.
func (s *AvailabilityService) HasFreeSeat(ctx context.Context, slot models.RecurringSlot, date models.Date) (bool, error) {
	occ, err := s.Occupancy(ctx, slot, date)
	if err != nil {
		return false, err
	}
	return occ.HasFreeSeat(), nil
}
