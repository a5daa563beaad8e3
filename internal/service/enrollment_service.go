package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/dto"
	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/pkg/calendar"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

type enrollmentStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	ListActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error
}

// EnrollmentService manages fixed-class enrollments. It keeps a student's active enrollments free of
// time overlaps and never lets a new enrollment push an upcoming class over capacity.
type EnrollmentService struct {
	tx          txRunner
	repo        enrollmentStore
	slots       bookingSlotReader
	snapshots   snapshotLoader
	horizonDays int
	cache       cacheInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs the service. horizonDays bounds how many upcoming days are checked
// for free seats.
func NewEnrollmentService(tx txRunner, repo enrollmentStore, slots bookingSlotReader, snapshots snapshotLoader, horizonDays int, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if horizonDays <= 0 {
		horizonDays = calendar.DefaultHorizonDays
	}
	return &EnrollmentService{
		tx:          tx,
		repo:        repo,
		slots:       slots,
		snapshots:   snapshots,
		horizonDays: horizonDays,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// Enroll adds the student to a slot. When SupersedesID is set the prior enrollment is deactivated in
// the same transaction and excluded from the overlap check. Every occurrence of the slot within the
// horizon after today must still have a free seat, counting approved moves and credit usages.
func (s *EnrollmentService) Enroll(ctx context.Context, actor models.Actor, req dto.EnrollRequest, today models.Date) (*models.Enrollment, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	// The weekday never changes, so the occurrences to lock can be derived before the transaction.
	target, err := s.slots.FindByID(ctx, nil, req.SlotID)
	if err != nil {
		return nil, lookupError(err, "slot not found", "failed to load slot")
	}
	from, to := today.AddDays(1), today.AddDays(s.horizonDays)
	occurrences := slotOccurrences(*target, from, to)
	locks := make([]string, 0, len(occurrences)+1)
	locks = append(locks, "enrollment:"+req.StudentID)
	for _, d := range occurrences {
		locks = append(locks, slotDateLock(target.ID, d))
	}

	var created *models.Enrollment
	err = s.tx.InTx(ctx, locks, func(exec sqlx.ExtContext) error {
		slot, err := s.slots.FindByID(ctx, exec, req.SlotID)
		if err != nil {
			return lookupError(err, "slot not found", "failed to load slot")
		}
		if !slot.Active() {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "slot is not active")
		}

		supersedes := ""
		if req.SupersedesID != nil {
			prior, err := s.repo.FindByID(ctx, exec, *req.SupersedesID)
			if err != nil {
				return lookupError(err, "superseded enrollment not found", "failed to load superseded enrollment")
			}
			if prior.StudentID != req.StudentID || !prior.Active {
				return appErrors.Clone(appErrors.ErrValidation, "superseded enrollment must be an active enrollment of the same student")
			}
			if prior.SlotID == slot.ID {
				return appErrors.Clone(appErrors.ErrValidation, "superseded enrollment is already in this slot")
			}
			supersedes = prior.ID
		}

		existing, err := s.repo.ListActiveByStudent(ctx, exec, req.StudentID)
		if err != nil {
			return asAppError(err, "failed to load student enrollments")
		}
		for _, e := range existing {
			if e.ID == supersedes {
				continue
			}
			if e.SlotID == slot.ID {
				return appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this slot")
			}
			if e.Overlaps(*slot) {
				return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("overlaps enrollment %s (%s-%s)", e.ID, e.StartTime, e.EndTime))
			}
		}

		snapshot, err := s.snapshots.LoadSnapshot(ctx, exec, "", from, to)
		if err != nil {
			return err
		}
		for _, d := range occurrences {
			if snapshot.BlockReason(d) == models.BlockHoliday {
				continue
			}
			if !snapshot.HasFreeSeat(*slot, d) {
				return appErrors.Clone(appErrors.ErrSlotFull, "slot has no free seat on "+d.String())
			}
		}

		if supersedes != "" {
			if err := s.repo.Deactivate(ctx, exec, supersedes); err != nil {
				return asAppError(err, "failed to deactivate superseded enrollment")
			}
		}
		enrollment := &models.Enrollment{StudentID: req.StudentID, SlotID: slot.ID, SupersedesID: req.SupersedesID}
		if err := s.repo.Create(ctx, exec, enrollment); err != nil {
			return asAppError(err, "failed to create enrollment")
		}
		created = enrollment
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to enroll student")
	}

	invalidateDeadlines(ctx, s.cache, s.logger)
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", created.ID),
		zap.String("student_id", created.StudentID),
		zap.String("slot_id", created.SlotID))
	return created, nil
}

// slotOccurrences lists the dates in [from, to] on which slot runs.
func slotOccurrences(slot models.RecurringSlot, from, to models.Date) []models.Date {
	var dates []models.Date
	for _, d := range calendar.Range(from, to) {
		if d.Weekday() == slot.Weekday {
			dates = append(dates, d)
		}
	}
	return dates
}
