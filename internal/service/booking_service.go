package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/dto"
	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

const (
	bookingKindReschedule = "reschedule"
	bookingKindCredit     = "credit"
)

type bookingSlotReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RecurringSlot, error)
}

type bookingEnrollmentReader interface {
	ListActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.EnrollmentDetail, error)
}

type bookingRescheduleStore interface {
	FindOpenByOrigin(ctx context.Context, exec sqlx.ExtContext, studentID, originSlotID string, originDate models.Date, excludeID string) (*models.RescheduleRequest, error)
	Create(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error
}

type bookingCreditStore interface {
	FindByID(ctx context.Context, id string) (*models.MakeupCredit, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.MakeupCredit, error)
	CreateUsage(ctx context.Context, exec sqlx.ExtContext, usage *models.CreditUsage) error
	IncrementConsumed(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
}

type bookingAbsenceReader interface {
	FindByID(ctx context.Context, id string) (*models.Absence, error)
}

type repaymentDeadliner interface {
	RepaymentDeadline(ctx context.Context, exec sqlx.ExtContext, studentID string, absenceDate models.Date) (models.Date, error)
}

// BookingDeps groups the collaborators of BookingService.
type BookingDeps struct {
	Tx          txRunner
	Slots       bookingSlotReader
	Enrollments bookingEnrollmentReader
	Reschedules bookingRescheduleStore
	Credits     bookingCreditStore
	Absences    bookingAbsenceReader
	Snapshots   snapshotLoader
	Deadlines   repaymentDeadliner
	Cache       cacheInvalidator
	Metrics     *MetricsService
}

// BookingService validates destinations and writes reschedules and credit usages atomically.
type BookingService struct {
	deps      BookingDeps
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBookingService constructs the coordinator.
func NewBookingService(deps BookingDeps, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{deps: deps, validator: validate, logger: logger}
}

// RequestReschedule creates a reschedule request. Staff requests are approved immediately; student
// requests wait for approval.
func (s *BookingService) RequestReschedule(ctx context.Context, actor models.Actor, req dto.CreateRescheduleRequest, today models.Date) (*models.RescheduleRequest, error) {
	result, err := s.requestReschedule(ctx, actor, req, today)
	s.record(bookingKindReschedule, err)
	if err != nil {
		return nil, err
	}
	if result.Status == models.RescheduleStatusApproved {
		s.invalidate(ctx)
	}
	s.logger.Info("reschedule requested",
		zap.String("request_id", result.ID),
		zap.String("student_id", result.StudentID),
		zap.String("slot_id", result.DestSlotID),
		zap.String("date", result.DestDate.String()),
		zap.String("status", string(result.Status)))
	return result, nil
}

func (s *BookingService) requestReschedule(ctx context.Context, actor models.Actor, req dto.CreateRescheduleRequest, today models.Date) (*models.RescheduleRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	if req.OriginDate.IsZero() || req.DestDate.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "origin_date and dest_date are required")
	}
	if err := CanActFor(actor, req.StudentID); err != nil {
		return nil, err
	}
	if !req.DestDate.After(today) {
		return nil, invalidDestination(reasonNotInFuture, "destination must be after today")
	}
	if !req.DestDate.After(req.OriginDate) {
		return nil, invalidDestination(reasonNotAfterOrigin, "destination must be after the original class date")
	}

	var absence *models.Absence
	if req.AbsenceID != nil {
		found, err := s.deps.Absences.FindByID(ctx, *req.AbsenceID)
		if err != nil {
			return nil, lookupError(err, "absence not found", "failed to load absence")
		}
		if found.StudentID != req.StudentID || found.SlotID != req.OriginSlotID || !found.Date.Equal(req.OriginDate) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "absence does not match the original class")
		}
		if found.Status == models.AbsenceStatusExpired {
			return nil, invalidDestination(reasonPastDeadline, "absence repayment window has expired")
		}
		absence = found
	}

	status := models.RescheduleStatusPending
	if actor.IsStaff() {
		status = models.RescheduleStatusApproved
	}

	locks := []string{
		studentDateLock(req.StudentID, req.DestDate),
		slotDateLock(req.DestSlotID, req.DestDate),
		originLock(req.OriginSlotID, req.OriginDate, req.StudentID),
	}

	var created *models.RescheduleRequest
	err := s.deps.Tx.InTx(ctx, locks, func(exec sqlx.ExtContext) error {
		if err := s.checkOrigin(ctx, exec, req, absence != nil); err != nil {
			return err
		}
		open, err := s.deps.Reschedules.FindOpenByOrigin(ctx, exec, req.StudentID, req.OriginSlotID, req.OriginDate, "")
		if err != nil {
			return asAppError(err, "failed to check existing requests")
		}
		if open != nil {
			return appErrors.Clone(appErrors.ErrDuplicateRequest, "")
		}

		slot, err := s.ValidateDestination(ctx, exec, req.StudentID, req.DestSlotID, req.DestDate)
		if err != nil {
			return err
		}

		if absence != nil {
			deadline, err := s.deps.Deadlines.RepaymentDeadline(ctx, exec, absence.StudentID, absence.Date)
			if err != nil {
				return err
			}
			if req.DestDate.After(deadline) {
				return invalidDestination(reasonPastDeadline, "destination is after the repayment deadline "+deadline.String())
			}
		}

		record := &models.RescheduleRequest{
			StudentID:     req.StudentID,
			OriginSlotID:  req.OriginSlotID,
			OriginDate:    req.OriginDate,
			DestSlotID:    slot.ID,
			DestDate:      req.DestDate,
			DestStart:     slot.StartTime,
			DestEnd:       slot.EndTime,
			Status:        status,
			IsCreditUsage: absence != nil,
			AbsenceID:     req.AbsenceID,
			CreatedBy:     actor.UserID,
		}
		if err := s.deps.Reschedules.Create(ctx, exec, record); err != nil {
			return asAppError(err, "failed to create reschedule request")
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to create reschedule request")
	}
	return created, nil
}

// checkOrigin makes sure the request moves a real class: the origin slot runs on the origin date and,
// for plain moves, the student holds an active enrollment in it. Repayments were already matched
// against their absence.
func (s *BookingService) checkOrigin(ctx context.Context, exec sqlx.ExtContext, req dto.CreateRescheduleRequest, repayment bool) error {
	origin, err := s.deps.Slots.FindByID(ctx, exec, req.OriginSlotID)
	if err != nil {
		return lookupError(err, "origin slot not found", "failed to load origin slot")
	}
	if origin.Weekday != req.OriginDate.Weekday() {
		return appErrors.Clone(appErrors.ErrValidation, "origin slot does not run on "+req.OriginDate.String())
	}
	if repayment {
		return nil
	}
	enrollments, err := s.deps.Enrollments.ListActiveByStudent(ctx, exec, req.StudentID)
	if err != nil {
		return asAppError(err, "failed to load student enrollments")
	}
	for _, e := range enrollments {
		if e.SlotID == origin.ID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in the origin slot")
}

// UseCredit consumes one unit of a credit for the chosen destination. The ledger row and the counter
// increment commit together or not at all.
func (s *BookingService) UseCredit(ctx context.Context, actor models.Actor, creditID string, req dto.UseCreditRequest, today models.Date) (*models.CreditUsage, error) {
	usage, err := s.useCredit(ctx, actor, creditID, req, today)
	s.record(bookingKindCredit, err)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.logger.Info("credit used",
		zap.String("credit_id", usage.CreditID),
		zap.String("student_id", usage.StudentID),
		zap.String("slot_id", usage.DestSlotID),
		zap.String("date", usage.DestDate.String()))
	return usage, nil
}

func (s *BookingService) useCredit(ctx context.Context, actor models.Actor, creditID string, req dto.UseCreditRequest, today models.Date) (*models.CreditUsage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit usage payload")
	}
	if req.DestDate.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dest_date is required")
	}

	credit, err := s.deps.Credits.FindByID(ctx, creditID)
	if err != nil {
		return nil, lookupError(err, "credit not found", "failed to load credit")
	}
	if err := CanActFor(actor, credit.StudentID); err != nil {
		return nil, err
	}
	if !req.DestDate.After(today) {
		return nil, invalidDestination(reasonNotInFuture, "destination must be after today")
	}

	locks := []string{
		studentDateLock(credit.StudentID, req.DestDate),
		slotDateLock(req.DestSlotID, req.DestDate),
	}

	var created *models.CreditUsage
	err = s.deps.Tx.InTx(ctx, locks, func(exec sqlx.ExtContext) error {
		locked, err := s.deps.Credits.LockByID(ctx, exec, creditID)
		if err != nil {
			return lookupError(err, "credit not found", "failed to lock credit")
		}
		if locked.Remaining() <= 0 {
			return appErrors.Clone(appErrors.ErrCreditExhausted, "")
		}
		if req.DestDate.After(locked.ValidityDate) {
			return appErrors.Clone(appErrors.ErrCreditExpired, "credit is valid until "+locked.ValidityDate.String())
		}

		slot, err := s.ValidateDestination(ctx, exec, locked.StudentID, req.DestSlotID, req.DestDate)
		if err != nil {
			return err
		}
		if !locked.AllowsModality(slot.ModalityID) {
			return invalidDestination(reasonModalityMismatch, "credit is restricted to another modality")
		}

		usage := &models.CreditUsage{
			CreditID:   locked.ID,
			StudentID:  locked.StudentID,
			DestSlotID: slot.ID,
			DestDate:   req.DestDate,
		}
		if err := s.deps.Credits.CreateUsage(ctx, exec, usage); err != nil {
			return asAppError(err, "failed to record credit usage")
		}
		ok, err := s.deps.Credits.IncrementConsumed(ctx, exec, locked.ID)
		if err != nil {
			return asAppError(err, "failed to update credit counter")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrCreditExhausted, "")
		}
		created = usage
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to use credit")
	}
	return created, nil
}

// ValidateDestination re-checks a destination against current data: the slot must be active and
// offered on the date's weekday, the date must be usable for the student and the slot must have a
// free seat.
func (s *BookingService) ValidateDestination(ctx context.Context, exec sqlx.ExtContext, studentID, slotID string, date models.Date) (*models.RecurringSlot, error) {
	slot, err := s.deps.Slots.FindByID(ctx, exec, slotID)
	if err != nil {
		return nil, lookupError(err, "destination slot not found", "failed to load destination slot")
	}
	if !slot.Active() {
		return nil, invalidDestination(reasonSlotInactive, "destination slot is no longer offered")
	}
	if slot.Weekday != date.Weekday() {
		return nil, invalidDestination(reasonSlotNotOffered, "destination slot does not run on "+date.String())
	}

	snapshot, err := s.deps.Snapshots.LoadSnapshot(ctx, exec, studentID, date, date)
	if err != nil {
		return nil, err
	}
	if reason := snapshot.BlockReason(date); reason != models.BlockNone {
		return nil, invalidDestination(reason, "")
	}
	if !snapshot.HasFreeSeat(*slot, date) {
		return nil, appErrors.Clone(appErrors.ErrSlotFull, "")
	}
	return slot, nil
}

func (s *BookingService) record(kind string, err error) {
	if err == nil {
		s.deps.Metrics.RecordBooking(kind, BookingOutcomeCreated, "")
		return
	}
	appErr := appErrors.FromError(err)
	if appErr.Status >= 500 {
		s.logger.Error("booking failed", zap.String("kind", kind), zap.Error(err))
		s.deps.Metrics.RecordBooking(kind, BookingOutcomeFailed, appErr.Code)
		return
	}
	s.logger.Info("booking rejected", zap.String("kind", kind), zap.String("code", appErr.Code), zap.String("reason", appErr.Reason))
	s.deps.Metrics.RecordBooking(kind, BookingOutcomeRejected, appErr.Code)
}

func (s *BookingService) invalidate(ctx context.Context) {
	invalidateDeadlines(ctx, s.deps.Cache, s.logger)
}
