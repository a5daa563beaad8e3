package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

type rescheduleStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RescheduleRequest, error)
	FindOpenByOrigin(ctx context.Context, exec sqlx.ExtContext, studentID, originSlotID string, originDate models.Date, excludeID string) (*models.RescheduleRequest, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RescheduleStatus) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type destinationValidator interface {
	ValidateDestination(ctx context.Context, exec sqlx.ExtContext, studentID, slotID string, date models.Date) (*models.RecurringSlot, error)
}

// RescheduleService drives the pending ⇄ approved and pending ⇄ rejected state machine.
type RescheduleService struct {
	tx          txRunner
	repo        rescheduleStore
	destination destinationValidator
	absences    bookingAbsenceReader
	deadlines   repaymentDeadliner
	cache       cacheInvalidator
	logger      *zap.Logger
}

// NewRescheduleService constructs the service.
func NewRescheduleService(tx txRunner, repo rescheduleStore, destination destinationValidator, absences bookingAbsenceReader, deadlines repaymentDeadliner, cache cacheInvalidator, logger *zap.Logger) *RescheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RescheduleService{
		tx:          tx,
		repo:        repo,
		destination: destination,
		absences:    absences,
		deadlines:   deadlines,
		cache:       cache,
		logger:      logger,
	}
}

// Get returns a request visible to actor.
func (s *RescheduleService) Get(ctx context.Context, actor models.Actor, id string) (*models.RescheduleRequest, error) {
	req, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "reschedule request not found", "failed to load reschedule request")
	}
	if err := CanActFor(actor, req.StudentID); err != nil {
		return nil, err
	}
	return req, nil
}

// Approve moves a pending request to approved after re-validating its destination.
func (s *RescheduleService) Approve(ctx context.Context, actor models.Actor, id string, today models.Date) (*models.RescheduleRequest, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, models.RescheduleStatusApproved, func(exec sqlx.ExtContext, req *models.RescheduleRequest) error {
		if !req.DestDate.After(today) {
			return invalidDestination(reasonNotInFuture, "destination date has already passed")
		}
		if _, err := s.destination.ValidateDestination(ctx, exec, req.StudentID, req.DestSlotID, req.DestDate); err != nil {
			return err
		}
		if req.AbsenceID == nil {
			return nil
		}
		absence, err := s.absences.FindByID(ctx, *req.AbsenceID)
		if err != nil {
			return lookupError(err, "absence not found", "failed to load absence")
		}
		deadline, err := s.deadlines.RepaymentDeadline(ctx, exec, absence.StudentID, absence.Date)
		if err != nil {
			return err
		}
		if req.DestDate.After(deadline) {
			return invalidDestination(reasonPastDeadline, "destination is after the repayment deadline "+deadline.String())
		}
		return nil
	})
}

// Reject moves a pending request to rejected, releasing its origin occurrence.
func (s *RescheduleService) Reject(ctx context.Context, actor models.Actor, id string) (*models.RescheduleRequest, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, models.RescheduleStatusRejected, nil)
}

// Revert sends an approved or rejected request back to pending.
func (s *RescheduleService) Revert(ctx context.Context, actor models.Actor, id string) (*models.RescheduleRequest, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, models.RescheduleStatusPending, func(exec sqlx.ExtContext, req *models.RescheduleRequest) error {
		if req.Status != models.RescheduleStatusRejected {
			return nil
		}
		other, err := s.repo.FindOpenByOrigin(ctx, exec, req.StudentID, req.OriginSlotID, req.OriginDate, req.ID)
		if err != nil {
			return asAppError(err, "failed to check existing requests")
		}
		if other != nil {
			return appErrors.Clone(appErrors.ErrDuplicateRequest, "another open request already holds this class")
		}
		return nil
	})
}

// Delete hard deletes a pending or rejected request. Approved requests must be reverted first.
func (s *RescheduleService) Delete(ctx context.Context, actor models.Actor, id string) error {
	current, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return lookupError(err, "reschedule request not found", "failed to load reschedule request")
	}
	if err := CanActFor(actor, current.StudentID); err != nil {
		return err
	}
	err = s.tx.InTx(ctx, lockKeysFor(current), func(exec sqlx.ExtContext) error {
		req, err := s.repo.FindByID(ctx, exec, id)
		if err != nil {
			return lookupError(err, "reschedule request not found", "failed to load reschedule request")
		}
		if !req.Status.Deletable() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "approved requests must be reverted to pending before deletion")
		}
		return asAppError(s.repo.Delete(ctx, exec, id), "failed to delete reschedule request")
	})
	if err != nil {
		return asAppError(err, "failed to delete reschedule request")
	}
	s.logger.Info("reschedule deleted", zap.String("request_id", id), zap.String("student_id", current.StudentID))
	return nil
}

func lockKeysFor(req *models.RescheduleRequest) []string {
	return []string{
		studentDateLock(req.StudentID, req.DestDate),
		slotDateLock(req.DestSlotID, req.DestDate),
		originLock(req.OriginSlotID, req.OriginDate, req.StudentID),
	}
}

func (s *RescheduleService) transition(ctx context.Context, id string, to models.RescheduleStatus, guard func(exec sqlx.ExtContext, req *models.RescheduleRequest) error) (*models.RescheduleRequest, error) {
	current, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "reschedule request not found", "failed to load reschedule request")
	}

	var (
		updated *models.RescheduleRequest
		from    models.RescheduleStatus
	)
	err = s.tx.InTx(ctx, lockKeysFor(current), func(exec sqlx.ExtContext) error {
		req, err := s.repo.FindByID(ctx, exec, id)
		if err != nil {
			return lookupError(err, "reschedule request not found", "failed to load reschedule request")
		}
		if !req.Status.CanTransition(to) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move request from "+string(req.Status)+" to "+string(to))
		}
		if guard != nil {
			if err := guard(exec, req); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateStatus(ctx, exec, id, to); err != nil {
			return asAppError(err, "failed to update reschedule request")
		}
		from = req.Status
		req.Status = to
		updated = req
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to update reschedule request")
	}

	if from == models.RescheduleStatusApproved || to == models.RescheduleStatusApproved {
		invalidateDeadlines(ctx, s.cache, s.logger)
	}
	s.logger.Info("reschedule status changed",
		zap.String("request_id", id),
		zap.String("student_id", updated.StudentID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return updated, nil
}
