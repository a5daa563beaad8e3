package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

type absenceStore interface {
	FindByID(ctx context.Context, id string) (*models.Absence, error)
	ListOpenSince(ctx context.Context, since models.Date) ([]models.Absence, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AbsenceStatus) error
}

type absenceRequestReader interface {
	LatestForAbsence(ctx context.Context, absence models.Absence) (*models.RescheduleRequest, error)
}

type absenceDeadlines interface {
	ForAbsence(ctx context.Context, absenceID string, today models.Date) (*models.Deadline, error)
}

// AbsenceView is an absence with its derived repayment state.
type AbsenceView struct {
	models.Absence
	Deadline *models.Deadline `json:"deadline,omitempty"`
}

// AbsenceService derives absence status from reschedule requests and the repayment deadline.
type AbsenceService struct {
	repo         absenceStore
	requests     absenceRequestReader
	deadlines    absenceDeadlines
	metrics      *MetricsService
	lookbackDays int
	logger       *zap.Logger
}

// NewAbsenceService constructs the service. lookbackDays bounds how far back the expiry sweep looks.
func NewAbsenceService(repo absenceStore, requests absenceRequestReader, deadlines absenceDeadlines, metrics *MetricsService, lookbackDays int, logger *zap.Logger) *AbsenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lookbackDays <= 0 {
		lookbackDays = 180
	}
	return &AbsenceService{repo: repo, requests: requests, deadlines: deadlines, metrics: metrics, lookbackDays: lookbackDays, logger: logger}
}

// Get returns the absence with its current derived status.
func (s *AbsenceService) Get(ctx context.Context, actor models.Actor, id string, today models.Date) (*AbsenceView, error) {
	absence, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "absence not found", "failed to load absence")
	}
	if err := CanActFor(actor, absence.StudentID); err != nil {
		return nil, err
	}
	status, deadline, err := s.Status(ctx, *absence, today)
	if err != nil {
		return nil, err
	}
	absence.Status = status
	return &AbsenceView{Absence: *absence, Deadline: deadline}, nil
}

// Status derives the repayment state. An open request wins over the deadline; without one an
// elapsed deadline means expired, which is final.
func (s *AbsenceService) Status(ctx context.Context, absence models.Absence, today models.Date) (models.AbsenceStatus, *models.Deadline, error) {
	if absence.Status == models.AbsenceStatusExpired {
		return models.AbsenceStatusExpired, nil, nil
	}

	latest, err := s.requests.LatestForAbsence(ctx, absence)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load absence requests")
	}
	base := models.AbsenceStatusRepayable
	if latest != nil {
		switch latest.Status {
		case models.RescheduleStatusApproved:
			return models.AbsenceStatusRepaid, nil, nil
		case models.RescheduleStatusPending:
			return models.AbsenceStatusPendingRepayment, nil, nil
		case models.RescheduleStatusRejected:
			base = models.AbsenceStatusRejectedRepayment
		}
	}

	deadline, err := s.deadlines.ForAbsence(ctx, absence.ID, today)
	if err != nil {
		return "", nil, err
	}
	if deadline.DaysRemaining <= 0 {
		return models.AbsenceStatusExpired, deadline, nil
	}
	return base, deadline, nil
}

// SweepExpired persists the expired status of every open absence whose deadline has elapsed. It
// returns how many absences were expired. Per-absence failures are logged and skipped.
func (s *AbsenceService) SweepExpired(ctx context.Context, today models.Date) (int, error) {
	absences, err := s.repo.ListOpenSince(ctx, today.AddDays(-s.lookbackDays))
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list open absences")
	}

	expired := 0
	for _, absence := range absences {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		status, _, err := s.Status(ctx, absence, today)
		if err != nil {
			s.logger.Error("absence status evaluation failed", zap.String("absence_id", absence.ID), zap.Error(err))
			continue
		}
		if status != models.AbsenceStatusExpired {
			continue
		}
		if err := s.repo.UpdateStatus(ctx, nil, absence.ID, models.AbsenceStatusExpired); err != nil {
			s.logger.Error("failed to expire absence", zap.String("absence_id", absence.ID), zap.Error(err))
			continue
		}
		expired++
		s.logger.Info("absence expired",
			zap.String("absence_id", absence.ID),
			zap.String("student_id", absence.StudentID),
			zap.String("date", absence.Date.String()))
	}
	s.metrics.AddExpiredAbsences(expired)
	return expired, nil
}
