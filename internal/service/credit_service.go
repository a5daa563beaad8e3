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

type creditStore interface {
	FindByID(ctx context.Context, id string) (*models.MakeupCredit, error)
	Create(ctx context.Context, credit *models.MakeupCredit) error
	DeleteWithUsages(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
}

// CreditService manages makeup credits outside of booking.
type CreditService struct {
	tx        txRunner
	repo      creditStore
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCreditService constructs the service.
func NewCreditService(tx txRunner, repo creditStore, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *CreditService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditService{tx: tx, repo: repo, cache: cache, validator: validate, logger: logger}
}

// Get returns a credit visible to actor.
func (s *CreditService) Get(ctx context.Context, actor models.Actor, id string) (*models.MakeupCredit, error) {
	credit, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "credit not found", "failed to load credit")
	}
	if err := CanActFor(actor, credit.StudentID); err != nil {
		return nil, err
	}
	return credit, nil
}

// Grant creates a credit. Only staff may grant.
func (s *CreditService) Grant(ctx context.Context, actor models.Actor, req dto.GrantCreditRequest, today models.Date) (*models.MakeupCredit, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit payload")
	}
	if req.ValidityDate.IsZero() || req.ValidityDate.Before(today) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "validity_date must be today or later")
	}
	credit := &models.MakeupCredit{
		StudentID:       req.StudentID,
		ModalityID:      req.ModalityID,
		QuantityGranted: req.Quantity,
		ValidityDate:    req.ValidityDate,
	}
	if err := s.repo.Create(ctx, credit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant credit")
	}
	s.logger.Info("credit granted", zap.String("credit_id", credit.ID), zap.String("student_id", credit.StudentID), zap.Int("quantity", credit.QuantityGranted))
	return credit, nil
}

// Delete removes a credit together with its usage ledger in one transaction, so no usage is ever
// left orphaned.
func (s *CreditService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	err := s.tx.InTx(ctx, []string{"credit:" + id}, func(exec sqlx.ExtContext) error {
		deleted, err := s.repo.DeleteWithUsages(ctx, exec, id)
		if err != nil {
			return asAppError(err, "failed to delete credit")
		}
		if !deleted {
			return appErrors.Clone(appErrors.ErrNotFound, "credit not found")
		}
		return nil
	})
	if err != nil {
		return asAppError(err, "failed to delete credit")
	}
	invalidateDeadlines(ctx, s.cache, s.logger)
	s.logger.Info("credit deleted", zap.String("credit_id", id))
	return nil
}
