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

type holidayStore interface {
	ListInRange(ctx context.Context, exec sqlx.ExtContext, from, to models.Date) ([]models.Holiday, error)
	Upsert(ctx context.Context, holiday models.Holiday) error
	Delete(ctx context.Context, date models.Date) (bool, error)
}

// HolidayService maintains the studio closure calendar.
type HolidayService struct {
	repo      holidayStore
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewHolidayService constructs the service.
func NewHolidayService(repo holidayStore, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *HolidayService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HolidayService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns holidays in [from, to].
func (s *HolidayService) List(ctx context.Context, from, to models.Date) ([]models.Holiday, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a valid from/to range is required")
	}
	holidays, err := s.repo.ListInRange(ctx, nil, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list holidays")
	}
	return holidays, nil
}

// Add marks a date as closed. Re-adding a date updates its description.
func (s *HolidayService) Add(ctx context.Context, actor models.Actor, req dto.HolidayRequest) (*models.Holiday, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid holiday payload")
	}
	if req.Date.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date is required")
	}
	holiday := models.Holiday{Date: req.Date, Description: req.Description}
	if err := s.repo.Upsert(ctx, holiday); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save holiday")
	}
	invalidateDeadlines(ctx, s.cache, s.logger)
	s.logger.Info("holiday added", zap.String("date", holiday.Date.String()))
	return &holiday, nil
}

// Remove reopens a date.
func (s *HolidayService) Remove(ctx context.Context, actor models.Actor, date models.Date) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, date)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete holiday")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "holiday not found")
	}
	invalidateDeadlines(ctx, s.cache, s.logger)
	s.logger.Info("holiday removed", zap.String("date", date.String()))
	return nil
}
