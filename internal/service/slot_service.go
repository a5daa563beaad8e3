package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

type slotStore interface {
	ListActive(ctx context.Context, exec sqlx.ExtContext, weekday *int) ([]models.RecurringSlot, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RecurringSlot, error)
	Deactivate(ctx context.Context, id string) (bool, error)
}

// SlotService is the catalog of recurring weekly slots.
type SlotService struct {
	repo   slotStore
	cache  cacheInvalidator
	logger *zap.Logger
}

// NewSlotService constructs the service.
func NewSlotService(repo slotStore, cache cacheInvalidator, logger *zap.Logger) *SlotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{repo: repo, cache: cache, logger: logger}
}

// ActiveSlots lists active slots, optionally for a single weekday (0 = Sunday).
func (s *SlotService) ActiveSlots(ctx context.Context, weekday *int) ([]models.RecurringSlot, error) {
	if weekday != nil && (*weekday < 0 || *weekday > 6) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekday must be between 0 and 6")
	}
	slots, err := s.repo.ListActive(ctx, nil, weekday)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	return slots, nil
}

// Get returns a slot by id regardless of status.
func (s *SlotService) Get(ctx context.Context, id string) (*models.RecurringSlot, error) {
	slot, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "slot not found", "failed to load slot")
	}
	return slot, nil
}

// Deactivate soft-deletes a slot; history keeps referencing it.
func (s *SlotService) Deactivate(ctx context.Context, actor models.Actor, id string) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	changed, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate slot")
	}
	if !changed {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return nil
	}
	invalidateDeadlines(ctx, s.cache, s.logger)
	s.logger.Info("slot deactivated", zap.String("slot_id", id))
	return nil
}
