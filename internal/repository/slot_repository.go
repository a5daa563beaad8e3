package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

const slotSelect = `SELECT s.id, s.weekday, s.start_time, s.end_time, s.teacher_id, s.status, s.modality_id,
        m.name AS modality_name, m.capacity, m.duration_minutes
        FROM recurring_slots s
        JOIN modalities m ON m.id = s.modality_id`

// SlotRepository reads recurring slots together with their modality capacity.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// ListActive returns active slots, optionally restricted to one weekday.
func (r *SlotRepository) ListActive(ctx context.Context, exec sqlx.ExtContext, weekday *int) ([]models.RecurringSlot, error) {
	query := slotSelect + ` WHERE s.status = $1`
	args := []interface{}{models.SlotStatusActive}
	if weekday != nil {
		query += ` AND s.weekday = $2`
		args = append(args, *weekday)
	}
	query += ` ORDER BY s.weekday, s.start_time`

	var slots []models.RecurringSlot
	if err := sqlx.SelectContext(ctx, executor(r.db, exec), &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list active slots: %w", err)
	}
	return slots, nil
}

// FindByID returns a slot regardless of status.
func (r *SlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RecurringSlot, error) {
	var slot models.RecurringSlot
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &slot, slotSelect+` WHERE s.id = $1`, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Deactivate soft-deletes a slot. Rows are kept for enrollment and reschedule history.
func (r *SlotRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE recurring_slots SET status = $2 WHERE id = $1 AND status = $3`,
		id, models.SlotStatusInactive, models.SlotStatusActive)
	if err != nil {
		return false, fmt.Errorf("deactivate slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate slot rows: %w", err)
	}
	return affected > 0, nil
}
