package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

// AbsenceRepository reads and updates absence records.
type AbsenceRepository struct {
	db *sqlx.DB
}

// NewAbsenceRepository constructs the repository.
func NewAbsenceRepository(db *sqlx.DB) *AbsenceRepository {
	return &AbsenceRepository{db: db}
}

// FindByID returns an absence by id.
func (r *AbsenceRepository) FindByID(ctx context.Context, id string) (*models.Absence, error) {
	var absence models.Absence
	if err := r.db.GetContext(ctx, &absence, `SELECT id, student_id, slot_id, date, status FROM absences WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &absence, nil
}

// ListOpenSince returns absences that may still expire, dated on or after since.
func (r *AbsenceRepository) ListOpenSince(ctx context.Context, since models.Date) ([]models.Absence, error) {
	const query = `SELECT id, student_id, slot_id, date, status FROM absences
        WHERE date >= $1 AND status IN ($2, $3) ORDER BY date`
	var absences []models.Absence
	if err := r.db.SelectContext(ctx, &absences, query, since, models.AbsenceStatusRepayable, models.AbsenceStatusRejectedRepayment); err != nil {
		return nil, fmt.Errorf("list open absences: %w", err)
	}
	return absences, nil
}

// UpdateStatus persists a derived status. Expired rows are never changed again.
func (r *AbsenceRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AbsenceStatus) error {
	const query = `UPDATE absences SET status = $2 WHERE id = $1 AND status <> $3`
	if _, err := executor(r.db, exec).ExecContext(ctx, query, id, status, models.AbsenceStatusExpired); err != nil {
		return fmt.Errorf("update absence status: %w", err)
	}
	return nil
}
