package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

// HolidayRepository persists studio closure dates.
type HolidayRepository struct {
	db *sqlx.DB
}

// NewHolidayRepository constructs the repository.
func NewHolidayRepository(db *sqlx.DB) *HolidayRepository {
	return &HolidayRepository{db: db}
}

// ListInRange returns holidays within [from, to].
func (r *HolidayRepository) ListInRange(ctx context.Context, exec sqlx.ExtContext, from, to models.Date) ([]models.Holiday, error) {
	const query = `SELECT date, description FROM holidays WHERE date BETWEEN $1 AND $2 ORDER BY date`
	var holidays []models.Holiday
	if err := sqlx.SelectContext(ctx, executor(r.db, exec), &holidays, query, from, to); err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	return holidays, nil
}

// Upsert stores a holiday, replacing the description of an existing date.
func (r *HolidayRepository) Upsert(ctx context.Context, holiday models.Holiday) error {
	const query = `INSERT INTO holidays (date, description) VALUES ($1, $2)
        ON CONFLICT (date) DO UPDATE SET description = EXCLUDED.description`
	if _, err := r.db.ExecContext(ctx, query, holiday.Date, holiday.Description); err != nil {
		return fmt.Errorf("upsert holiday: %w", err)
	}
	return nil
}

// Delete removes a holiday. It reports whether a row existed.
func (r *HolidayRepository) Delete(ctx context.Context, date models.Date) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM holidays WHERE date = $1`, date)
	if err != nil {
		return false, fmt.Errorf("delete holiday: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete holiday rows: %w", err)
	}
	return affected > 0, nil
}
