package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

// EnrollmentRepository handles persistence of slot enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, slot_id, active, supersedes_id, created_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListActiveByStudent returns the student's active enrollments on active slots, with slot timing.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.slot_id, e.active, e.supersedes_id, e.created_at,
        s.weekday, s.start_time, s.end_time
        FROM enrollments e
        JOIN recurring_slots s ON s.id = e.slot_id
        WHERE e.student_id = $1 AND e.active = TRUE AND s.status = $2`
	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, executor(r.db, exec), &enrollments, query, studentID, models.SlotStatusActive); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// CountSeatHolders returns, per slot, how many active enrollments belong to students that occupy a seat.
func (r *EnrollmentRepository) CountSeatHolders(ctx context.Context, exec sqlx.ExtContext) (map[string]int, error) {
	const query = `SELECT e.slot_id, COUNT(*) AS total
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        WHERE e.active = TRUE AND st.status NOT IN ($1, $2, $3)
        GROUP BY e.slot_id`
	var rows []struct {
		SlotID string `db:"slot_id"`
		Total  int    `db:"total"`
	}
	if err := sqlx.SelectContext(ctx, executor(r.db, exec), &rows, query,
		models.StudentStatusFrozen, models.StudentStatusLongAbsent, models.StudentStatusWaitlist); err != nil {
		return nil, fmt.Errorf("count seat holders: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.SlotID] = row.Total
	}
	return counts, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	enrollment.Active = true
	const query = `INSERT INTO enrollments (id, student_id, slot_id, active, supersedes_id, created_at)
        VALUES (:id, :student_id, :slot_id, :active, :supersedes_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Deactivate marks an enrollment inactive, keeping the row for history.
func (r *EnrollmentRepository) Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := executor(r.db, exec).ExecContext(ctx, `UPDATE enrollments SET active = FALSE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	return nil
}
