package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

const rescheduleColumns = `id, student_id, origin_slot_id, origin_date, dest_slot_id, dest_date, dest_start, dest_end,
        status, is_credit_usage, absence_id, created_by, created_at, updated_at`

// RescheduleRepository persists reschedule requests.
type RescheduleRepository struct {
	db *sqlx.DB
}

// NewRescheduleRepository constructs the repository.
func NewRescheduleRepository(db *sqlx.DB) *RescheduleRepository {
	return &RescheduleRepository{db: db}
}

// FindByID returns a request. Inside a transaction the row is locked.
func (r *RescheduleRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RescheduleRequest, error) {
	query := `SELECT ` + rescheduleColumns + ` FROM reschedule_requests WHERE id = $1`
	if exec != nil {
		query += ` FOR UPDATE`
	}
	var req models.RescheduleRequest
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// FindOpenByOrigin returns the pending or approved request holding an origin occurrence, or nil.
func (r *RescheduleRepository) FindOpenByOrigin(ctx context.Context, exec sqlx.ExtContext, studentID, originSlotID string, originDate models.Date, excludeID string) (*models.RescheduleRequest, error) {
	query := `SELECT ` + rescheduleColumns + ` FROM reschedule_requests
        WHERE student_id = $1 AND origin_slot_id = $2 AND origin_date = $3 AND status IN ($4, $5)`
	args := []interface{}{studentID, originSlotID, originDate, models.RescheduleStatusPending, models.RescheduleStatusApproved}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var req models.RescheduleRequest
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open reschedule: %w", err)
	}
	return &req, nil
}

// ListApprovedInWindow returns approved requests that either land in [from, to] (any student) or, when
// studentID is set, originate from that student's classes in [from, to].
func (r *RescheduleRepository) ListApprovedInWindow(ctx context.Context, exec sqlx.ExtContext, studentID string, from, to models.Date) ([]models.RescheduleRequest, error) {
	query := `SELECT ` + rescheduleColumns + ` FROM reschedule_requests
        WHERE status = $1 AND ((dest_date BETWEEN $2 AND $3) OR (student_id = $4 AND origin_date BETWEEN $2 AND $3))`
	var requests []models.RescheduleRequest
	if err := sqlx.SelectContext(ctx, executor(r.db, exec), &requests, query, models.RescheduleStatusApproved, from, to, studentID); err != nil {
		return nil, fmt.Errorf("list approved reschedules: %w", err)
	}
	return requests, nil
}

// LatestForAbsence returns the most recent request repaying an absence, or nil.
func (r *RescheduleRepository) LatestForAbsence(ctx context.Context, absence models.Absence) (*models.RescheduleRequest, error) {
	query := `SELECT ` + rescheduleColumns + ` FROM reschedule_requests
        WHERE absence_id = $1 OR (student_id = $2 AND origin_slot_id = $3 AND origin_date = $4)
        ORDER BY created_at DESC LIMIT 1`
	var req models.RescheduleRequest
	if err := r.db.GetContext(ctx, &req, query, absence.ID, absence.StudentID, absence.SlotID, absence.Date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find absence reschedule: %w", err)
	}
	return &req, nil
}

// Create inserts a new request.
func (r *RescheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	const query = `INSERT INTO reschedule_requests (id, student_id, origin_slot_id, origin_date, dest_slot_id, dest_date,
        dest_start, dest_end, status, is_credit_usage, absence_id, created_by, created_at, updated_at)
        VALUES (:id, :student_id, :origin_slot_id, :origin_date, :dest_slot_id, :dest_date, :dest_start, :dest_end,
        :status, :is_credit_usage, :absence_id, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, req); err != nil {
		return fmt.Errorf("create reschedule: %w", err)
	}
	return nil
}

// UpdateStatus moves a request to a new status.
func (r *RescheduleRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RescheduleStatus) error {
	const query = `UPDATE reschedule_requests SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := executor(r.db, exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update reschedule status: %w", err)
	}
	return nil
}

// Delete hard deletes a request.
func (r *RescheduleRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := executor(r.db, exec).ExecContext(ctx, `DELETE FROM reschedule_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete reschedule: %w", err)
	}
	return nil
}
