package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

const creditColumns = `id, student_id, modality_id, quantity_granted, quantity_consumed, validity_date, granted_at`

// CreditRepository persists makeup credits and their usage ledger.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository constructs the repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// FindByID returns a credit without locking it.
func (r *CreditRepository) FindByID(ctx context.Context, id string) (*models.MakeupCredit, error) {
	var credit models.MakeupCredit
	if err := r.db.GetContext(ctx, &credit, `SELECT `+creditColumns+` FROM makeup_credits WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &credit, nil
}

// LockByID reads a credit with a row lock held until the transaction ends.
func (r *CreditRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.MakeupCredit, error) {
	var credit models.MakeupCredit
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &credit, `SELECT `+creditColumns+` FROM makeup_credits WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &credit, nil
}

// Create grants a new credit.
func (r *CreditRepository) Create(ctx context.Context, credit *models.MakeupCredit) error {
	if credit.ID == "" {
		credit.ID = uuid.NewString()
	}
	if credit.GrantedAt.IsZero() {
		credit.GrantedAt = time.Now().UTC()
	}
	const query = `INSERT INTO makeup_credits (id, student_id, modality_id, quantity_granted, quantity_consumed, validity_date, granted_at)
        VALUES (:id, :student_id, :modality_id, :quantity_granted, :quantity_consumed, :validity_date, :granted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, credit); err != nil {
		return fmt.Errorf("create credit: %w", err)
	}
	return nil
}

// CreateUsage appends a ledger row.
func (r *CreditRepository) CreateUsage(ctx context.Context, exec sqlx.ExtContext, usage *models.CreditUsage) error {
	if usage.ID == "" {
		usage.ID = uuid.NewString()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO credit_usages (id, credit_id, dest_slot_id, dest_date, created_at)
        VALUES (:id, :credit_id, :dest_slot_id, :dest_date, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, usage); err != nil {
		return fmt.Errorf("create credit usage: %w", err)
	}
	return nil
}

// IncrementConsumed bumps the counter unless it already reached the granted quantity. It reports
// whether a row was updated.
func (r *CreditRepository) IncrementConsumed(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	const query = `UPDATE makeup_credits SET quantity_consumed = quantity_consumed + 1
        WHERE id = $1 AND quantity_consumed < quantity_granted`
	res, err := executor(r.db, exec).ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("increment credit consumption: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment credit consumption rows: %w", err)
	}
	return affected == 1, nil
}

// ListUsagesInRange returns usages landing in [from, to] with the owning student.
func (r *CreditRepository) ListUsagesInRange(ctx context.Context, exec sqlx.ExtContext, from, to models.Date) ([]models.CreditUsage, error) {
	const query = `SELECT u.id, u.credit_id, c.student_id, u.dest_slot_id, u.dest_date, u.created_at
        FROM credit_usages u
        JOIN makeup_credits c ON c.id = u.credit_id
        WHERE u.dest_date BETWEEN $1 AND $2`
	var usages []models.CreditUsage
	if err := sqlx.SelectContext(ctx, executor(r.db, exec), &usages, query, from, to); err != nil {
		return nil, fmt.Errorf("list credit usages: %w", err)
	}
	return usages, nil
}

// CountUsages returns the number of ledger rows referencing a credit.
func (r *CreditRepository) CountUsages(ctx context.Context, creditID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM credit_usages WHERE credit_id = $1`, creditID); err != nil {
		return 0, fmt.Errorf("count credit usages: %w", err)
	}
	return total, nil
}

// ListCounterMismatches returns credits whose counter disagrees with the ledger or violates its bounds.
func (r *CreditRepository) ListCounterMismatches(ctx context.Context) ([]models.LedgerDiscrepancy, error) {
	const query = `SELECT c.id AS credit_id, c.student_id, c.quantity_granted, c.quantity_consumed, COUNT(u.id) AS usage_count
        FROM makeup_credits c
        LEFT JOIN credit_usages u ON u.credit_id = c.id
        GROUP BY c.id, c.student_id, c.quantity_granted, c.quantity_consumed
        HAVING COUNT(u.id) <> c.quantity_consumed OR c.quantity_consumed > c.quantity_granted OR c.quantity_consumed < 0
        ORDER BY c.id`
	var rows []models.LedgerDiscrepancy
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list ledger mismatches: %w", err)
	}
	return rows, nil
}

// ListOrphanUsages returns usage counts grouped by credit ids that no longer exist.
func (r *CreditRepository) ListOrphanUsages(ctx context.Context) ([]models.LedgerDiscrepancy, error) {
	const query = `SELECT u.credit_id, COUNT(*) AS usage_count
        FROM credit_usages u
        LEFT JOIN makeup_credits c ON c.id = u.credit_id
        WHERE c.id IS NULL
        GROUP BY u.credit_id
        ORDER BY u.credit_id`
	var rows []models.LedgerDiscrepancy
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list orphan usages: %w", err)
	}
	return rows, nil
}

// DeleteWithUsages removes a credit and its ledger rows.
func (r *CreditRepository) DeleteWithUsages(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	ex := executor(r.db, exec)
	if _, err := ex.ExecContext(ctx, `DELETE FROM credit_usages WHERE credit_id = $1`, id); err != nil {
		return false, fmt.Errorf("delete credit usages: %w", err)
	}
	res, err := ex.ExecContext(ctx, `DELETE FROM makeup_credits WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete credit rows: %w", err)
	}
	return affected > 0, nil
}
