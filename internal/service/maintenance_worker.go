package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/pkg/calendar"
	"github.com/noah-isme/studio-makeup-api/pkg/jobs"
)

// Background job types handled by MaintenanceWorker.
const (
	JobAbsenceExpiry = "absence_expiry"
	JobLedgerCheck   = "ledger_check"
)

type absenceSweeper interface {
	SweepExpired(ctx context.Context, today models.Date) (int, error)
}

type ledgerReconciler interface {
	Reconcile(ctx context.Context) ([]models.LedgerDiscrepancy, error)
}

// MaintenanceWorker bridges periodic queue jobs to the absence expiry sweep and ledger reconciliation.
type MaintenanceWorker struct {
	absences absenceSweeper
	ledger   ledgerReconciler
	clock    calendar.Clock
	logger   *zap.Logger
}

// NewMaintenanceWorker constructs a worker.
func NewMaintenanceWorker(absences absenceSweeper, ledger ledgerReconciler, clock calendar.Clock, logger *zap.Logger) *MaintenanceWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceWorker{absences: absences, ledger: ledger, clock: clock, logger: logger}
}

// Handle processes a queue job.
func (w *MaintenanceWorker) Handle(ctx context.Context, job jobs.Job) error {
	start := time.Now()
	switch job.Type {
	case JobAbsenceExpiry:
		today := w.clock.Today()
		expired, err := w.absences.SweepExpired(ctx, today)
		if err != nil {
			return err
		}
		w.logger.Info("absence expiry sweep finished",
			zap.String("today", today.String()),
			zap.Int("expired", expired),
			zap.Duration("took", time.Since(start)))
		return nil
	case JobLedgerCheck:
		report, err := w.ledger.Reconcile(ctx)
		if err != nil {
			return err
		}
		w.logger.Info("ledger check finished", zap.Int("discrepancies", len(report)), zap.Duration("took", time.Since(start)))
		return nil
	default:
		w.logger.Warn("unknown maintenance job", zap.String("type", job.Type), zap.String("job_id", job.ID))
		return fmt.Errorf("unknown maintenance job type %q", job.Type)
	}
}
