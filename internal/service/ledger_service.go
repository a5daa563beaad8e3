package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
	"github.com/noah-isme/studio-makeup-api/pkg/export"
)

type ledgerReader interface {
	FindByID(ctx context.Context, id string) (*models.MakeupCredit, error)
	CountUsages(ctx context.Context, creditID string) (int, error)
	ListCounterMismatches(ctx context.Context) ([]models.LedgerDiscrepancy, error)
	ListOrphanUsages(ctx context.Context) ([]models.LedgerDiscrepancy, error)
}

// LedgerService compares credit counters with their usage ledger. The ledger is the source of truth;
// findings are reported, never corrected.
type LedgerService struct {
	repo    ledgerReader
	metrics *MetricsService
	logger  *zap.Logger
}

// NewLedgerService constructs the service.
func NewLedgerService(repo ledgerReader, metrics *MetricsService, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{repo: repo, metrics: metrics, logger: logger}
}

// Reconcile lists every credit whose counter disagrees with its ledger plus usages of deleted credits.
func (s *LedgerService) Reconcile(ctx context.Context) ([]models.LedgerDiscrepancy, error) {
	mismatches, err := s.repo.ListCounterMismatches(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile credit counters")
	}
	orphans, err := s.repo.ListOrphanUsages(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list orphan usages")
	}

	report := make([]models.LedgerDiscrepancy, 0, len(mismatches)+len(orphans))
	for _, row := range mismatches {
		row.Kind = classifyDiscrepancy(row)
		report = append(report, row)
	}
	for _, row := range orphans {
		row.Kind = models.DiscrepancyOrphanUsage
		report = append(report, row)
	}

	s.metrics.SetLedgerDiscrepancies(len(report))
	for _, row := range report {
		s.logger.Error("credit ledger discrepancy",
			zap.String("credit_id", row.CreditID),
			zap.String("student_id", row.StudentID),
			zap.String("kind", string(row.Kind)),
			zap.Int("quantity_granted", row.QuantityGranted),
			zap.Int("quantity_consumed", row.QuantityConsumed),
			zap.Int("usage_count", row.UsageCount))
	}
	return report, nil
}

// CheckCredit verifies one credit and returns a LEDGER_INTEGRITY error when it is inconsistent.
func (s *LedgerService) CheckCredit(ctx context.Context, creditID string) error {
	credit, err := s.repo.FindByID(ctx, creditID)
	if err != nil {
		return lookupError(err, "credit not found", "failed to load credit")
	}
	usages, err := s.repo.CountUsages(ctx, creditID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count credit usages")
	}
	row := models.LedgerDiscrepancy{
		CreditID:         credit.ID,
		StudentID:        credit.StudentID,
		QuantityGranted:  credit.QuantityGranted,
		QuantityConsumed: credit.QuantityConsumed,
		UsageCount:       usages,
	}
	if row.UsageCount == row.QuantityConsumed && row.QuantityConsumed >= 0 && row.QuantityConsumed <= row.QuantityGranted {
		return nil
	}
	kind := classifyDiscrepancy(row)
	s.logger.Error("credit ledger discrepancy", zap.String("credit_id", creditID), zap.String("kind", string(kind)))
	return appErrors.WithReason(appErrors.Clone(appErrors.ErrLedgerIntegrity,
		fmt.Sprintf("credit %s: consumed %d, granted %d, ledger rows %d", credit.ID, credit.QuantityConsumed, credit.QuantityGranted, usages)),
		string(kind))
}

func classifyDiscrepancy(row models.LedgerDiscrepancy) models.LedgerDiscrepancyKind {
	switch {
	case row.QuantityConsumed < 0:
		return models.DiscrepancyNegativeConsumed
	case row.QuantityConsumed > row.QuantityGranted:
		return models.DiscrepancyOverConsumed
	default:
		return models.DiscrepancyCounterDrift
	}
}

// DiscrepancyReport lays a reconciliation result out as an exportable table.
func DiscrepancyReport(rows []models.LedgerDiscrepancy, generatedAt time.Time) export.Report {
	report := export.Report{
		Title:       "Credit ledger discrepancies",
		Columns:     []string{"credit_id", "student_id", "kind", "quantity_granted", "quantity_consumed", "usage_count"},
		Rows:        make([][]string, 0, len(rows)),
		GeneratedAt: generatedAt,
	}
	for _, row := range rows {
		report.Rows = append(report.Rows, []string{
			row.CreditID,
			row.StudentID,
			string(row.Kind),
			strconv.Itoa(row.QuantityGranted),
			strconv.Itoa(row.QuantityConsumed),
			strconv.Itoa(row.UsageCount),
		})
	}
	return report
}
