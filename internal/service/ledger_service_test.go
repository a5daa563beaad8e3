package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

type ledgerRepoStub struct {
	credits    map[string]models.MakeupCredit
	usages     map[string]int
	mismatches []models.LedgerDiscrepancy
	orphans    []models.LedgerDiscrepancy
	err        error
}

func (s *ledgerRepoStub) FindByID(ctx context.Context, id string) (*models.MakeupCredit, error) {
	c, ok := s.credits[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *ledgerRepoStub) CountUsages(ctx context.Context, creditID string) (int, error) {
	return s.usages[creditID], nil
}

func (s *ledgerRepoStub) ListCounterMismatches(ctx context.Context) ([]models.LedgerDiscrepancy, error) {
	return s.mismatches, s.err
}

func (s *ledgerRepoStub) ListOrphanUsages(ctx context.Context) ([]models.LedgerDiscrepancy, error) {
	return s.orphans, nil
}

func TestReconcileClassifiesFindings(t *testing.T) {
	repo := &ledgerRepoStub{
		mismatches: []models.LedgerDiscrepancy{
			{CreditID: "c-1", QuantityGranted: 3, QuantityConsumed: 2, UsageCount: 1},
			{CreditID: "c-2", QuantityGranted: 1, QuantityConsumed: 2, UsageCount: 2},
			{CreditID: "c-3", QuantityGranted: 1, QuantityConsumed: -1, UsageCount: 0},
		},
		orphans: []models.LedgerDiscrepancy{{CreditID: "c-9", UsageCount: 1}},
	}
	metrics := NewMetricsService()
	svc := NewLedgerService(repo, metrics, nil)

	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, report, 4)
	assert.Equal(t, models.DiscrepancyCounterDrift, report[0].Kind)
	assert.Equal(t, models.DiscrepancyOverConsumed, report[1].Kind)
	assert.Equal(t, models.DiscrepancyNegativeConsumed, report[2].Kind)
	assert.Equal(t, models.DiscrepancyOrphanUsage, report[3].Kind)

	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.ledgerGauge))
	assert.Equal(t, int64(4), metrics.Snapshot().LedgerDiscrepancies)
}

func TestReconcileCleanLedger(t *testing.T) {
	metrics := NewMetricsService()
	metrics.SetLedgerDiscrepancies(3)
	svc := NewLedgerService(&ledgerRepoStub{}, metrics, nil)

	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ledgerGauge))
}

func TestReconcileRepositoryFailure(t *testing.T) {
	svc := NewLedgerService(&ledgerRepoStub{err: errors.New("boom")}, nil, nil)

	_, err := svc.Reconcile(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestCheckCredit(t *testing.T) {
	repo := &ledgerRepoStub{
		credits: map[string]models.MakeupCredit{
			"ok":    {ID: "ok", StudentID: "s-1", QuantityGranted: 2, QuantityConsumed: 1},
			"drift": {ID: "drift", StudentID: "s-1", QuantityGranted: 2, QuantityConsumed: 2},
		},
		usages: map[string]int{"ok": 1, "drift": 1},
	}
	svc := NewLedgerService(repo, nil, nil)

	require.NoError(t, svc.CheckCredit(context.Background(), "ok"))

	err := svc.CheckCredit(context.Background(), "drift")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrLedgerIntegrity))
	assert.Equal(t, string(models.DiscrepancyCounterDrift), appErrors.ReasonOf(err))

	err = svc.CheckCredit(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDiscrepancyReport(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	report := DiscrepancyReport([]models.LedgerDiscrepancy{
		{CreditID: "c-1", StudentID: "s-1", QuantityGranted: 3, QuantityConsumed: 2, UsageCount: 1, Kind: models.DiscrepancyCounterDrift},
	}, at)

	require.Len(t, report.Rows, 1)
	assert.Len(t, report.Rows[0], len(report.Columns))
	assert.Equal(t, []string{"c-1", "s-1", "counter_drift", "3", "2", "1"}, report.Rows[0])
	assert.Equal(t, at, report.GeneratedAt)

	empty := DiscrepancyReport(nil, at)
	assert.Empty(t, empty.Rows)
}
