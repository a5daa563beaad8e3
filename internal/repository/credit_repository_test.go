package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

func TestCreditRepositoryIncrementConsumed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	query := regexp.QuoteMeta(`UPDATE makeup_credits SET quantity_consumed = quantity_consumed + 1`)
	mock.ExpectExec(query).WithArgs("c-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("c-1").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.IncrementConsumed(context.Background(), nil, "c-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IncrementConsumed(context.Background(), nil, "c-1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryLockByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "modality_id", "quantity_granted", "quantity_consumed", "validity_date", "granted_at"}).
		AddRow("c-1", "s-1", nil, 3, 1, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), time.Now())
	mock.ExpectQuery(`FROM makeup_credits WHERE id = \$1 FOR UPDATE`).WithArgs("c-1").WillReturnRows(rows)

	credit, err := repo.LockByID(context.Background(), nil, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 2, credit.Remaining())
	assert.Nil(t, credit.ModalityID)
	assert.Equal(t, "2024-06-30", credit.ValidityDate.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	mock.ExpectQuery(`FROM makeup_credits WHERE id = \$1`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreditRepositoryListCounterMismatches(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	rows := sqlmock.NewRows([]string{"credit_id", "student_id", "quantity_granted", "quantity_consumed", "usage_count"}).
		AddRow("c-1", "s-1", 3, 2, 1).
		AddRow("c-2", "s-2", 1, 2, 2)
	mock.ExpectQuery(regexp.QuoteMeta(`HAVING COUNT(u.id) <> c.quantity_consumed`)).WillReturnRows(rows)

	report, err := repo.ListCounterMismatches(context.Background())
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, 1, report[0].UsageCount)
	assert.Equal(t, 2, report[1].QuantityConsumed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryCreateUsage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO credit_usages`)).
		WithArgs(sqlmock.AnyArg(), "c-1", "slot-3", "2024-03-06", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	usage := &models.CreditUsage{CreditID: "c-1", DestSlotID: "slot-3", DestDate: models.MustParseDate("2024-03-06")}
	require.NoError(t, repo.CreateUsage(context.Background(), nil, usage))
	assert.NotEmpty(t, usage.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryDeleteWithUsages(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM credit_usages WHERE credit_id = $1`)).WithArgs("c-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM makeup_credits WHERE id = $1`)).WithArgs("c-1").WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteWithUsages(context.Background(), nil, "c-1")
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
