package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

func TestEnrollmentRepositoryCountSeatHolders(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"slot_id", "total"}).
		AddRow("slot-1", 4).
		AddRow("slot-3", 2)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE e.active = TRUE AND st.status NOT IN ($1, $2, $3)`)).
		WithArgs("frozen", "long_absent", "waitlist").
		WillReturnRows(rows)

	counts, err := repo.CountSeatHolders(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"slot-1": 4, "slot-3": 2}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListActiveByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "slot_id", "active", "supersedes_id", "created_at", "weekday", "start_time", "end_time"}).
		AddRow("enr-1", "s-1", "slot-3", true, nil, time.Now(), 3, "08:00:00", "09:00:00")
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE e.student_id = $1 AND e.active = TRUE AND s.status = $2`)).
		WithArgs("s-1", "active").
		WillReturnRows(rows)

	enrollments, err := repo.ListActiveByStudent(context.Background(), nil, "s-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, 3, enrollments[0].Weekday)
	assert.Equal(t, models.ClockTime(8*60), enrollments[0].StartTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryListActiveByWeekday(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	rows := sqlmock.NewRows([]string{"id", "weekday", "start_time", "end_time", "teacher_id", "status", "modality_id", "modality_name", "capacity", "duration_minutes"}).
		AddRow("slot-3", 3, "08:00:00", "09:00:00", "t-1", "active", "pilates", "Pilates", 5, 60)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE s.status = $1 AND s.weekday = $2 ORDER BY s.weekday, s.start_time`)).
		WithArgs("active", 3).
		WillReturnRows(rows)

	wednesday := 3
	slots, err := repo.ListActive(context.Background(), nil, &wednesday)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 5, slots[0].Capacity)
	assert.True(t, slots[0].Active())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAbsenceRepositoryUpdateStatusKeepsExpiredFinal(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAbsenceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE absences SET status = $2 WHERE id = $1 AND status <> $3`)).
		WithArgs("abs-1", "expired", "expired").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), nil, "abs-1", models.AbsenceStatusExpired))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHolidayRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewHolidayRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM holidays WHERE date = $1`)).
		WithArgs("2024-03-08").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), models.MustParseDate("2024-03-08"))
	require.NoError(t, err)
	assert.False(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
