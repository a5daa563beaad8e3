package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-makeup-api/internal/dto"
	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

func rescheduleRequest(student, originSlot, originDate, destSlot, destDate string) dto.CreateRescheduleRequest {
	return dto.CreateRescheduleRequest{
		StudentID:    student,
		OriginSlotID: originSlot,
		OriginDate:   day(originDate),
		DestSlotID:   destSlot,
		DestDate:     day(destDate),
	}
}

func TestRequestRescheduleRejectsOwnFixedClassDay(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1, 3)
	db.enroll("student-1", "slot-1")
	db.enroll("student-1", "slot-3")
	eng := newEngine(db)

	_, err := eng.booking.RequestReschedule(context.Background(), studentActor("student-1"),
		rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"), day("2024-03-01"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidDestination))
	assert.Equal(t, string(models.BlockOwnFixedClass), appErrors.ReasonOf(err))
	assert.Empty(t, db.requests)
}

func TestRequestRescheduleStudentCreatesPending(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1, 3)
	db.enroll("student-1", "slot-1")
	eng := newEngine(db)

	req, err := eng.booking.RequestReschedule(context.Background(), studentActor("student-1"),
		rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"), day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, models.RescheduleStatusPending, req.Status)
	assert.Equal(t, "08:00", req.DestStart.String())
	assert.Equal(t, "student-1", req.CreatedBy)
	assert.Zero(t, eng.cache.invalidates)

	require.Len(t, eng.tx.locks, 1)
	assert.ElementsMatch(t, []string{
		"student:student-1:2024-03-06",
		"slot:slot-3:2024-03-06",
		"origin:slot-1:2024-03-04:student-1",
	}, eng.tx.locks[0])
}

func TestRequestRescheduleStaffCreatesApproved(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1, 3)
	db.enroll("student-1", "slot-1")
	eng := newEngine(db)

	req, err := eng.booking.RequestReschedule(context.Background(), staffActor,
		rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"), day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, models.RescheduleStatusApproved, req.Status)
	assert.Equal(t, 1, eng.cache.invalidates)
	assert.Equal(t, []string{deadlineCachePattern}, eng.cache.patterns)
}

func TestRequestRescheduleFailures(t *testing.T) {
	tests := []struct {
		name   string
		actor  models.Actor
		req    dto.CreateRescheduleRequest
		setup  func(db *memDB)
		code   string
		reason models.BlockReason
	}{
		{
			name:  "other student",
			actor: studentActor("student-2"),
			req:   rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"),
			code:  appErrors.ErrForbidden.Code,
		},
		{
			name:  "missing actor",
			actor: models.Actor{},
			req:   rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"),
			code:  appErrors.ErrUnauthorized.Code,
		},
		{
			name:  "missing dest slot id",
			actor: staffActor,
			req:   rescheduleRequest("student-1", "slot-1", "2024-03-04", "", "2024-03-06"),
			code:  appErrors.ErrValidation.Code,
		},
		{
			name:   "destination not after origin",
			actor:  staffActor,
			req:    rescheduleRequest("student-1", "slot-3", "2024-03-06", "slot-1", "2024-03-04"),
			code:   appErrors.ErrInvalidDestination.Code,
			reason: reasonNotAfterOrigin,
		},
		{
			name:   "destination today",
			actor:  staffActor,
			req:    rescheduleRequest("student-1", "slot-1", "2024-02-26", "slot-1", "2024-03-01"),
			code:   appErrors.ErrInvalidDestination.Code,
			reason: reasonNotInFuture,
		},
		{
			name:   "slot not offered on weekday",
			actor:  staffActor,
			req:    rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-07"),
			code:   appErrors.ErrInvalidDestination.Code,
			reason: reasonSlotNotOffered,
		},
		{
			name:   "holiday",
			actor:  staffActor,
			req:    rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"),
			setup:  func(db *memDB) { db.addHoliday("2024-03-06") },
			code:   appErrors.ErrInvalidDestination.Code,
			reason: models.BlockHoliday,
		},
		{
			name:  "unknown destination slot",
			actor: staffActor,
			req:   rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-9", "2024-03-06"),
			code:  appErrors.ErrNotFound.Code,
		},
		{
			name:  "origin slot does not run on origin date",
			actor: staffActor,
			req:   rescheduleRequest("student-1", "slot-1", "2024-03-05", "slot-3", "2024-03-06"),
			code:  appErrors.ErrValidation.Code,
		},
		{
			name:  "student not enrolled in origin slot",
			actor: staffActor,
			req:   rescheduleRequest("student-1", "slot-5", "2024-03-01", "slot-3", "2024-03-06"),
			code:  appErrors.ErrValidation.Code,
		},
		{
			name:  "unknown origin slot",
			actor: staffActor,
			req:   rescheduleRequest("student-1", "slot-9", "2024-03-04", "slot-3", "2024-03-06"),
			code:  appErrors.ErrNotFound.Code,
		},
		{
			name:   "inactive destination slot",
			actor:  staffActor,
			req:    rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"),
			setup:  func(db *memDB) { _, _ = memSlots{db}.Deactivate(context.Background(), "slot-3") },
			code:   appErrors.ErrInvalidDestination.Code,
			reason: reasonSlotInactive,
		},
		{
			name:  "slot full",
			actor: staffActor,
			req:   rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"),
			setup: func(db *memDB) {
				db.addSlot("slot-3", 3, "08:00", "09:00", 1)
				db.enroll("student-2", "slot-3")
			},
			code: appErrors.ErrSlotFull.Code,
		},
		{
			name:  "duplicate open request",
			actor: staffActor,
			req:   rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"),
			setup: func(db *memDB) {
				db.addRequest(models.RescheduleRequest{
					StudentID: "student-1", OriginSlotID: "slot-1", OriginDate: day("2024-03-04"),
					DestSlotID: "slot-3", DestDate: day("2024-03-13"), Status: models.RescheduleStatusPending,
				})
			},
			code: appErrors.ErrDuplicateRequest.Code,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := newMemDB()
			db.addWeekdaySlots(10, 1, 3, 5)
			db.enroll("student-1", "slot-1")
			if tc.setup != nil {
				tc.setup(db)
			}
			eng := newEngine(db)

			_, err := eng.booking.RequestReschedule(context.Background(), tc.actor, tc.req, day("2024-03-01"))
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, string(tc.reason), appErr.Reason)
		})
	}
}

func TestRequestRescheduleRejectedOriginCanBeRequestedAgain(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1, 3)
	db.enroll("student-1", "slot-1")
	db.addRequest(models.RescheduleRequest{
		StudentID: "student-1", OriginSlotID: "slot-1", OriginDate: day("2024-03-04"),
		DestSlotID: "slot-3", DestDate: day("2024-03-06"), Status: models.RescheduleStatusRejected,
	})
	eng := newEngine(db)

	_, err := eng.booking.RequestReschedule(context.Background(), studentActor("student-1"),
		rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"), day("2024-03-01"))
	require.NoError(t, err)
}

func TestRequestRescheduleRespectsRepaymentDeadline(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1, 2, 3, 4, 5)
	db.addHoliday("2024-03-08")
	absence := db.addAbsence(models.Absence{StudentID: "student-1", SlotID: "slot-1", Date: day("2024-03-04")})
	eng := newEngine(db)

	late := rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-5", "2024-03-15")
	late.AbsenceID = &absence.ID
	_, err := eng.booking.RequestReschedule(context.Background(), staffActor, late, day("2024-03-04"))
	require.Error(t, err)
	assert.Equal(t, string(reasonPastDeadline), appErrors.ReasonOf(err))

	onTime := rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-4", "2024-03-14")
	onTime.AbsenceID = &absence.ID
	req, err := eng.booking.RequestReschedule(context.Background(), staffActor, onTime, day("2024-03-04"))
	require.NoError(t, err)
	assert.True(t, req.IsCreditUsage)
}

func TestRequestRescheduleAbsenceMustMatchOrigin(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1, 3)
	absence := db.addAbsence(models.Absence{StudentID: "student-1", SlotID: "slot-1", Date: day("2024-02-26")})
	eng := newEngine(db)

	req := rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06")
	req.AbsenceID = &absence.ID
	_, err := eng.booking.RequestReschedule(context.Background(), staffActor, req, day("2024-03-01"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRequestRescheduleNeedsRealOriginClass(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1, 3)
	eng := newEngine(db)

	// No enrollment at all, and a Monday slot dated on a Tuesday.
	_, err := eng.booking.RequestReschedule(context.Background(), staffActor,
		rescheduleRequest("student-1", "slot-1", "2024-03-05", "slot-3", "2024-03-06"), day("2024-03-01"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = eng.booking.RequestReschedule(context.Background(), staffActor,
		rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"), day("2024-03-01"))
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "not enrolled")
	assert.Empty(t, db.requests)

	db.enroll("student-1", "slot-1")
	req, err := eng.booking.RequestReschedule(context.Background(), staffActor,
		rescheduleRequest("student-1", "slot-1", "2024-03-04", "slot-3", "2024-03-06"), day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, models.RescheduleStatusApproved, req.Status)
}

func TestUseCreditConsumesOneUnit(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1, 3)
	credit := db.addCredit(models.MakeupCredit{StudentID: "student-1", QuantityGranted: 2, ValidityDate: day("2024-06-30")})
	eng := newEngine(db)

	usage, err := eng.booking.UseCredit(context.Background(), studentActor("student-1"), credit.ID,
		dto.UseCreditRequest{DestSlotID: "slot-3", DestDate: day("2024-03-06")}, day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, credit.ID, usage.CreditID)
	assert.Equal(t, 1, db.credits[credit.ID].QuantityConsumed)
	assert.Len(t, db.usagesFor(credit.ID), 1)
	assert.Equal(t, 1, eng.cache.invalidates)

	_, err = eng.booking.UseCredit(context.Background(), studentActor("student-1"), credit.ID,
		dto.UseCreditRequest{DestSlotID: "slot-3", DestDate: day("2024-03-06")}, day("2024-03-01"))
	require.Error(t, err)
	assert.Equal(t, string(models.BlockAlreadyBooked), appErrors.ReasonOf(err))
}

func TestUseCreditFailures(t *testing.T) {
	pilates, yoga := "pilates", "yoga"
	tests := []struct {
		name   string
		actor  models.Actor
		credit models.MakeupCredit
		req    dto.UseCreditRequest
		code   string
		reason models.BlockReason
	}{
		{
			name:   "exhausted",
			actor:  staffActor,
			credit: models.MakeupCredit{StudentID: "student-1", QuantityGranted: 1, QuantityConsumed: 1, ValidityDate: day("2024-06-30")},
			req:    dto.UseCreditRequest{DestSlotID: "slot-3", DestDate: day("2024-03-06")},
			code:   appErrors.ErrCreditExhausted.Code,
		},
		{
			name:   "destination after validity",
			actor:  staffActor,
			credit: models.MakeupCredit{StudentID: "student-1", QuantityGranted: 1, ValidityDate: day("2024-03-05")},
			req:    dto.UseCreditRequest{DestSlotID: "slot-3", DestDate: day("2024-03-06")},
			code:   appErrors.ErrCreditExpired.Code,
		},
		{
			name:   "modality mismatch",
			actor:  staffActor,
			credit: models.MakeupCredit{StudentID: "student-1", QuantityGranted: 1, ModalityID: &yoga, ValidityDate: day("2024-06-30")},
			req:    dto.UseCreditRequest{DestSlotID: "slot-3", DestDate: day("2024-03-06")},
			code:   appErrors.ErrInvalidDestination.Code,
			reason: reasonModalityMismatch,
		},
		{
			name:   "other student",
			actor:  studentActor("student-2"),
			credit: models.MakeupCredit{StudentID: "student-1", QuantityGranted: 1, ModalityID: &pilates, ValidityDate: day("2024-06-30")},
			req:    dto.UseCreditRequest{DestSlotID: "slot-3", DestDate: day("2024-03-06")},
			code:   appErrors.ErrForbidden.Code,
		},
		{
			name:   "past destination",
			actor:  staffActor,
			credit: models.MakeupCredit{StudentID: "student-1", QuantityGranted: 1, ValidityDate: day("2024-06-30")},
			req:    dto.UseCreditRequest{DestSlotID: "slot-3", DestDate: day("2024-02-28")},
			code:   appErrors.ErrInvalidDestination.Code,
			reason: reasonNotInFuture,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := newMemDB()
			db.addWeekdaySlots(10, 1, 3)
			credit := db.addCredit(tc.credit)
			eng := newEngine(db)

			_, err := eng.booking.UseCredit(context.Background(), tc.actor, credit.ID, tc.req, day("2024-03-01"))
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, string(tc.reason), appErr.Reason)
			assert.Empty(t, db.usagesFor(credit.ID))
			assert.Equal(t, tc.credit.QuantityConsumed, db.credits[credit.ID].QuantityConsumed)
		})
	}
}

func TestUseCreditUnknownCredit(t *testing.T) {
	eng := newEngine(newMemDB())

	_, err := eng.booking.UseCredit(context.Background(), staffActor, "missing",
		dto.UseCreditRequest{DestSlotID: "slot-3", DestDate: day("2024-03-06")}, day("2024-03-01"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUseCreditConcurrentLastUnit(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1, 3)
	credit := db.addCredit(models.MakeupCredit{StudentID: "student-1", QuantityGranted: 1, ValidityDate: day("2024-06-30")})
	eng := newEngine(db)

	dates := []string{"2024-03-04", "2024-03-06"}
	slots := []string{"slot-1", "slot-3"}
	errs := make([]error, len(dates))
	var wg sync.WaitGroup
	for i := range dates {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.booking.UseCredit(context.Background(), studentActor("student-1"), credit.ID,
				dto.UseCreditRequest{DestSlotID: slots[i], DestDate: day(dates[i])}, day("2024-03-01"))
		}(i)
	}
	wg.Wait()

	succeeded, exhausted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, appErrors.ErrCreditExhausted):
			exhausted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, exhausted)
	assert.Len(t, db.usagesFor(credit.ID), 1)
	assert.Equal(t, 1, db.credits[credit.ID].QuantityConsumed)
}

func TestValidateDestinationCountsApprovedMoves(t *testing.T) {
	db := newMemDB()
	db.addSlot("slot-3", 3, "08:00", "09:00", 5)
	db.addWeekdaySlots(10, 1)
	for _, student := range []string{"a", "b", "c", "d"} {
		db.enroll(student, "slot-3")
	}
	db.addRequest(models.RescheduleRequest{
		StudentID: "e", OriginSlotID: "slot-1", OriginDate: day("2024-03-04"),
		DestSlotID: "slot-3", DestDate: day("2024-03-06"), Status: models.RescheduleStatusApproved,
	})
	eng := newEngine(db)

	_, err := eng.booking.ValidateDestination(context.Background(), nil, "student-1", "slot-3", day("2024-03-06"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSlotFull))

	db.setStudentStatus("a", models.StudentStatusFrozen)
	slot, err := eng.booking.ValidateDestination(context.Background(), nil, "student-1", "slot-3", day("2024-03-06"))
	require.NoError(t, err)
	assert.Equal(t, "slot-3", slot.ID)
}
