package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-makeup-api/internal/dto"
	"github.com/noah-isme/studio-makeup-api/internal/models"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
)

func TestSlotServiceActiveSlots(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1, 3, 5)
	svc := NewSlotService(memSlots{db}, nil, nil)

	all, err := svc.ActiveSlots(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	wednesday := 3
	filtered, err := svc.ActiveSlots(context.Background(), &wednesday)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "slot-3", filtered[0].ID)

	invalid := 7
	_, err = svc.ActiveSlots(context.Background(), &invalid)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceDeactivate(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(10, 1)
	cache := newRecordingCache()
	svc := NewSlotService(memSlots{db}, cache, nil)

	require.Error(t, svc.Deactivate(context.Background(), studentActor("student-1"), "slot-1"))

	require.NoError(t, svc.Deactivate(context.Background(), staffActor, "slot-1"))
	assert.Equal(t, models.SlotStatusInactive, db.slots["slot-1"].Status)
	assert.Equal(t, 1, cache.invalidates)

	require.NoError(t, svc.Deactivate(context.Background(), staffActor, "slot-1"))
	assert.Equal(t, 1, cache.invalidates)

	err := svc.Deactivate(context.Background(), staffActor, "slot-9")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestHolidayServiceLifecycle(t *testing.T) {
	db := newMemDB()
	cache := newRecordingCache()
	svc := NewHolidayService(memHolidays{db}, cache, nil, nil)

	_, err := svc.Add(context.Background(), studentActor("student-1"), dto.HolidayRequest{Date: day("2024-03-08")})
	require.Error(t, err)

	holiday, err := svc.Add(context.Background(), staffActor, dto.HolidayRequest{Date: day("2024-03-08"), Description: "Carnival"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-08", holiday.Date.String())
	assert.Equal(t, 1, cache.invalidates)

	listed, err := svc.List(context.Background(), day("2024-03-01"), day("2024-03-31"))
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "Carnival", listed[0].Description)

	require.NoError(t, svc.Remove(context.Background(), staffActor, day("2024-03-08")))
	assert.Equal(t, 2, cache.invalidates)

	err = svc.Remove(context.Background(), staffActor, day("2024-03-08"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.List(context.Background(), day("2024-03-31"), day("2024-03-01"))
	require.Error(t, err)
}

func TestAvailabilityCalendar(t *testing.T) {
	db := newMemDB()
	db.addWeekdaySlots(2, 1, 3)
	db.addHoliday("2024-03-13")
	db.enroll("student-1", "slot-1")
	db.enroll("student-2", "slot-3")
	db.enroll("student-3", "slot-3")
	eng := newEngine(db)

	days, err := eng.availability.Calendar(context.Background(), "student-1", day("2024-03-04"), day("2024-03-13"))
	require.NoError(t, err)
	require.Len(t, days, 10)

	byDate := map[string]models.DayAvailability{}
	for _, d := range days {
		byDate[d.Date.String()] = d
	}
	assert.Equal(t, models.BlockOwnFixedClass, byDate["2024-03-04"].Reason)
	assert.Equal(t, models.BlockNoSlots, byDate["2024-03-05"].Reason)
	assert.True(t, byDate["2024-03-06"].Usable)
	assert.Equal(t, models.BlockHoliday, byDate["2024-03-13"].Reason)

	bookable, err := eng.availability.ListBookableSlots(context.Background(), "student-1", day("2024-03-04"), day("2024-03-13"))
	require.NoError(t, err)
	assert.Empty(t, bookable, "wednesday is full and monday is the student's own class")
}

func TestAvailabilityRangeChecks(t *testing.T) {
	eng := newEngine(newMemDB())

	_, err := eng.availability.Calendar(context.Background(), "student-1", day("2024-03-10"), day("2024-03-01"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = eng.availability.Calendar(context.Background(), "student-1", day("2024-01-01"), day("2024-12-31"))
	require.Error(t, err)

	_, err = eng.availability.ListBookableSlots(context.Background(), "", day("2024-03-01"), day("2024-03-02"))
	require.Error(t, err)
}

func TestAvailabilityOccupancy(t *testing.T) {
	db := newMemDB()
	slot := db.addSlot("slot-3", 3, "08:00", "09:00", 3)
	db.enroll("student-1", "slot-3")
	db.enroll("student-2", "slot-3")
	db.setStudentStatus("student-2", models.StudentStatusLongAbsent)
	eng := newEngine(db)

	occ, err := eng.availability.Occupancy(context.Background(), slot, day("2024-03-06"))
	require.NoError(t, err)
	assert.Equal(t, 1, occ.Headcount)
	assert.Equal(t, 2, occ.FreeSeats)

	free, err := eng.availability.HasFreeSeat(context.Background(), slot, day("2024-03-06"))
	require.NoError(t, err)
	assert.True(t, free)
}
