package service

import (
	"github.com/noah-isme/studio-makeup-api/internal/models"
)

// OccupancyPolicy turns a headcount into a seat verdict.
type OccupancyPolicy struct {
	// ZeroCapacityUnlimited treats a modality capacity of 0 as "no limit" (legacy data).
	ZeroCapacityUnlimited bool
}

// Occupancy computes the seat picture of slot given its current headcount.
func (p OccupancyPolicy) Occupancy(slot models.RecurringSlot, headcount int) models.SlotOccupancy {
	occ := models.SlotOccupancy{Slot: slot, Headcount: headcount}
	if slot.Capacity <= 0 && p.ZeroCapacityUnlimited {
		occ.Unlimited = true
		return occ
	}
	occ.FreeSeats = slot.Capacity - headcount
	if occ.FreeSeats < 0 {
		occ.FreeSeats = 0
	}
	return occ
}

// SnapshotInput carries the read models needed to judge a window of dates.
type SnapshotInput struct {
	StudentID string
	Policy    OccupancyPolicy

	Slots              []models.RecurringSlot
	Holidays           []models.Date
	SeatHolders        map[string]int
	ApprovedRequests   []models.RescheduleRequest
	Usages             []models.CreditUsage
	StudentEnrollments []models.EnrollmentDetail
}

// AvailabilitySnapshot is an immutable, in-memory view used to evaluate eligibility and occupancy for
// many dates without further I/O. It is safe for concurrent reads.
type AvailabilitySnapshot struct {
	studentID string
	policy    OccupancyPolicy

	holidays       map[string]struct{}
	slotsByWeekday map[int][]models.RecurringSlot
	seatHolders    map[string]int
	bookedSeats    map[string]int
	ownSlots       map[int][]string
	displaced      map[string]struct{}
	committed      map[string]struct{}
}

func occurrenceKey(slotID string, date models.Date) string {
	return slotID + "@" + date.String()
}

// NewAvailabilitySnapshot indexes the input. Only approved requests are expected in ApprovedRequests;
// anything else is ignored.
func NewAvailabilitySnapshot(in SnapshotInput) *AvailabilitySnapshot {
	s := &AvailabilitySnapshot{
		studentID:      in.StudentID,
		policy:         in.Policy,
		holidays:       make(map[string]struct{}, len(in.Holidays)),
		slotsByWeekday: make(map[int][]models.RecurringSlot),
		seatHolders:    make(map[string]int, len(in.SeatHolders)),
		bookedSeats:    make(map[string]int),
		ownSlots:       make(map[int][]string),
		displaced:      make(map[string]struct{}),
		committed:      make(map[string]struct{}),
	}
	for _, h := range in.Holidays {
		s.holidays[h.String()] = struct{}{}
	}
	for _, slot := range in.Slots {
		if !slot.Active() {
			continue
		}
		s.slotsByWeekday[slot.Weekday] = append(s.slotsByWeekday[slot.Weekday], slot)
	}
	for slotID, n := range in.SeatHolders {
		s.seatHolders[slotID] = n
	}
	for _, req := range in.ApprovedRequests {
		if req.Status != models.RescheduleStatusApproved {
			continue
		}
		s.bookedSeats[occurrenceKey(req.DestSlotID, req.DestDate)]++
		if in.StudentID != "" && req.StudentID == in.StudentID {
			s.committed[req.DestDate.String()] = struct{}{}
			s.displaced[occurrenceKey(req.OriginSlotID, req.OriginDate)] = struct{}{}
		}
	}
	for _, usage := range in.Usages {
		s.bookedSeats[occurrenceKey(usage.DestSlotID, usage.DestDate)]++
		if in.StudentID != "" && usage.StudentID == in.StudentID {
			s.committed[usage.DestDate.String()] = struct{}{}
		}
	}
	for _, e := range in.StudentEnrollments {
		if !e.Active || (in.StudentID != "" && e.StudentID != in.StudentID) {
			continue
		}
		s.ownSlots[e.Weekday] = append(s.ownSlots[e.Weekday], e.SlotID)
	}
	return s
}

// SlotsOn returns the active slots offered on the weekday of date.
func (s *AvailabilitySnapshot) SlotsOn(date models.Date) []models.RecurringSlot {
	return s.slotsByWeekday[date.Weekday()]
}

// Headcount sums seat-holding enrollments, approved reschedules and credit usages landing on (slot, date).
func (s *AvailabilitySnapshot) Headcount(slotID string, date models.Date) int {
	return s.seatHolders[slotID] + s.bookedSeats[occurrenceKey(slotID, date)]
}

// Occupancy returns the seat picture of slot on date.
func (s *AvailabilitySnapshot) Occupancy(slot models.RecurringSlot, date models.Date) models.SlotOccupancy {
	return s.policy.Occupancy(slot, s.Headcount(slot.ID, date))
}

// HasFreeSeat reports whether one more student fits in slot on date.
func (s *AvailabilitySnapshot) HasFreeSeat(slot models.RecurringSlot, date models.Date) bool {
	return s.Occupancy(slot, date).HasFreeSeat()
}

// BlockReason evaluates the blocking conditions in priority order; the first match wins.
func (s *AvailabilitySnapshot) BlockReason(date models.Date) models.BlockReason {
	if _, ok := s.holidays[date.String()]; ok {
		return models.BlockHoliday
	}
	for _, slotID := range s.ownSlots[date.Weekday()] {
		if _, moved := s.displaced[occurrenceKey(slotID, date)]; !moved {
			return models.BlockOwnFixedClass
		}
	}
	if _, ok := s.committed[date.String()]; ok {
		return models.BlockAlreadyBooked
	}
	if len(s.slotsByWeekday[date.Weekday()]) == 0 {
		return models.BlockNoSlots
	}
	return models.BlockNone
}

// Usable reports whether date counts towards a deadline window.
func (s *AvailabilitySnapshot) Usable(date models.Date) bool {
	return s.BlockReason(date) == models.BlockNone
}

// Evaluate returns the full verdict for date, including every offered slot's occupancy when usable.
func (s *AvailabilitySnapshot) Evaluate(date models.Date) models.DayAvailability {
	day := models.DayAvailability{Date: date, Reason: s.BlockReason(date)}
	if day.Reason != models.BlockNone {
		return day
	}
	day.Usable = true
	slots := s.SlotsOn(date)
	day.Slots = make([]models.SlotOccupancy, 0, len(slots))
	for _, slot := range slots {
		day.Slots = append(day.Slots, s.Occupancy(slot, date))
	}
	return day
}

// Bookable returns the slots on date that have a free seat, or nil when date is blocked.
func (s *AvailabilitySnapshot) Bookable(date models.Date) []models.BookableSlot {
	day := s.Evaluate(date)
	if !day.Usable {
		return nil
	}
	var out []models.BookableSlot
	for _, occ := range day.Slots {
		if !occ.HasFreeSeat() {
			continue
		}
		out = append(out, models.BookableSlot{Date: date, Slot: occ.Slot, FreeSeats: occ.FreeSeats, Unlimited: occ.Unlimited})
	}
	return out
}
