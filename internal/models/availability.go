package models

// BlockReason explains why a date is not usable for a student.
type BlockReason string

// Block reasons, in evaluation priority order.
const (
	BlockNone          BlockReason = ""
	BlockHoliday       BlockReason = "holiday"
	BlockOwnFixedClass BlockReason = "ownFixedClass"
	BlockAlreadyBooked BlockReason = "alreadyBooked"
	BlockNoSlots       BlockReason = "noSlots"
)

// SlotOccupancy is the seat picture of one slot on one date.
type SlotOccupancy struct {
	Slot      RecurringSlot `json:"slot"`
	Headcount int           `json:"headcount"`
	FreeSeats int           `json:"free_seats"`
	Unlimited bool          `json:"unlimited"`
}

// HasFreeSeat reports whether one more student fits.
func (o SlotOccupancy) HasFreeSeat() bool {
	return o.Unlimited || o.FreeSeats > 0
}

// DayAvailability is the eligibility verdict for one student and one date.
type DayAvailability struct {
	Date   Date            `json:"date"`
	Usable bool            `json:"usable"`
	Reason BlockReason     `json:"reason,omitempty"`
	Slots  []SlotOccupancy `json:"slots,omitempty"`
}

// BookableSlot is one (date, slot) pair with at least one free seat.
type BookableSlot struct {
	Date      Date          `json:"date"`
	Slot      RecurringSlot `json:"slot"`
	FreeSeats int           `json:"free_seats"`
	Unlimited bool          `json:"unlimited"`
}

// Deadline is the last bookable day of a repayment or credit window.
type Deadline struct {
	DeadlineDate  Date `json:"deadline_date"`
	DaysRemaining int  `json:"days_remaining"`
}
