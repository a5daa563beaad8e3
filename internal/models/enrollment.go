package models

import "time"

// StudentStatus captures whether a student physically occupies a seat.
type StudentStatus string

// Student statuses. Only active students occupy seats in their fixed slots.
const (
	StudentStatusActive     StudentStatus = "active"
	StudentStatusFrozen     StudentStatus = "frozen"
	StudentStatusLongAbsent StudentStatus = "long_absent"
	StudentStatusWaitlist   StudentStatus = "waitlist"
)

// OccupiesSeat reports whether a student in this state counts towards headcount.
func (s StudentStatus) OccupiesSeat() bool {
	switch s {
	case StudentStatusFrozen, StudentStatusLongAbsent, StudentStatusWaitlist:
		return false
	default:
		return true
	}
}

// Enrollment is a student's standing membership in a recurring slot.
type Enrollment struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	SlotID       string    `db:"slot_id" json:"slot_id"`
	Active       bool      `db:"active" json:"active"`
	SupersedesID *string   `db:"supersedes_id" json:"supersedes_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentDetail enriches Enrollment with its slot's weekday and time range.
type EnrollmentDetail struct {
	Enrollment
	Weekday   int       `db:"weekday" json:"weekday"`
	StartTime ClockTime `db:"start_time" json:"start_time"`
	EndTime   ClockTime `db:"end_time" json:"end_time"`
}

// Overlaps applies the enrollment overlap rule against a candidate slot.
func (e EnrollmentDetail) Overlaps(slot RecurringSlot) bool {
	return e.Weekday == slot.Weekday && e.StartTime < slot.EndTime && slot.StartTime < e.EndTime
}
