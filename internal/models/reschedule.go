package models

import "time"

// RescheduleStatus is the approval state of a reschedule request.
type RescheduleStatus string

// Reschedule statuses.
const (
	RescheduleStatusPending  RescheduleStatus = "pending"
	RescheduleStatusApproved RescheduleStatus = "approved"
	RescheduleStatusRejected RescheduleStatus = "rejected"
)

// Open reports whether the request still holds its origin occurrence.
func (s RescheduleStatus) Open() bool {
	return s == RescheduleStatusPending || s == RescheduleStatusApproved
}

// CanTransition reports whether from → to is a legal move. Approved and rejected only
// reach each other through pending.
func (s RescheduleStatus) CanTransition(to RescheduleStatus) bool {
	switch s {
	case RescheduleStatusPending:
		return to == RescheduleStatusApproved || to == RescheduleStatusRejected
	case RescheduleStatusApproved, RescheduleStatusRejected:
		return to == RescheduleStatusPending
	default:
		return false
	}
}

// Deletable reports whether a request in this state may be hard deleted.
func (s RescheduleStatus) Deletable() bool {
	return s == RescheduleStatusPending || s == RescheduleStatusRejected
}

// RescheduleRequest moves one occurrence of a fixed class to another date and slot.
type RescheduleRequest struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	OriginSlotID  string           `db:"origin_slot_id" json:"origin_slot_id"`
	OriginDate    Date             `db:"origin_date" json:"origin_date"`
	DestSlotID    string           `db:"dest_slot_id" json:"dest_slot_id"`
	DestDate      Date             `db:"dest_date" json:"dest_date"`
	DestStart     ClockTime        `db:"dest_start" json:"dest_start"`
	DestEnd       ClockTime        `db:"dest_end" json:"dest_end"`
	Status        RescheduleStatus `db:"status" json:"status"`
	IsCreditUsage bool             `db:"is_credit_usage" json:"is_credit_usage"`
	AbsenceID     *string          `db:"absence_id" json:"absence_id,omitempty"`
	CreatedBy     string           `db:"created_by" json:"created_by"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}
