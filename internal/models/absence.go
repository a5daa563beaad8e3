package models

// AbsenceStatus is the repayment state of a missed class.
type AbsenceStatus string

// Absence statuses. Expired is final.
const (
	AbsenceStatusRepayable         AbsenceStatus = "repayable"
	AbsenceStatusPendingRepayment  AbsenceStatus = "pending_repayment"
	AbsenceStatusRepaid            AbsenceStatus = "repaid"
	AbsenceStatusRejectedRepayment AbsenceStatus = "rejected_repayment"
	AbsenceStatusExpired           AbsenceStatus = "expired"
)

// Absence records a scheduled class the student did not attend.
type Absence struct {
	ID        string        `db:"id" json:"id"`
	StudentID string        `db:"student_id" json:"student_id"`
	SlotID    string        `db:"slot_id" json:"slot_id"`
	Date      Date          `db:"date" json:"date"`
	Status    AbsenceStatus `db:"status" json:"status"`
}
