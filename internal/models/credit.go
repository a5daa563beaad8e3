package models

import "time"

// MakeupCredit is a granted allowance of extra classes. QuantityConsumed is a cache of the
// usage ledger; the CreditUsage rows are the source of truth.
type MakeupCredit struct {
	ID               string    `db:"id" json:"id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	ModalityID       *string   `db:"modality_id" json:"modality_id,omitempty"`
	QuantityGranted  int       `db:"quantity_granted" json:"quantity_granted"`
	QuantityConsumed int       `db:"quantity_consumed" json:"quantity_consumed"`
	ValidityDate     Date      `db:"validity_date" json:"validity_date"`
	GrantedAt        time.Time `db:"granted_at" json:"granted_at"`
}

// Remaining returns how many uses are left according to the counter.
func (c MakeupCredit) Remaining() int {
	return c.QuantityGranted - c.QuantityConsumed
}

// AllowsModality reports whether the credit can be spent on a slot of the given modality.
func (c MakeupCredit) AllowsModality(modalityID string) bool {
	return c.ModalityID == nil || *c.ModalityID == modalityID
}

// CreditUsage is one append-only ledger row consuming a credit.
type CreditUsage struct {
	ID         string    `db:"id" json:"id"`
	CreditID   string    `db:"credit_id" json:"credit_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	DestSlotID string    `db:"dest_slot_id" json:"dest_slot_id"`
	DestDate   Date      `db:"dest_date" json:"dest_date"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// LedgerDiscrepancyKind classifies a reconciliation finding.
type LedgerDiscrepancyKind string

// Discrepancy kinds reported by the ledger reconciliation.
const (
	DiscrepancyCounterDrift     LedgerDiscrepancyKind = "counter_drift"
	DiscrepancyOverConsumed     LedgerDiscrepancyKind = "over_consumed"
	DiscrepancyNegativeConsumed LedgerDiscrepancyKind = "negative_consumed"
	DiscrepancyOrphanUsage      LedgerDiscrepancyKind = "orphan_usage"
)

// LedgerDiscrepancy reports a credit whose counter disagrees with its ledger.
type LedgerDiscrepancy struct {
	CreditID         string                `db:"credit_id" json:"credit_id"`
	StudentID        string                `db:"student_id" json:"student_id,omitempty"`
	QuantityGranted  int                   `db:"quantity_granted" json:"quantity_granted"`
	QuantityConsumed int                   `db:"quantity_consumed" json:"quantity_consumed"`
	UsageCount       int                   `db:"usage_count" json:"usage_count"`
	Kind             LedgerDiscrepancyKind `db:"-" json:"kind"`
}
