package dto

import "github.com/noah-isme/studio-makeup-api/internal/models"

// CreateRescheduleRequest moves one occurrence of a fixed class. AbsenceID links the move to the
// absence it repays.
type CreateRescheduleRequest struct {
	StudentID    string      `json:"student_id" validate:"required"`
	OriginSlotID string      `json:"origin_slot_id" validate:"required"`
	OriginDate   models.Date `json:"origin_date"`
	DestSlotID   string      `json:"dest_slot_id" validate:"required"`
	DestDate     models.Date `json:"dest_date"`
	AbsenceID    *string     `json:"absence_id,omitempty" validate:"omitempty,min=1"`
}

// UseCreditRequest books an extra class against a makeup credit.
type UseCreditRequest struct {
	DestSlotID string      `json:"dest_slot_id" validate:"required"`
	DestDate   models.Date `json:"dest_date"`
}

// GrantCreditRequest creates a makeup credit for a student.
type GrantCreditRequest struct {
	StudentID    string      `json:"student_id" validate:"required"`
	ModalityID   *string     `json:"modality_id,omitempty" validate:"omitempty,min=1"`
	Quantity     int         `json:"quantity" validate:"required,min=1,max=100"`
	ValidityDate models.Date `json:"validity_date"`
}

// HolidayRequest marks a studio closure date.
type HolidayRequest struct {
	Date        models.Date `json:"date"`
	Description string      `json:"description" validate:"max=200"`
}

// EnrollRequest enrolls a student in a recurring slot, optionally replacing a prior enrollment.
type EnrollRequest struct {
	StudentID    string  `json:"student_id" validate:"required"`
	SlotID       string  `json:"slot_id" validate:"required"`
	SupersedesID *string `json:"supersedes_id,omitempty" validate:"omitempty,min=1"`
}

// AvailabilityQuery selects the student and inclusive date range for calendar lookups.
type AvailabilityQuery struct {
	StudentID string      `form:"student_id" validate:"required"`
	From      models.Date `form:"-"`
	To        models.Date `form:"-"`
}
