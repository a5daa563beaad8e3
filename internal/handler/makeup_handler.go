package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/internal/service"
	"github.com/noah-isme/studio-makeup-api/pkg/calendar"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
	"github.com/noah-isme/studio-makeup-api/pkg/response"
)

// defaultCalendarSpan is used when the client omits `to`.
const defaultCalendarSpan = 30

type availabilityReader interface {
	Calendar(ctx context.Context, studentID string, from, to models.Date) ([]models.DayAvailability, error)
	ListBookableSlots(ctx context.Context, studentID string, from, to models.Date) ([]models.BookableSlot, error)
}

type absenceReader interface {
	Get(ctx context.Context, actor models.Actor, id string, today models.Date) (*service.AbsenceView, error)
}

type creditReader interface {
	Get(ctx context.Context, actor models.Actor, id string) (*models.MakeupCredit, error)
}

type deadlineReader interface {
	ForAbsence(ctx context.Context, absenceID string, today models.Date) (*models.Deadline, error)
	ForCredit(ctx context.Context, creditID string, today models.Date) (*models.Deadline, error)
}

// MakeupHandler serves the read side of the engine: calendars, bookable slots and deadlines.
type MakeupHandler struct {
	availability availabilityReader
	absences     absenceReader
	credits      creditReader
	deadlines    deadlineReader
	clock        calendar.Clock
}

// NewMakeupHandler constructs the handler.
func NewMakeupHandler(availability availabilityReader, absences absenceReader, credits creditReader, deadlines deadlineReader, clock calendar.Clock) *MakeupHandler {
	return &MakeupHandler{availability: availability, absences: absences, credits: credits, deadlines: deadlines, clock: clock}
}

// Calendar godoc
// @Summary Per-day eligibility grid for a student
// @Tags Makeup
// @Produce json
// @Param student_id query string true "Student ID"
// @Param from query string false "First date (YYYY-MM-DD), defaults to today"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /makeup/calendar [get]
func (h *MakeupHandler) Calendar(c *gin.Context) {
	studentID, from, to, ok := h.rangeRequest(c)
	if !ok {
		return
	}
	days, err := h.availability.Calendar(c.Request.Context(), studentID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, days, nil)
}

// BookableSlots godoc
// @Summary List (date, slot) pairs with free seats
// @Tags Makeup
// @Produce json
// @Param student_id query string true "Student ID"
// @Param from query string false "First date (YYYY-MM-DD), defaults to today"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /makeup/bookable-slots [get]
func (h *MakeupHandler) BookableSlots(c *gin.Context) {
	studentID, from, to, ok := h.rangeRequest(c)
	if !ok {
		return
	}
	slots, err := h.availability.ListBookableSlots(c.Request.Context(), studentID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil, map[string]interface{}{"from": from, "to": to})
}

// Absence godoc
// @Summary Get an absence with its repayment status
// @Tags Makeup
// @Produce json
// @Param id path string true "Absence ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /makeup/absences/{id} [get]
func (h *MakeupHandler) Absence(c *gin.Context) {
	view, ok := h.loadAbsence(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// AbsenceDeadline godoc
// @Summary Repayment deadline of an absence
// @Tags Makeup
// @Produce json
// @Param id path string true "Absence ID"
// @Success 200 {object} response.Envelope
// @Failure 500 {object} response.Envelope "DEADLINE_UNREACHABLE"
// @Router /makeup/absences/{id}/deadline [get]
func (h *MakeupHandler) AbsenceDeadline(c *gin.Context) {
	view, ok := h.loadAbsence(c)
	if !ok {
		return
	}
	if view.Deadline != nil {
		response.JSON(c, http.StatusOK, view.Deadline, nil)
		return
	}
	deadline, err := h.deadlines.ForAbsence(c.Request.Context(), view.ID, h.clock.Today())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, deadline, nil)
}

// CreditDeadline godoc
// @Summary Usage deadline of a makeup credit
// @Tags Makeup
// @Produce json
// @Param id path string true "Credit ID"
// @Success 200 {object} response.Envelope
// @Router /makeup/credits/{id}/deadline [get]
func (h *MakeupHandler) CreditDeadline(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id := c.Param("id")
	if _, err := h.credits.Get(c.Request.Context(), actor, id); err != nil {
		response.Error(c, err)
		return
	}
	deadline, err := h.deadlines.ForCredit(c.Request.Context(), id, h.clock.Today())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, deadline, nil)
}

func (h *MakeupHandler) rangeRequest(c *gin.Context) (string, models.Date, models.Date, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", models.Date{}, models.Date{}, false
	}
	studentID := c.Query("student_id")
	if studentID == "" && !actor.IsStaff() {
		studentID = actor.UserID
	}
	if studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id is required"))
		return "", models.Date{}, models.Date{}, false
	}
	if err := service.CanActFor(actor, studentID); err != nil {
		response.Error(c, err)
		return "", models.Date{}, models.Date{}, false
	}
	from, to, err := dateRangeQuery(c, h.clock.Today(), defaultCalendarSpan)
	if err != nil {
		response.Error(c, err)
		return "", models.Date{}, models.Date{}, false
	}
	return studentID, from, to, true
}

func (h *MakeupHandler) loadAbsence(c *gin.Context) (*service.AbsenceView, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	view, err := h.absences.Get(c.Request.Context(), actor, c.Param("id"), h.clock.Today())
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return view, true
}
