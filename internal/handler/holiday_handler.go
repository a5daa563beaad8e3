package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-makeup-api/internal/dto"
	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/pkg/calendar"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
	"github.com/noah-isme/studio-makeup-api/pkg/response"
)

const defaultHolidaySpan = 365

type holidayManager interface {
	List(ctx context.Context, from, to models.Date) ([]models.Holiday, error)
	Add(ctx context.Context, actor models.Actor, req dto.HolidayRequest) (*models.Holiday, error)
	Remove(ctx context.Context, actor models.Actor, date models.Date) error
}

// HolidayHandler administers studio closures.
type HolidayHandler struct {
	holidays holidayManager
	clock    calendar.Clock
}

// NewHolidayHandler constructs the handler.
func NewHolidayHandler(holidays holidayManager, clock calendar.Clock) *HolidayHandler {
	return &HolidayHandler{holidays: holidays, clock: clock}
}

// List godoc
// @Summary List holidays
// @Tags Holidays
// @Produce json
// @Param from query string false "First date (YYYY-MM-DD)"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /holidays [get]
func (h *HolidayHandler) List(c *gin.Context) {
	from, to, err := dateRangeQuery(c, h.clock.Today(), defaultHolidaySpan)
	if err != nil {
		response.Error(c, err)
		return
	}
	holidays, err := h.holidays.List(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, holidays, nil)
}

// Add godoc
// @Summary Mark a date as closed
// @Tags Holidays
// @Accept json
// @Produce json
// @Param payload body dto.HolidayRequest true "Holiday payload"
// @Success 201 {object} response.Envelope
// @Router /holidays [post]
func (h *HolidayHandler) Add(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.HolidayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	holiday, err := h.holidays.Add(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, holiday)
}

// Remove godoc
// @Summary Reopen a closed date
// @Tags Holidays
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 204
// @Router /holidays/{date} [delete]
func (h *HolidayHandler) Remove(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	date, err := parseDateParam(c.Param("date"), "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.holidays.Remove(c.Request.Context(), actor, date); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
