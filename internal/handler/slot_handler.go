package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/pkg/calendar"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
	"github.com/noah-isme/studio-makeup-api/pkg/response"
)

type slotCatalog interface {
	ActiveSlots(ctx context.Context, weekday *int) ([]models.RecurringSlot, error)
	Get(ctx context.Context, id string) (*models.RecurringSlot, error)
	Deactivate(ctx context.Context, actor models.Actor, id string) error
}

type occupancyReader interface {
	Occupancy(ctx context.Context, slot models.RecurringSlot, date models.Date) (models.SlotOccupancy, error)
}

// SlotHandler exposes the recurring slot catalog.
type SlotHandler struct {
	slots     slotCatalog
	occupancy occupancyReader
	clock     calendar.Clock
}

// NewSlotHandler constructs the handler.
func NewSlotHandler(slots slotCatalog, occupancy occupancyReader, clock calendar.Clock) *SlotHandler {
	return &SlotHandler{slots: slots, occupancy: occupancy, clock: clock}
}

// List godoc
// @Summary List active slots
// @Tags Slots
// @Produce json
// @Param weekday query int false "Weekday (0 = Sunday)"
// @Success 200 {object} response.Envelope
// @Router /slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	var weekday *int
	if raw := c.Query("weekday"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "weekday must be an integer"))
			return
		}
		weekday = &parsed
	}
	slots, err := h.slots.ActiveSlots(c.Request.Context(), weekday)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Occupancy godoc
// @Summary Seat picture of a slot on a date
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/occupancy [get]
func (h *SlotHandler) Occupancy(c *gin.Context) {
	date := h.clock.Today()
	if raw := c.Query("date"); raw != "" {
		parsed, err := parseDateParam(raw, "date")
		if err != nil {
			response.Error(c, err)
			return
		}
		date = parsed
	}
	slot, err := h.slots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	occupancy, err := h.occupancy.Occupancy(c.Request.Context(), *slot, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occupancy, nil, map[string]interface{}{"date": date})
}

// Deactivate godoc
// @Summary Deactivate a slot
// @Tags Slots
// @Param id path string true "Slot ID"
// @Success 204
// @Router /slots/{id} [delete]
func (h *SlotHandler) Deactivate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.slots.Deactivate(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
