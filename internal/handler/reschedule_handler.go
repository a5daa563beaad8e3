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

type rescheduleBooker interface {
	RequestReschedule(ctx context.Context, actor models.Actor, req dto.CreateRescheduleRequest, today models.Date) (*models.RescheduleRequest, error)
}

type rescheduleLifecycle interface {
	Get(ctx context.Context, actor models.Actor, id string) (*models.RescheduleRequest, error)
	Approve(ctx context.Context, actor models.Actor, id string, today models.Date) (*models.RescheduleRequest, error)
	Reject(ctx context.Context, actor models.Actor, id string) (*models.RescheduleRequest, error)
	Revert(ctx context.Context, actor models.Actor, id string) (*models.RescheduleRequest, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
}

// RescheduleHandler manages reschedule requests.
type RescheduleHandler struct {
	booking   rescheduleBooker
	lifecycle rescheduleLifecycle
	clock     calendar.Clock
}

// NewRescheduleHandler constructs the handler.
func NewRescheduleHandler(booking rescheduleBooker, lifecycle rescheduleLifecycle, clock calendar.Clock) *RescheduleHandler {
	return &RescheduleHandler{booking: booking, lifecycle: lifecycle, clock: clock}
}

// Create godoc
// @Summary Request to move one occurrence of a fixed class
// @Tags Reschedules
// @Accept json
// @Produce json
// @Param payload body dto.CreateRescheduleRequest true "Reschedule payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "SLOT_FULL or DUPLICATE_REQUEST"
// @Failure 422 {object} response.Envelope "INVALID_DESTINATION"
// @Router /reschedules [post]
func (h *RescheduleHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateRescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	created, err := h.booking.RequestReschedule(c.Request.Context(), actor, req, h.clock.Today())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Get godoc
// @Summary Get a reschedule request
// @Tags Reschedules
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reschedules/{id} [get]
func (h *RescheduleHandler) Get(c *gin.Context) {
	h.respond(c, func(actor models.Actor, id string) (*models.RescheduleRequest, error) {
		return h.lifecycle.Get(c.Request.Context(), actor, id)
	})
}

// Approve godoc
// @Summary Approve a pending request
// @Tags Reschedules
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reschedules/{id}/approve [post]
func (h *RescheduleHandler) Approve(c *gin.Context) {
	h.respond(c, func(actor models.Actor, id string) (*models.RescheduleRequest, error) {
		return h.lifecycle.Approve(c.Request.Context(), actor, id, h.clock.Today())
	})
}

// Reject godoc
// @Summary Reject a pending request
// @Tags Reschedules
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /reschedules/{id}/reject [post]
func (h *RescheduleHandler) Reject(c *gin.Context) {
	h.respond(c, func(actor models.Actor, id string) (*models.RescheduleRequest, error) {
		return h.lifecycle.Reject(c.Request.Context(), actor, id)
	})
}

// Revert godoc
// @Summary Return an approved or rejected request to pending
// @Tags Reschedules
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /reschedules/{id}/revert [post]
func (h *RescheduleHandler) Revert(c *gin.Context) {
	h.respond(c, func(actor models.Actor, id string) (*models.RescheduleRequest, error) {
		return h.lifecycle.Revert(c.Request.Context(), actor, id)
	})
}

// Delete godoc
// @Summary Delete a pending or rejected request
// @Tags Reschedules
// @Param id path string true "Request ID"
// @Success 204
// @Failure 409 {object} response.Envelope "INVALID_TRANSITION"
// @Router /reschedules/{id} [delete]
func (h *RescheduleHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.lifecycle.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *RescheduleHandler) respond(c *gin.Context, op func(actor models.Actor, id string) (*models.RescheduleRequest, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := op(actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}
