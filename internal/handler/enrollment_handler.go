package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-makeup-api/internal/dto"
	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/pkg/calendar"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
	"github.com/noah-isme/studio-makeup-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, actor models.Actor, req dto.EnrollRequest, today models.Date) (*models.Enrollment, error)
}

// EnrollmentHandler manages fixed-class enrollments.
type EnrollmentHandler struct {
	service enrollmentService
	clock   calendar.Clock
}

// NewEnrollmentHandler constructs handler.
func NewEnrollmentHandler(service enrollmentService, clock calendar.Clock) *EnrollmentHandler {
	return &EnrollmentHandler{service: service, clock: clock}
}

// Create godoc
// @Summary Enroll student in a recurring slot
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "overlapping enrollment or SLOT_FULL"
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enrollment, err := h.service.Enroll(c.Request.Context(), actor, req, h.clock.Today())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}
