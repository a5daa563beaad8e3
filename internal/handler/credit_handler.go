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

type creditManager interface {
	Get(ctx context.Context, actor models.Actor, id string) (*models.MakeupCredit, error)
	Grant(ctx context.Context, actor models.Actor, req dto.GrantCreditRequest, today models.Date) (*models.MakeupCredit, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
}

type creditBooker interface {
	UseCredit(ctx context.Context, actor models.Actor, creditID string, req dto.UseCreditRequest, today models.Date) (*models.CreditUsage, error)
}

// CreditHandler exposes makeup credits and their usages.
type CreditHandler struct {
	credits creditManager
	booking creditBooker
	clock   calendar.Clock
}

// NewCreditHandler constructs the handler.
func NewCreditHandler(credits creditManager, booking creditBooker, clock calendar.Clock) *CreditHandler {
	return &CreditHandler{credits: credits, booking: booking, clock: clock}
}

// Grant godoc
// @Summary Grant a makeup credit
// @Tags Credits
// @Accept json
// @Produce json
// @Param payload body dto.GrantCreditRequest true "Credit payload"
// @Success 201 {object} response.Envelope
// @Router /credits [post]
func (h *CreditHandler) Grant(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.GrantCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	credit, err := h.credits.Grant(c.Request.Context(), actor, req, h.clock.Today())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, credit)
}

// Get godoc
// @Summary Get a makeup credit
// @Tags Credits
// @Produce json
// @Param id path string true "Credit ID"
// @Success 200 {object} response.Envelope
// @Router /credits/{id} [get]
func (h *CreditHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	credit, err := h.credits.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, credit, nil)
}

// Use godoc
// @Summary Book an extra class against a credit
// @Tags Credits
// @Accept json
// @Produce json
// @Param id path string true "Credit ID"
// @Param payload body dto.UseCreditRequest true "Destination"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "CREDIT_EXHAUSTED or SLOT_FULL"
// @Failure 410 {object} response.Envelope "CREDIT_EXPIRED"
// @Router /credits/{id}/usages [post]
func (h *CreditHandler) Use(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UseCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	usage, err := h.booking.UseCredit(c.Request.Context(), actor, c.Param("id"), req, h.clock.Today())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, usage)
}

// Delete godoc
// @Summary Delete a credit and its usage ledger
// @Tags Credits
// @Param id path string true "Credit ID"
// @Success 204
// @Router /credits/{id} [delete]
func (h *CreditHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.credits.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
