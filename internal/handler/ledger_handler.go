package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/internal/service"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
	"github.com/noah-isme/studio-makeup-api/pkg/export"
	"github.com/noah-isme/studio-makeup-api/pkg/response"
)

type ledgerAuditor interface {
	Reconcile(ctx context.Context) ([]models.LedgerDiscrepancy, error)
	CheckCredit(ctx context.Context, creditID string) error
}

// LedgerHandler reports credit ledger drift. It never corrects anything.
type LedgerHandler struct {
	ledger ledgerAuditor
}

// NewLedgerHandler constructs the handler.
func NewLedgerHandler(ledger ledgerAuditor) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Discrepancies godoc
// @Summary Reconcile every credit counter against its usage ledger
// @Tags Admin
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "json (default), csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /admin/ledger/discrepancies [get]
func (h *LedgerHandler) Discrepancies(c *gin.Context) {
	var renderer export.Renderer
	if format := c.Query("format"); format != "" && format != "json" {
		r, err := export.ForFormat(format)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
			return
		}
		renderer = r
	}

	report, err := h.ledger.Reconcile(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if renderer != nil {
		h.download(c, renderer, report)
		return
	}
	if report == nil {
		report = []models.LedgerDiscrepancy{}
	}
	response.JSON(c, http.StatusOK, report, nil, map[string]interface{}{"count": len(report)})
}

// CheckCredit godoc
// @Summary Verify one credit's counter against its ledger
// @Tags Admin
// @Produce json
// @Param id path string true "Credit ID"
// @Success 200 {object} response.Envelope
// @Failure 500 {object} response.Envelope "LEDGER_INTEGRITY"
// @Router /admin/ledger/credits/{id} [get]
func (h *LedgerHandler) CheckCredit(c *gin.Context) {
	id := c.Param("id")
	if err := h.ledger.CheckCredit(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"credit_id": id, "consistent": true}, nil)
}

func (h *LedgerHandler) download(c *gin.Context, renderer export.Renderer, report []models.LedgerDiscrepancy) {
	now := time.Now()
	body, err := renderer.Render(service.DiscrepancyReport(report, now))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report"))
		return
	}
	response.Attachment(c, export.Filename("ledger-discrepancies", now, renderer), renderer.ContentType(), body)
}
