package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/session-attendance-api/internal/service"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
	"github.com/campushq/session-attendance-api/pkg/response"
)

// AuditHandler exposes read-only audit trail endpoints.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// EntityTrail godoc
// @Summary Audit trail for one entity
// @Tags Audit
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /audit/{type}/{id} [get]
func (h *AuditHandler) EntityTrail(c *gin.Context) {
	entries, err := h.service.EntityTrail(c.Request.Context(), c.Param("type"), c.Param("id"), limitParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ActorTrail godoc
// @Summary Audit trail for one actor
// @Tags Audit
// @Produce json
// @Param id path string true "Actor ID"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /audit/actors/{id} [get]
func (h *AuditHandler) ActorTrail(c *gin.Context) {
	entries, err := h.service.ActorTrail(c.Request.Context(), c.Param("id"), limitParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// SectionTrail godoc
// @Summary Audit trail for one section over a date range
// @Tags Audit
// @Produce json
// @Param section path string true "Section"
// @Param from query string true "From date (YYYY-MM-DD)"
// @Param to query string true "To date (YYYY-MM-DD)"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /audit/sections/{section} [get]
func (h *AuditHandler) SectionTrail(c *gin.Context) {
	from, errFrom := parseDate(c.Query("from"))
	to, errTo := parseDate(c.Query("to"))
	if errFrom != nil || errTo != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from and to dates are required as YYYY-MM-DD"))
		return
	}
	// Make the range inclusive of the whole final day.
	to = to.Add(24*time.Hour - time.Nanosecond)
	entries, err := h.service.SectionTrail(c.Request.Context(), c.Param("section"), from, to, limitParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

func limitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		return 100
	}
	return limit
}
