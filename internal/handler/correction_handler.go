package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/session-attendance-api/internal/models"
	"github.com/campushq/session-attendance-api/internal/service"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
	"github.com/campushq/session-attendance-api/pkg/response"
)

// CorrectionHandler exposes the student correction workflow.
type CorrectionHandler struct {
	service *service.CorrectionService
}

// NewCorrectionHandler constructs a correction handler.
func NewCorrectionHandler(svc *service.CorrectionService) *CorrectionHandler {
	return &CorrectionHandler{service: svc}
}

// Submit godoc
// @Summary Submit a correction request
// @Tags Corrections
// @Accept json
// @Produce json
// @Param payload body service.SubmitCorrectionRequest true "Dispute payload"
// @Success 201 {object} response.Envelope
// @Router /corrections [post]
func (h *CorrectionHandler) Submit(c *gin.Context) {
	var req service.SubmitCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.service.Submit(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Review godoc
// @Summary Approve or reject a correction request
// @Tags Corrections
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.ReviewDecision true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /corrections/{id}/review [post]
func (h *CorrectionHandler) Review(c *gin.Context) {
	var decision service.ReviewDecision
	if err := c.ShouldBindJSON(&decision); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.service.Review(c.Request.Context(), c.Param("id"), decision, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Get godoc
// @Summary Get one correction request
// @Tags Corrections
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /corrections/{id} [get]
func (h *CorrectionHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// List godoc
// @Summary List correction requests
// @Tags Corrections
// @Produce json
// @Param student query string false "Filter by student"
// @Param session query string false "Filter by session"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /corrections [get]
func (h *CorrectionHandler) List(c *gin.Context) {
	filter := models.CorrectionFilter{
		StudentID: c.Query("student"),
		SessionID: c.Query("session"),
		Status:    models.CorrectionStatus(c.Query("status")),
	}
	requests, err := h.service.List(c.Request.Context(), filter, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}
