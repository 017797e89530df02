package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/session-attendance-api/internal/models"
	"github.com/campushq/session-attendance-api/internal/service"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
	"github.com/campushq/session-attendance-api/pkg/response"
)

// SubstituteHandler exposes substitute assignment endpoints.
type SubstituteHandler struct {
	service *service.SubstituteService
}

// NewSubstituteHandler constructs a substitute handler.
func NewSubstituteHandler(svc *service.SubstituteService) *SubstituteHandler {
	return &SubstituteHandler{service: svc}
}

// AssignSubstitutePayload is the wire form of an assignment.
type AssignSubstitutePayload struct {
	Section             string `json:"section"`
	Date                string `json:"date"`
	TimeLabel           string `json:"time_label"`
	SubstituteTeacherID string `json:"substitute_teacher_id"`
	Reason              string `json:"reason"`
}

// UpdateSubstituteStatusRequest advances an assignment's lifecycle.
type UpdateSubstituteStatusRequest struct {
	Status models.SubstituteStatus `json:"status"`
}

// Assign godoc
// @Summary Assign a substitute teacher to a slot
// @Tags Substitutes
// @Accept json
// @Produce json
// @Param payload body AssignSubstitutePayload true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /substitutes [post]
func (h *SubstituteHandler) Assign(c *gin.Context) {
	var payload AssignSubstitutePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := parseDate(payload.Date)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	assignment, err := h.service.Assign(c.Request.Context(), service.AssignSubstituteRequest{
		Section:             payload.Section,
		Date:                date,
		TimeLabel:           payload.TimeLabel,
		SubstituteTeacherID: payload.SubstituteTeacherID,
		Reason:              payload.Reason,
	}, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// UpdateStatus godoc
// @Summary Update an assignment's status
// @Tags Substitutes
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body UpdateSubstituteStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Router /substitutes/{id}/status [put]
func (h *SubstituteHandler) UpdateStatus(c *gin.Context) {
	var req UpdateSubstituteStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Get godoc
// @Summary Get one assignment
// @Tags Substitutes
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /substitutes/{id} [get]
func (h *SubstituteHandler) Get(c *gin.Context) {
	assignment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// ListByDate godoc
// @Summary List assignments for a date
// @Tags Substitutes
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param section query string false "Filter by section"
// @Success 200 {object} response.Envelope
// @Router /substitutes [get]
func (h *SubstituteHandler) ListByDate(c *gin.Context) {
	date, err := parseDate(c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	assignments, listErr := h.service.ListByDate(c.Request.Context(), date, c.Query("section"))
	if listErr != nil {
		response.Error(c, listErr)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}
