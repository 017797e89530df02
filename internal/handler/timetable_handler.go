package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/session-attendance-api/internal/service"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
	"github.com/campushq/session-attendance-api/pkg/response"
)

// TimetableHandler exposes timetable upload and lookup endpoints.
type TimetableHandler struct {
	service *service.TimetableService
}

// NewTimetableHandler constructs a timetable handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// UploadTimetableRequest wraps the raw free-text timetable.
type UploadTimetableRequest struct {
	Text string `json:"text"`
}

// Upload godoc
// @Summary Upload timetable text
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body UploadTimetableRequest true "Raw timetable text"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables/upload [post]
func (h *TimetableHandler) Upload(c *gin.Context) {
	var req UploadTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	report, err := h.service.Upload(c.Request.Context(), req.Text, actorFromContext(c))
	if err != nil {
		if report != nil {
			response.ErrorWithData(c, err, report)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSONWithWarnings(c, http.StatusOK, report, report.WarningStrings())
}

// Get godoc
// @Summary Get a section's timetable
// @Tags Timetables
// @Produce json
// @Param section path string true "Section"
// @Success 200 {object} response.Envelope
// @Router /timetables/{section} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	timetable, err := h.service.Get(c.Request.Context(), c.Param("section"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// Sections godoc
// @Summary List sections with a timetable
// @Tags Timetables
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) Sections(c *gin.Context) {
	sections, err := h.service.Sections(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, nil)
}
