package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/session-attendance-api/internal/models"
	"github.com/campushq/session-attendance-api/internal/service"
	appErrors "github.com/campushq/session-attendance-api/pkg/errors"
	"github.com/campushq/session-attendance-api/pkg/response"
)

// AttendanceHandler exposes session resolution, marking and read endpoints.
type AttendanceHandler struct {
	ledger   *service.AttendanceService
	resolver *service.ResolverService
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(ledger *service.AttendanceService, resolver *service.ResolverService) *AttendanceHandler {
	return &AttendanceHandler{ledger: ledger, resolver: resolver}
}

// Current godoc
// @Summary Resolve the session actionable right now
// @Tags Attendance
// @Produce json
// @Param section query string true "Section"
// @Success 200 {object} response.Envelope
// @Router /sessions/current [get]
func (h *AttendanceHandler) Current(c *gin.Context) {
	section := c.Query("section")
	if section == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "section is required"))
		return
	}
	resolved, err := h.resolver.Resolve(c.Request.Context(), section, time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolved, nil)
}

// Mark godoc
// @Summary Record attendance for the current session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkSessionRequest true "Roster and statuses"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.ledger.MarkCurrent(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get one attendance session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id} [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	session, err := h.ledger.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// List godoc
// @Summary List a section's sessions for a date
// @Tags Attendance
// @Produce json
// @Param section query string true "Section"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	section := c.Query("section")
	date, err := parseDate(c.Query("date"))
	if section == "" || err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "section and date are required"))
		return
	}
	sessions, listErr := h.ledger.SectionDate(c.Request.Context(), section, date)
	if listErr != nil {
		response.Error(c, listErr)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// StudentHistory godoc
// @Summary A student's attendance history
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param subject query string false "Filter by subject"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	studentID := c.Param("id")
	if err := h.authorizeStudentRead(c, studentID); err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.ledger.StudentHistory(c.Request.Context(), studentID, historyFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// StudentSummary godoc
// @Summary A student's attendance percentage
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param subject query string false "Filter by subject"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance/summary [get]
func (h *AttendanceHandler) StudentSummary(c *gin.Context) {
	studentID := c.Param("id")
	if err := h.authorizeStudentRead(c, studentID); err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.ledger.StudentSummary(c.Request.Context(), studentID, historyFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func (h *AttendanceHandler) authorizeStudentRead(c *gin.Context, studentID string) error {
	actor := actorFromContext(c)
	if actor.Role == models.RoleStudent && actor.ID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "students may only read their own attendance")
	}
	return nil
}

func historyFilter(c *gin.Context) models.StudentHistoryFilter {
	filter := models.StudentHistoryFilter{Subject: c.Query("subject")}
	if from, err := parseDate(c.Query("from")); err == nil {
		filter.DateFrom = &from
	}
	if to, err := parseDate(c.Query("to")); err == nil {
		filter.DateTo = &to
	}
	return filter
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}
