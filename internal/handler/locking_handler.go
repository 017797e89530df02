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

// LockingHandler exposes lock, unlock, override and retroactive endpoints.
type LockingHandler struct {
	service *service.LockingService
}

// NewLockingHandler constructs a locking handler.
func NewLockingHandler(svc *service.LockingService) *LockingHandler {
	return &LockingHandler{service: svc}
}

// UnlockRequest carries the mandatory unlock reason.
type UnlockRequest struct {
	Reason string `json:"reason"`
}

// RetroactivePayload is the wire form of a retroactive session record.
type RetroactivePayload struct {
	Section   string            `json:"section"`
	Date      string            `json:"date"`
	TimeLabel string            `json:"time_label"`
	Students  []string          `json:"students"`
	Statuses  map[string]string `json:"statuses"`
	Reason    string            `json:"reason"`
}

// Lock godoc
// @Summary Lock an attendance session
// @Tags Locking
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id}/lock [post]
func (h *LockingHandler) Lock(c *gin.Context) {
	session, err := h.service.Lock(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Unlock godoc
// @Summary Unlock an attendance session
// @Tags Locking
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body UnlockRequest true "Unlock reason"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id}/unlock [post]
func (h *LockingHandler) Unlock(c *gin.Context) {
	var req UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.Unlock(c.Request.Context(), c.Param("id"), req.Reason, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Override godoc
// @Summary Override marks on a session
// @Tags Locking
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.OverrideRequest true "Status changes and reason"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id}/override [post]
func (h *LockingHandler) Override(c *gin.Context) {
	var req service.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.Override(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Retroactive godoc
// @Summary Record a session after its window closed
// @Tags Locking
// @Accept json
// @Produce json
// @Param payload body RetroactivePayload true "Slot coordinates, roster and reason"
// @Success 201 {object} response.Envelope
// @Router /attendance/retroactive [post]
func (h *LockingHandler) Retroactive(c *gin.Context) {
	var payload RetroactivePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		response.Error(c, err)
		return
	}
	session, err := h.service.RecordMissed(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Sweep godoc
// @Summary Run the end-of-day lock sweep now
// @Tags Locking
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /attendance/sweep [post]
func (h *LockingHandler) Sweep(c *gin.Context) {
	locked, err := h.service.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"locked": locked}, nil)
}

func (p *RetroactivePayload) toRequest() (service.RetroactiveRequest, error) {
	date, err := time.Parse("2006-01-02", p.Date)
	if err != nil {
		return service.RetroactiveRequest{}, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	req := service.RetroactiveRequest{
		Section:   p.Section,
		Date:      date,
		TimeLabel: p.TimeLabel,
		Students:  p.Students,
		Reason:    p.Reason,
	}
	if len(p.Statuses) > 0 {
		req.Statuses = make(map[string]models.MarkStatus, len(p.Statuses))
		for student, status := range p.Statuses {
			req.Statuses[student] = models.MarkStatus(status)
		}
	}
	return req, nil
}
