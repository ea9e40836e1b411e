package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"evotrade/internal/canary"
)

type CanaryHandler struct {
	Canary     *canary.Manager
	AdminToken string
}

func (h *CanaryHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/canary")
	g.GET("", h.status)
	g.POST("", RequireAdmin(h.AdminToken), h.action)
}

// @Summary Current arm session status
// @Tags canary
// @Success 200 {object} apiResponse
// @Router /api/v1/canary [get]
func (h *CanaryHandler) status(c *gin.Context) {
	if h.Canary == nil {
		Error(c, http.StatusServiceUnavailable, "canary manager unavailable", nil)
		return
	}
	out, err := h.Canary.Status(c.Request.Context(), time.Now().UTC())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, nil)
}

type canaryActionRequest struct {
	Action          string `json:"action"`
	DurationMinutes int    `json:"duration_minutes"`
}

// @Summary Arm or disarm live trading
// @Tags canary
// @Accept json
// @Security BearerAuth
// @Param body body canaryActionRequest true "arm|disarm"
// @Success 200 {object} apiResponse
// @Router /api/v1/canary [post]
func (h *CanaryHandler) action(c *gin.Context) {
	if h.Canary == nil {
		Error(c, http.StatusServiceUnavailable, "canary manager unavailable", nil)
		return
	}
	var req canaryActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	now := time.Now().UTC()
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "arm":
		duration := time.Duration(req.DurationMinutes) * time.Minute
		out, err := h.Canary.Arm(c.Request.Context(), duration, now)
		if err != nil {
			Error(c, statusForCanaryError(err), err.Error(), nil)
			return
		}
		Ok(c, out, nil)
	case "disarm":
		sess, err := h.Canary.Disarm(c.Request.Context(), now)
		if err != nil {
			Error(c, statusForCanaryError(err), err.Error(), nil)
			return
		}
		Ok(c, sess, nil)
	default:
		Error(c, http.StatusBadRequest, "action must be arm or disarm", nil)
	}
}

func statusForCanaryError(err error) int {
	switch {
	case errors.Is(err, canary.ErrAlreadyArmed):
		return http.StatusConflict
	case errors.Is(err, canary.ErrDailyCapReached):
		return http.StatusTooManyRequests
	case errors.Is(err, canary.ErrNotArmed):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
