package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"evotrade/internal/risk"
)

type GovernorHandler struct {
	Governor   *risk.Governor
	AdminToken string
}

func (h *GovernorHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/governor")
	g.GET("", h.state)
	g.POST("", h.action)
}

// @Summary Governor state for the current trading day
// @Tags governor
// @Success 200 {object} apiResponse
// @Router /api/v1/governor [get]
func (h *GovernorHandler) state(c *gin.Context) {
	if h.Governor == nil {
		Error(c, http.StatusServiceUnavailable, "governor unavailable", nil)
		return
	}
	sess, err := h.Governor.State(c.Request.Context(), time.Now().UTC())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, sess, nil)
}

type governorActionRequest struct {
	Action string           `json:"action"`
	PnL    *decimal.Decimal `json:"pnl"`
	Symbol string           `json:"symbol"`
}

// @Summary Governor actions
// @Tags governor
// @Accept json
// @Param body body governorActionRequest true "trade_completed (open) or reset_session|clear_cooldown (admin)"
// @Success 200 {object} apiResponse
// @Router /api/v1/governor [post]
func (h *GovernorHandler) action(c *gin.Context) {
	if h.Governor == nil {
		Error(c, http.StatusServiceUnavailable, "governor unavailable", nil)
		return
	}
	var req governorActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	now := time.Now().UTC()
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "trade_completed":
		if req.PnL == nil {
			Error(c, http.StatusBadRequest, "pnl required", nil)
			return
		}
		sess, err := h.Governor.TradeCompleted(c.Request.Context(), *req.PnL, now)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		Ok(c, sess, nil)
	case "reset_session":
		if status, msg := adminCheck(c, h.AdminToken); status != 0 {
			Error(c, status, msg, nil)
			return
		}
		sess, err := h.Governor.ResetSession(c.Request.Context(), now)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		Ok(c, sess, nil)
	case "clear_cooldown":
		if status, msg := adminCheck(c, h.AdminToken); status != 0 {
			Error(c, status, msg, nil)
			return
		}
		sess, err := h.Governor.ClearCooldown(c.Request.Context(), now)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		Ok(c, sess, nil)
	default:
		Error(c, http.StatusBadRequest, "action must be trade_completed, reset_session, or clear_cooldown", nil)
	}
}
