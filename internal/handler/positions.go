package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"evotrade/internal/repository"
	"evotrade/internal/service"
)

type PositionHandler struct {
	Repo      repository.Repository
	Portfolio *service.PortfolioService
	AccountID string
}

func (h *PositionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/positions")
	g.GET("", h.list)
	g.GET("/summary", h.summary)

	r.GET("/api/v1/account", h.account)
}

// @Summary List positions
// @Tags positions
// @Param status query string false "open|closed"
// @Param symbol query string false "symbol"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/positions [get]
func (h *PositionHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	params := repository.ListPositionsParams{
		Limit:     limit,
		Offset:    offset,
		AccountID: strQueryPtr(c, "account_id"),
		Status:    strQueryPtr(c, "status"),
		Symbol:    strQueryPtr(c, "symbol"),
		OrderBy:   "updated_at",
		Asc:       boolPtr(false),
	}
	items, err := h.Repo.ListPositions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountPositions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Aggregate position summary
// @Tags positions
// @Success 200 {object} apiResponse
// @Router /api/v1/positions/summary [get]
func (h *PositionHandler) summary(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	accountID := h.accountID(c)
	out, err := h.Repo.PositionsSummary(c.Request.Context(), accountID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, nil)
}

// @Summary Account portfolio view
// @Tags account
// @Success 200 {object} apiResponse
// @Router /api/v1/account [get]
func (h *PositionHandler) account(c *gin.Context) {
	if h.Portfolio == nil {
		Error(c, http.StatusServiceUnavailable, "portfolio unavailable", nil)
		return
	}
	accountID := h.accountID(c)
	view, err := h.Portfolio.View(c.Request.Context(), accountID, time.Now().UTC())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, view, nil)
}

func (h *PositionHandler) accountID(c *gin.Context) string {
	if v := strQueryPtr(c, "account_id"); v != nil {
		return *v
	}
	return h.AccountID
}
