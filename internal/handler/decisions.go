package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"evotrade/internal/models"
	"evotrade/internal/repository"
)

type DecisionHandler struct {
	Repo repository.Repository
}

func (h *DecisionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/decisions")
	g.POST("", h.ingest)
	g.GET("", h.list)
}

type decisionRequest struct {
	StrategyID string          `json:"strategy_id"`
	Symbol     string          `json:"symbol"`
	Action     string          `json:"action"`
	Reason     string          `json:"reason"`
	Metadata   json.RawMessage `json:"metadata"`
}

// @Summary Record a strategy decision
// @Tags decisions
// @Accept json
// @Param body body decisionRequest true "decision"
// @Success 200 {object} apiResponse
// @Router /api/v1/decisions [post]
func (h *DecisionHandler) ingest(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	switch action {
	case "buy", "sell", "hold":
	default:
		Error(c, http.StatusBadRequest, "action must be buy, sell, or hold", nil)
		return
	}
	item := &models.Decision{
		StrategyID: strings.TrimSpace(req.StrategyID),
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Action:     action,
		Reason:     strings.TrimSpace(req.Reason),
	}
	if len(req.Metadata) > 0 {
		item.Metadata = datatypes.JSON(req.Metadata)
	}
	if err := h.Repo.InsertDecision(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary List decisions
// @Tags decisions
// @Param action query string false "buy|sell|hold"
// @Param strategy_id query string false "strategy id"
// @Param symbol query string false "symbol"
// @Param since query string false "RFC3339 lower bound"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/decisions [get]
func (h *DecisionHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	params := repository.ListDecisionsParams{
		Limit:      limit,
		Offset:     offset,
		StrategyID: strQueryPtr(c, "strategy_id"),
		Symbol:     strQueryPtr(c, "symbol"),
		Action:     strQueryPtr(c, "action"),
		Since:      timeQueryPtr(c, "since"),
		OrderBy:    "created_at",
		Asc:        boolPtr(false),
	}
	items, err := h.Repo.ListDecisions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountDecisions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}
