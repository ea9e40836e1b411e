package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"evotrade/internal/repository"
)

type FillHandler struct {
	Repo repository.Repository
}

func (h *FillHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/fills", h.list)
}

// @Summary List fills
// @Tags fills
// @Param strategy_id query string false "strategy id"
// @Param symbol query string false "symbol"
// @Param learnable query bool false "learnable only"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/fills [get]
func (h *FillHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	params := repository.ListFillsParams{
		Limit:      limit,
		Offset:     offset,
		AccountID:  strQueryPtr(c, "account_id"),
		StrategyID: strQueryPtr(c, "strategy_id"),
		Symbol:     strQueryPtr(c, "symbol"),
		Learnable:  boolQueryPtr(c, "learnable"),
		Since:      timeQueryPtr(c, "since"),
		Until:      timeQueryPtr(c, "until"),
		OrderBy:    "filled_at",
		Asc:        boolPtr(false),
	}
	items, err := h.Repo.ListFills(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountFills(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}
