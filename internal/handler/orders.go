package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"evotrade/internal/engine"
	"evotrade/internal/repository"
)

type OrderHandler struct {
	Engine *engine.Engine
	Repo   repository.Repository
}

func (h *OrderHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/orders")
	g.POST("", h.place)
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

type placeOrderRequest struct {
	ClientOrderID string           `json:"client_order_id"`
	AccountID     string           `json:"account_id"`
	StrategyID    string           `json:"strategy_id"`
	CohortID      string           `json:"cohort_id"`
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	OrderType     string           `json:"order_type"`
	Quantity      decimal.Decimal  `json:"quantity"`
	LimitPrice    *decimal.Decimal `json:"limit_price"`
	Mode          string           `json:"mode"`
	Learnable     *bool            `json:"learnable"`
	Tags          json.RawMessage  `json:"tags"`
}

// @Summary Place an order
// @Tags orders
// @Accept json
// @Param body body placeOrderRequest true "order intent"
// @Success 200 {object} apiResponse
// @Router /api/v1/orders [post]
func (h *OrderHandler) place(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusServiceUnavailable, "engine unavailable", nil)
		return
	}
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	intent := engine.OrderIntent{
		ClientOrderID: req.ClientOrderID,
		AccountID:     req.AccountID,
		StrategyID:    req.StrategyID,
		CohortID:      req.CohortID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		OrderType:     req.OrderType,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		Mode:          req.Mode,
		Learnable:     req.Learnable,
	}
	if len(req.Tags) > 0 {
		intent.Tags = datatypes.JSON(req.Tags)
	}
	res, err := h.Engine.PlaceOrder(c.Request.Context(), intent, time.Now().UTC())
	if err != nil {
		Error(c, statusForEngineError(err), err.Error(), nil)
		return
	}
	Ok(c, res, nil)
}

// @Summary List orders
// @Tags orders
// @Param status query string false "filled|rejected|cancelled"
// @Param symbol query string false "symbol"
// @Param strategy_id query string false "strategy id"
// @Param mode query string false "paper|live"
// @Param since query string false "RFC3339 lower bound"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/orders [get]
func (h *OrderHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListOrdersParams{
		Limit:      limit,
		Offset:     offset,
		AccountID:  strQueryPtr(c, "account_id"),
		Status:     strQueryPtr(c, "status"),
		StrategyID: strQueryPtr(c, "strategy_id"),
		Symbol:     strQueryPtr(c, "symbol"),
		Mode:       strQueryPtr(c, "mode"),
		Since:      timeQueryPtr(c, "since"),
		OrderBy:    "created_at",
		Asc:        boolPtr(false),
	}
	items, err := h.Repo.ListOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get one order
// @Tags orders
// @Param id path int true "order id"
// @Success 200 {object} apiResponse
// @Router /api/v1/orders/{id} [get]
func (h *OrderHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetOrderByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "order not found", nil)
		return
	}
	Ok(c, item, nil)
}

func statusForEngineError(err error) int {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvariantViolation):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
