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

type StrategyHandler struct {
	Repo repository.Repository
}

func (h *StrategyHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/strategies")
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("", h.upsert)
}

// @Summary List strategies
// @Tags strategies
// @Success 200 {object} apiResponse
// @Router /api/v1/strategies [get]
func (h *StrategyHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListStrategies(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Get one strategy
// @Tags strategies
// @Param id path string true "strategy id"
// @Success 200 {object} apiResponse
// @Router /api/v1/strategies/{id} [get]
func (h *StrategyHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetStrategyByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "strategy not found", nil)
		return
	}
	Ok(c, item, nil)
}

type upsertStrategyRequest struct {
	ID       string          `json:"id"`
	CohortID string          `json:"cohort_id"`
	Name     string          `json:"name"`
	Status   string          `json:"status"`
	Params   json.RawMessage `json:"params"`
}

// @Summary Register or update a strategy
// @Tags strategies
// @Accept json
// @Param body body upsertStrategyRequest true "strategy"
// @Success 200 {object} apiResponse
// @Router /api/v1/strategies [post]
func (h *StrategyHandler) upsert(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req upsertStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		Error(c, http.StatusBadRequest, "strategy id required", nil)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = req.ID
	}
	item := &models.Strategy{
		ID:       req.ID,
		CohortID: strings.TrimSpace(req.CohortID),
		Name:     strings.TrimSpace(req.Name),
		Status:   strings.TrimSpace(req.Status),
	}
	if item.Status == "" {
		item.Status = "candidate"
	}
	if len(req.Params) > 0 {
		item.Params = datatypes.JSON(req.Params)
	}
	if err := h.Repo.UpsertStrategy(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	next, _ := h.Repo.GetStrategyByID(c.Request.Context(), req.ID)
	Ok(c, next, nil)
}
