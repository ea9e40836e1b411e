package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"evotrade/internal/fitness"
	"evotrade/internal/repository"
)

type PerformanceHandler struct {
	Repo       repository.Repository
	Fitness    *fitness.Service
	AdminToken string
}

func (h *PerformanceHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/performance")
	g.GET("", h.list)
	g.GET("/latest", h.latest)
	g.POST("/run", RequireAdmin(h.AdminToken), h.run)
}

// @Summary List performance records
// @Tags performance
// @Param strategy_id query string false "strategy id"
// @Param period query string false "evaluation period (YYYY-MM-DD)"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/performance [get]
func (h *PerformanceHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	params := repository.ListPerformanceParams{
		Limit:      limit,
		Offset:     offset,
		StrategyID: strQueryPtr(c, "strategy_id"),
		Period:     strQueryPtr(c, "period"),
		OrderBy:    "evaluated_at",
		Asc:        boolPtr(false),
	}
	items, err := h.Repo.ListPerformanceRecords(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountPerformanceRecords(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Latest record per strategy
// @Tags performance
// @Success 200 {object} apiResponse
// @Router /api/v1/performance/latest [get]
func (h *PerformanceHandler) latest(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.LatestPerformanceRecords(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Run fitness evaluation now
// @Tags performance
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Router /api/v1/performance/run [post]
func (h *PerformanceHandler) run(c *gin.Context) {
	if h.Fitness == nil {
		Error(c, http.StatusServiceUnavailable, "fitness service unavailable", nil)
		return
	}
	evaluated, err := h.Fitness.RunAll(c.Request.Context(), time.Now().UTC())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"evaluated": evaluated}, nil)
}
