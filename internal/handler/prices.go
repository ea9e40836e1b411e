package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"evotrade/internal/repository"
)

type PriceHandler struct {
	Repo repository.Repository
}

func (h *PriceHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/prices")
	g.GET("", h.list)
	g.GET("/:symbol", h.get)
}

// @Summary List latest prices
// @Tags prices
// @Success 200 {object} apiResponse
// @Router /api/v1/prices [get]
func (h *PriceHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListMarketPrices(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Latest price for one symbol
// @Tags prices
// @Param symbol path string true "symbol"
// @Success 200 {object} apiResponse
// @Router /api/v1/prices/{symbol} [get]
func (h *PriceHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		Error(c, http.StatusBadRequest, "invalid symbol", nil)
		return
	}
	item, err := h.Repo.GetMarketPrice(c.Request.Context(), symbol)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "no price for symbol", nil)
		return
	}
	Ok(c, item, nil)
}
