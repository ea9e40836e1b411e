package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"evotrade/internal/repository"
)

type DroughtHandler struct {
	Repo repository.Repository
}

func (h *DroughtHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/drought", h.state)
}

// @Summary Current drought state
// @Tags drought
// @Success 200 {object} apiResponse
// @Router /api/v1/drought [get]
func (h *DroughtHandler) state(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	item, err := h.Repo.GetDroughtState(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "drought state not computed yet", nil)
		return
	}
	Ok(c, item, nil)
}
