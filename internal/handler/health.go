package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"evotrade/internal/db"
	"evotrade/internal/marketdata"
)

type HealthHandler struct {
	DB     *db.DB
	Poller *marketdata.Poller
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Readiness check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	if err := db.Ping(c.Request.Context(), h.DB); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	out := gin.H{"status": "ready"}
	// Market data feed status rides along without failing readiness; the
	// engine's own freshness gate rejects stale prices.
	if h.Poller != nil {
		out["marketdata"] = h.Poller.Health().Status
	}
	c.JSON(http.StatusOK, out)
}
