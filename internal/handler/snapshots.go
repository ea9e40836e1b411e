package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"evotrade/internal/repository"
)

type SnapshotHandler struct {
	Repo repository.Repository
}

func (h *SnapshotHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/snapshots", h.list)
}

// @Summary Equity snapshot history
// @Tags snapshots
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/snapshots [get]
func (h *SnapshotHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListEquitySnapshotsParams{
		Limit:     intQuery(c, "limit", 500),
		Offset:    intQuery(c, "offset", 0),
		AccountID: strQueryPtr(c, "account_id"),
		Since:     timeQueryPtr(c, "since"),
		Until:     timeQueryPtr(c, "until"),
	}
	items, err := h.Repo.ListEquitySnapshots(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
