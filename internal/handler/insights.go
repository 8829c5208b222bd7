package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"buybox/internal/repository"
	"buybox/internal/service"
)

type InsightHandler struct {
	Query *service.BuyBoxQueryService
}

func (h *InsightHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/insights")
	g.GET("", h.list)
	g.POST("/:id/status", h.setStatus)
}

var insightOrder = map[string]string{
	"created_at": "created_at",
	"priority":   "priority",
	"impact":     "potential_impact",
	"confidence": "confidence_score",
}

// @Summary List insights
// @Tags insights
// @Param asin query string false "ASIN"
// @Param type query string false "insight type"
// @Param status query string false "pending, applied or dismissed"
// @Param priority query string false "priority"
// @Param order_by query string false "created_at, priority, impact, confidence"
// @Success 200 {object} apiResponse
// @Router /api/v1/insights [get]
func (h *InsightHandler) list(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	orderBy := insightOrder[strings.ToLower(strings.TrimSpace(c.Query("order_by")))]
	items, err := h.Query.Insights(c.Request.Context(), repository.ListInsightsParams{
		ASIN:     strQueryPtr(c, "asin"),
		Type:     strQueryPtr(c, "type"),
		Status:   strQueryPtr(c, "status"),
		Priority: strQueryPtr(c, "priority"),
		Since:    sinceQuery(c, "since", time.Now().UTC()),
		Limit:    limit,
		Offset:   offset,
		OrderBy:  orderBy,
		Asc:      boolPtr(strings.EqualFold(c.Query("order"), "asc")),
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, len(items)))
}

type insightStatusRequest struct {
	Status string `json:"status"`
}

// @Summary Apply or dismiss an insight
// @Tags insights
// @Accept json
// @Param id path int true "insight id"
// @Param body body insightStatusRequest true "status"
// @Success 200 {object} apiResponse
// @Router /api/v1/insights/{id}/status [post]
func (h *InsightHandler) setStatus(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	id := parseUint64(c.Param("id"))
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req insightStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	item, err := h.Query.SetInsightStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, item, nil)
}
