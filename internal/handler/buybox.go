package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"buybox/internal/repository"
	"buybox/internal/service"
)

type BuyBoxHandler struct {
	Query   *service.BuyBoxQueryService
	Pricing *service.CompetitorPricingService
}

func (h *BuyBoxHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.POST("/products", h.trackProduct)
	g.GET("/products/:asin/buybox", h.status)
	g.GET("/products/:asin/history", h.productHistory)
	g.GET("/products/:asin/offers", h.productOffers)
	g.POST("/products/:asin/collect", h.collect)
	g.GET("/holders", h.holders)
	g.GET("/buybox/status", h.holders)
	g.GET("/history", h.history)
	g.GET("/buybox/history", h.history)
	g.GET("/offers", h.offers)
	g.GET("/stats", h.stats)
}

type trackProductRequest struct {
	ASIN   string `json:"asin"`
	Title  string `json:"title"`
	Active *bool  `json:"active"`
}

// @Summary Track a product
// @Tags products
// @Accept json
// @Param body body trackProductRequest true "product"
// @Success 200 {object} apiResponse
// @Router /api/v1/products [post]
func (h *BuyBoxHandler) trackProduct(c *gin.Context) {
	if h.Pricing == nil {
		Error(c, http.StatusInternalServerError, "pricing service unavailable", nil)
		return
	}
	var req trackProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	item, err := h.Pricing.TrackProduct(c.Request.Context(), req.ASIN, req.Title, active)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary Current Buy Box holder and latest offers of a product
// @Tags buybox
// @Param asin path string true "ASIN"
// @Success 200 {object} apiResponse
// @Router /api/v1/products/{asin}/buybox [get]
func (h *BuyBoxHandler) status(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	out, err := h.Query.Status(c.Request.Context(), c.Param("asin"))
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, out, nil)
}

// @Summary Collect one product now
// @Tags buybox
// @Param asin path string true "ASIN"
// @Success 200 {object} apiResponse
// @Router /api/v1/products/{asin}/collect [post]
func (h *BuyBoxHandler) collect(c *gin.Context) {
	if h.Pricing == nil {
		Error(c, http.StatusInternalServerError, "pricing service unavailable", nil)
		return
	}
	asin := strings.TrimSpace(c.Param("asin"))
	res, err := h.Pricing.CollectProduct(c.Request.Context(), asin)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, res, nil)
}

func (h *BuyBoxHandler) productHistory(c *gin.Context) {
	asin := strings.TrimSpace(c.Param("asin"))
	h.listHistory(c, &asin)
}

// @Summary Buy Box ownership intervals
// @Tags buybox
// @Param seller_id query string false "seller"
// @Param since query string false "RFC3339 or duration"
// @Success 200 {object} apiResponse
// @Router /api/v1/history [get]
func (h *BuyBoxHandler) history(c *gin.Context) {
	h.listHistory(c, strQueryPtr(c, "asin"))
}

func (h *BuyBoxHandler) listHistory(c *gin.Context, asin *string) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	items, err := h.Query.History(c.Request.Context(), repository.ListIntervalsParams{
		ASIN:     asin,
		SellerID: strQueryPtr(c, "seller_id"),
		Since:    sinceQuery(c, "since", time.Now().UTC()),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, len(items)))
}

func (h *BuyBoxHandler) productOffers(c *gin.Context) {
	asin := strings.TrimSpace(c.Param("asin"))
	h.listOffers(c, &asin)
}

// @Summary Offer ledger
// @Tags buybox
// @Param asin query string false "ASIN"
// @Param seller_id query string false "seller"
// @Success 200 {object} apiResponse
// @Router /api/v1/offers [get]
func (h *BuyBoxHandler) offers(c *gin.Context) {
	h.listOffers(c, strQueryPtr(c, "asin"))
}

func (h *BuyBoxHandler) listOffers(c *gin.Context, asin *string) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 200)
	offset := intQuery(c, "offset", 0)
	items, err := h.Query.Offers(c.Request.Context(), repository.ListOffersParams{
		ASIN:     asin,
		SellerID: strQueryPtr(c, "seller_id"),
		Since:    sinceQuery(c, "since", time.Now().UTC()),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, len(items)))
}

// @Summary Current holders across tracked products
// @Tags buybox
// @Success 200 {object} apiResponse
// @Router /api/v1/holders [get]
func (h *BuyBoxHandler) holders(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 200)
	items, err := h.Query.Holders(c.Request.Context(), limit)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, 0, len(items)))
}

// @Summary Collection statistics
// @Tags buybox
// @Param window query string false "duration, default 24h"
// @Success 200 {object} apiResponse
// @Router /api/v1/stats [get]
func (h *BuyBoxHandler) stats(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	out, err := h.Query.Stats(c.Request.Context(), durationQuery(c, "window"))
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, out, nil)
}
