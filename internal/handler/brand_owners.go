package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buybox/internal/service"
)

type BrandOwnerHandler struct {
	Service *service.BrandOwnerService
}

func (h *BrandOwnerHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/brand-owners")
	g.POST("", h.registerOwner)
	g.POST("/:seller_id/products", h.registerProduct)
	g.POST("/:seller_id/competitors", h.registerPair)
	g.GET("/:seller_id/dashboard", h.dashboard)
	g.POST("/:seller_id/refresh", h.refreshSeller)

	pairs := r.Group("/api/v1/competitors")
	pairs.GET("/:id/samples", h.samples)
	pairs.POST("/:id/refresh", h.refreshPair)
	pairs.DELETE("/:id", h.deactivate)
}

type registerOwnerRequest struct {
	SellerID  string `json:"seller_id"`
	BrandName string `json:"brand_name"`
	Exclusive bool   `json:"exclusive"`
}

// @Summary Register a brand owner
// @Tags brand-owners
// @Accept json
// @Param body body registerOwnerRequest true "owner"
// @Success 200 {object} apiResponse
// @Router /api/v1/brand-owners [post]
func (h *BrandOwnerHandler) registerOwner(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "brand owner service unavailable", nil)
		return
	}
	var req registerOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	id, err := h.Service.RegisterBrandOwner(c.Request.Context(), req.SellerID, req.BrandName, req.Exclusive)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, gin.H{"id": id}, nil)
}

type registerProductRequest struct {
	ASIN     string `json:"asin"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// @Summary Register a brand owner product
// @Tags brand-owners
// @Accept json
// @Param seller_id path string true "seller"
// @Param body body registerProductRequest true "product"
// @Success 200 {object} apiResponse
// @Router /api/v1/brand-owners/{seller_id}/products [post]
func (h *BrandOwnerHandler) registerProduct(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "brand owner service unavailable", nil)
		return
	}
	var req registerProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	id, err := h.Service.RegisterProduct(c.Request.Context(), c.Param("seller_id"), req.ASIN, req.Name, req.Category)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, gin.H{"id": id}, nil)
}

// @Summary Register a manual competitor pair
// @Tags brand-owners
// @Accept json
// @Param seller_id path string true "seller"
// @Param body body service.PairInput true "pair"
// @Success 200 {object} apiResponse
// @Router /api/v1/brand-owners/{seller_id}/competitors [post]
func (h *BrandOwnerHandler) registerPair(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "brand owner service unavailable", nil)
		return
	}
	var req service.PairInput
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.SellerID = c.Param("seller_id")
	id, err := h.Service.RegisterPair(c.Request.Context(), req)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, gin.H{"id": id}, nil)
}

// @Summary Competition dashboard of a brand owner
// @Tags brand-owners
// @Param seller_id path string true "seller"
// @Success 200 {object} apiResponse
// @Router /api/v1/brand-owners/{seller_id}/dashboard [get]
func (h *BrandOwnerHandler) dashboard(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "brand owner service unavailable", nil)
		return
	}
	out, err := h.Service.Dashboard(c.Request.Context(), c.Param("seller_id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, out, nil)
}

func (h *BrandOwnerHandler) refreshSeller(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "brand owner service unavailable", nil)
		return
	}
	sum, err := h.Service.RefreshAllForSeller(c.Request.Context(), c.Param("seller_id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, sum, nil)
}

func (h *BrandOwnerHandler) samples(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "brand owner service unavailable", nil)
		return
	}
	id := parseUint64(c.Param("id"))
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	items, err := h.Service.ListSamples(c.Request.Context(), id, limit)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, 0, len(items)))
}

func (h *BrandOwnerHandler) refreshPair(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "brand owner service unavailable", nil)
		return
	}
	id := parseUint64(c.Param("id"))
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	sample, item, err := h.Service.RefreshPair(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, gin.H{"sample": sample, "insight": item}, nil)
}

func (h *BrandOwnerHandler) deactivate(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "brand owner service unavailable", nil)
		return
	}
	id := parseUint64(c.Param("id"))
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := h.Service.DeactivatePair(c.Request.Context(), id); err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, gin.H{"id": id, "active": false}, nil)
}
