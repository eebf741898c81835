package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/marketplace"
)

type MarketplaceHandler struct {
	svc *marketplace.Service
}

func NewMarketplaceHandler(svc *marketplace.Service) *MarketplaceHandler {
	return &MarketplaceHandler{svc: svc}
}

// Browse handles GET /marketplace
func (h *MarketplaceHandler) Browse(c *gin.Context) {
	var q marketplace.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, apperr.Validation("invalid query: %v", err))
		return
	}
	page, err := h.svc.Search(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Search handles GET /marketplace/search?q=&min_price=&max_price=&type=&limit=
func (h *MarketplaceHandler) Search(c *gin.Context) {
	var q marketplace.FullTextQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, apperr.Validation("invalid query: %v", err))
		return
	}
	items, err := h.svc.FullText(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}
