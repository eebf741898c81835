package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/clone"
	"github.com/jesadaho/asset-ace-sub000/internal/importer"
	"github.com/jesadaho/asset-ace-sub000/internal/ledger"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/jesadaho/asset-ace-sub000/internal/objectstore"
	"github.com/jesadaho/asset-ace-sub000/internal/property"
)

// ListingFetcher reads a public listing page.
type ListingFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*importer.Listing, error)
}

// PropertyHandler serves the owner and agent property routes.
type PropertyHandler struct {
	properties *property.Service
	ledger     *ledger.Service
	clones     *clone.Service
	fetcher    ListingFetcher
	store      objectstore.Gateway
}

func NewPropertyHandler(properties *property.Service, ledgerSvc *ledger.Service, clones *clone.Service, fetcher ListingFetcher, store objectstore.Gateway) *PropertyHandler {
	return &PropertyHandler{
		properties: properties,
		ledger:     ledgerSvc,
		clones:     clones,
		fetcher:    fetcher,
		store:      store,
	}
}

// propertyView adds read-time photo and contract URLs to the stored property.
type propertyView struct {
	*models.Property
	PhotoURLs   []string `json:"photo_urls"`
	ContractURL string   `json:"contract_url,omitempty"`
}

func (h *PropertyHandler) view(c *gin.Context, p *models.Property) propertyView {
	ctx := c.Request.Context()
	urls := objectstore.ResolveURLs(ctx, h.store, p.PhotoKeys)
	if urls == nil {
		urls = []string{}
	}
	v := propertyView{Property: p, PhotoURLs: urls}
	// the lease document stays with the owner
	if p.OwnerID == UserID(c) {
		v.ContractURL = objectstore.ResolveURL(ctx, h.store, p.ContractKey)
	}
	return v
}

type rentalRecordView struct {
	models.RentalHistoryRecord
	ContractURL string `json:"contract_url,omitempty"`
}

// Create handles POST /properties
func (h *PropertyHandler) Create(c *gin.Context) {
	var req property.CreateRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.properties.Create(c.Request.Context(), UserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(c, p))
}

// List handles GET /properties?status=
func (h *PropertyHandler) List(c *gin.Context) {
	properties, err := h.properties.ListMine(c.Request.Context(), UserID(c), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"properties": properties, "count": len(properties)})
}

// ListManaged handles GET /agent/properties
func (h *PropertyHandler) ListManaged(c *gin.Context) {
	properties, err := h.properties.ListManaged(c.Request.Context(), UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"properties": properties, "count": len(properties)})
}

// Get handles GET /properties/:id
func (h *PropertyHandler) Get(c *gin.Context) {
	p, err := h.properties.Get(c.Request.Context(), UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c, p))
}

// Update handles PUT /properties/:id
func (h *PropertyHandler) Update(c *gin.Context) {
	var req property.UpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.properties.Update(c.Request.Context(), UserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c, p))
}

// Delete handles DELETE /properties/:id
func (h *PropertyHandler) Delete(c *gin.Context) {
	if err := h.properties.Delete(c.Request.Context(), UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Publish handles POST /properties/:id/publish
func (h *PropertyHandler) Publish(c *gin.Context) {
	h.transition(c, func(ctx context.Context, owner, id string) (*models.Property, error) {
		return h.properties.Publish(ctx, owner, id)
	})
}

// Reserve handles POST /properties/:id/reserve
func (h *PropertyHandler) Reserve(c *gin.Context) {
	var req property.ReserveRequest
	if !bindJSON(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, owner, id string) (*models.Property, error) {
		return h.properties.Reserve(ctx, owner, id, req)
	})
}

// ClearReservation handles DELETE /properties/:id/reservation
func (h *PropertyHandler) ClearReservation(c *gin.Context) {
	h.transition(c, h.properties.ClearReservation)
}

// SetRented handles POST /properties/:id/rent
func (h *PropertyHandler) SetRented(c *gin.Context) {
	var req property.SetRentedRequest
	if !bindJSON(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, owner, id string) (*models.Property, error) {
		return h.properties.SetRented(ctx, owner, id, req)
	})
}

// Checkout handles POST /properties/:id/checkout
func (h *PropertyHandler) Checkout(c *gin.Context) {
	h.transition(c, h.properties.Checkout)
}

// AgentUpdate handles PUT /properties/:id/occupancy
func (h *PropertyHandler) AgentUpdate(c *gin.Context) {
	var req property.AgentUpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, agent, id string) (*models.Property, error) {
		return h.properties.AgentUpdate(ctx, agent, id, req)
	})
}

func (h *PropertyHandler) transition(c *gin.Context, fn func(ctx context.Context, userID, id string) (*models.Property, error)) {
	p, err := fn(c.Request.Context(), UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c, p))
}

// RentalHistory handles GET /properties/:id/rental-history
func (h *PropertyHandler) RentalHistory(c *gin.Context) {
	records, err := h.ledger.ListForProperty(c.Request.Context(), UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]rentalRecordView, len(records))
	for i := range records {
		views[i] = rentalRecordView{
			RentalHistoryRecord: records[i],
			ContractURL:         objectstore.ResolveURL(c.Request.Context(), h.store, records[i].ContractKey),
		}
	}
	c.JSON(http.StatusOK, gin.H{"records": views, "count": len(views)})
}

// Clone handles POST /properties/:id/clone
func (h *PropertyHandler) Clone(c *gin.Context) {
	var req clone.Request
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	created, err := h.clones.Clone(c.Request.Context(), UserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"properties": created, "count": len(created)})
}

type importRequest struct {
	URL     string `json:"url" binding:"required"`
	Publish bool   `json:"publish"`
}

// Import handles POST /properties/import
func (h *PropertyHandler) Import(c *gin.Context) {
	if h.fetcher == nil {
		respondError(c, apperr.Unavailable("listing importer", errors.New("not configured")))
		return
	}
	var req importRequest
	if !bindJSON(c, &req) {
		return
	}

	listing, err := h.fetcher.Fetch(c.Request.Context(), req.URL)
	if err != nil {
		if errors.Is(err, importer.ErrInvalidURL) {
			respondError(c, apperr.Validation("%v", err))
		} else {
			respondError(c, apperr.Unavailable("listing source", err))
		}
		return
	}

	createReq := listing.CreateRequest()
	createReq.Publish = req.Publish
	p, err := h.properties.Create(c.Request.Context(), UserID(c), createReq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"property": h.view(c, p), "source": listing})
}
