// Package search keeps a Meilisearch index of open marketplace listings for
// free-text queries. The relational store stays the source of truth.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/meilisearch/meilisearch-go"
)

// Index is the listing index used by the property and marketplace services.
type Index interface {
	Sync(ctx context.Context, p *models.Property) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, params FilterParams) ([]string, error)
}

// FilterParams narrows a free-text query.
type FilterParams struct {
	Query    string
	MinPrice *float64
	MaxPrice *float64
	Types    []models.PropertyType
	Limit    int64
}

// ListingDocument is what gets indexed for one open listing.
type ListingDocument struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Address     string   `json:"address"`
	Description string   `json:"description"`
	Amenities   []string `json:"amenities"`
	Price       float64  `json:"price"`
	CreatedAt   int64    `json:"created_at"`
}

// NewListingDocument converts a property into its index document.
func NewListingDocument(p *models.Property) ListingDocument {
	return ListingDocument{
		ID:          p.ID,
		Name:        p.Name,
		Type:        string(p.Type),
		Address:     p.Address,
		Description: p.Description,
		Amenities:   p.Amenities,
		Price:       p.Price,
		CreatedAt:   p.CreatedAt.UnixMilli(),
	}
}

// Listed reports whether p belongs in the marketplace index.
func Listed(p *models.Property) bool {
	return p.Status == models.PropertyStatusAvailable && p.OpenForAgent
}

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey, index string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "listings"
	}

	return &SearchClient{
		client: client,
		index:  index,
	}
}

// InitIndex creates the index and configures its attributes
func (s *SearchClient) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && !strings.Contains(err.Error(), "index_already_exists") {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"name",
		"address",
		"description",
		"amenities",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"price",
		"type",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"price",
		"created_at",
	})
	return err
}

// Sync upserts p when it is listed and removes it otherwise.
func (s *SearchClient) Sync(ctx context.Context, p *models.Property) error {
	if !Listed(p) {
		return s.Remove(ctx, p.ID)
	}
	_, err := s.client.Index(s.index).AddDocuments([]ListingDocument{NewListingDocument(p)}, "id")
	return err
}

// Remove deletes one document.
func (s *SearchClient) Remove(_ context.Context, id string) error {
	_, err := s.client.Index(s.index).DeleteDocument(id)
	return err
}

// Search returns matching listing ids in relevance order.
func (s *SearchClient) Search(_ context.Context, params FilterParams) ([]string, error) {
	if params.Limit <= 0 {
		params.Limit = 20
	}

	req := &meilisearch.SearchRequest{
		Limit:                params.Limit,
		AttributesToRetrieve: []string{"id"},
	}
	if filter := BuildFilter(params); filter != "" {
		req.Filter = filter
	}

	res, err := s.client.Index(s.index).Search(params.Query, req)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		m, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := m["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// BuildFilter renders the Meilisearch filter expression for params.
func BuildFilter(params FilterParams) string {
	var filters []string

	if params.MinPrice != nil {
		filters = append(filters, fmt.Sprintf("price >= %g", *params.MinPrice))
	}
	if params.MaxPrice != nil {
		filters = append(filters, fmt.Sprintf("price <= %g", *params.MaxPrice))
	}

	if len(params.Types) > 0 {
		typeFilters := make([]string, 0, len(params.Types))
		for _, t := range params.Types {
			if t.Valid() {
				typeFilters = append(typeFilters, fmt.Sprintf("type = '%s'", t))
			}
		}
		if len(typeFilters) > 0 {
			filters = append(filters, fmt.Sprintf("(%s)", strings.Join(typeFilters, " OR ")))
		}
	}

	return strings.Join(filters, " AND ")
}

// Noop is used when no search engine is configured.
type Noop struct{}

func (Noop) Sync(context.Context, *models.Property) error { return nil }

func (Noop) Remove(context.Context, string) error { return nil }

func (Noop) Search(context.Context, FilterParams) ([]string, error) { return nil, nil }
