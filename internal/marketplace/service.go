// Package marketplace serves the agent-facing listing search over properties
// that are Available and open for agents.
package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/metrics"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/jesadaho/asset-ace-sub000/internal/objectstore"
	"github.com/jesadaho/asset-ace-sub000/internal/search"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
	countKeyPrefix  = "marketplace:count"
)

// Query holds the marketplace filters. Nil prices mean unbounded.
type Query struct {
	Location string   `form:"location"`
	MinPrice *float64 `form:"min_price"`
	MaxPrice *float64 `form:"max_price"`
	PageSize int      `form:"page_size"`
	Cursor   string   `form:"cursor"`
}

// Listing is the public view of an open property.
type Listing struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Type        models.PropertyType `json:"type"`
	Address     string              `json:"address"`
	Price       float64             `json:"price"`
	Description string              `json:"description,omitempty"`
	Bedrooms    string              `json:"bedrooms,omitempty"`
	Bathrooms   string              `json:"bathrooms,omitempty"`
	Area        string              `json:"area,omitempty"`
	Amenities   []string            `json:"amenities"`
	PhotoURLs   []string            `json:"photo_urls"`
	Reserved    bool                `json:"reserved"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Page is one page of results. TotalCount is only set on the first page.
type Page struct {
	Items      []Listing `json:"items"`
	HasMore    bool      `json:"has_more"`
	NextCursor string    `json:"next_cursor,omitempty"`
	TotalCount *int64    `json:"total_count,omitempty"`
}

type Service struct {
	db    *gorm.DB
	store objectstore.Gateway
	cache CountCache
	index search.Index
}

type Option func(*Service)

// WithPhotoStore resolves photo keys into download URLs.
func WithPhotoStore(g objectstore.Gateway) Option {
	return func(s *Service) { s.store = g }
}

// WithCountCache caches first-page totals.
func WithCountCache(c CountCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithIndex enables FullText.
func WithIndex(idx search.Index) Option {
	return func(s *Service) {
		if idx != nil {
			s.index = idx
		}
	}
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, index: search.Noop{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (q *Query) normalize() error {
	q.Location = strings.TrimSpace(q.Location)
	if q.MinPrice != nil && *q.MinPrice < 0 {
		return apperr.Validation("min_price must not be negative")
	}
	if q.MaxPrice != nil && *q.MaxPrice < 0 {
		return apperr.Validation("max_price must not be negative")
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return apperr.Validation("min_price must not exceed max_price")
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	return nil
}

func (q *Query) filters() map[string]string {
	params := map[string]string{"location": strings.ToLower(q.Location)}
	if q.MinPrice != nil {
		params["min_price"] = fmt.Sprintf("%g", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		params["max_price"] = fmt.Sprintf("%g", *q.MaxPrice)
	}
	return params
}

func (s *Service) filtered(ctx context.Context, q Query) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&models.Property{}).
		Where("status = ? AND open_for_agent = ?", models.PropertyStatusAvailable, true)
	if q.Location != "" {
		tx = tx.Where("LOWER(address) LIKE ?", "%"+strings.ToLower(q.Location)+"%")
	}
	if q.MinPrice != nil {
		tx = tx.Where("price >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		tx = tx.Where("price <= ?", *q.MaxPrice)
	}
	return tx
}

// Search returns one page ordered by created_at DESC, id DESC.
func (s *Service) Search(ctx context.Context, q Query) (*Page, error) {
	start := time.Now()
	defer func() { metrics.MarketplaceQueryDuration.Observe(time.Since(start).Seconds()) }()

	if err := q.normalize(); err != nil {
		return nil, err
	}

	tx := s.filtered(ctx, q)
	if q.Cursor != "" {
		c, err := DecodeCursor(q.Cursor)
		if err != nil {
			return nil, apperr.Validation("invalid cursor")
		}
		tx = tx.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var rows []models.Property
	if err := tx.Order("created_at DESC, id DESC").Limit(q.PageSize + 1).Find(&rows).Error; err != nil {
		return nil, apperr.Storage(err)
	}

	page := &Page{Items: make([]Listing, 0, q.PageSize)}
	if len(rows) > q.PageSize {
		page.HasMore = true
		rows = rows[:q.PageSize]
	}
	for i := range rows {
		page.Items = append(page.Items, s.toListing(ctx, &rows[i]))
	}
	if page.HasMore {
		last := rows[len(rows)-1]
		page.NextCursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}

	if q.Cursor == "" {
		total, err := s.count(ctx, q)
		if err != nil {
			return nil, err
		}
		page.TotalCount = &total
	}
	return page, nil
}

func (s *Service) count(ctx context.Context, q Query) (int64, error) {
	key := GenerateQueryCacheKey(countKeyPrefix, q.filters())
	if s.cache != nil {
		if n, ok, err := s.cache.GetCount(ctx, key); err != nil {
			slog.Warn("count cache read failed", "error", err)
		} else if ok {
			return n, nil
		}
	}

	var total int64
	if err := s.filtered(ctx, q).Count(&total).Error; err != nil {
		return 0, apperr.Storage(err)
	}

	if s.cache != nil {
		if err := s.cache.SetCount(ctx, key, total); err != nil {
			slog.Warn("count cache write failed", "error", err)
		}
	}
	return total, nil
}

// FullTextQuery is a free-text marketplace query with optional filters.
type FullTextQuery struct {
	Text     string                `form:"q"`
	MinPrice *float64              `form:"min_price"`
	MaxPrice *float64              `form:"max_price"`
	Types    []models.PropertyType `form:"type"`
	Limit    int                   `form:"limit"`
}

// FullText runs a free-text query against the listing index and returns the
// hits that are still open, in relevance order.
func (s *Service) FullText(ctx context.Context, q FullTextQuery) ([]Listing, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, apperr.Validation("q is required")
	}
	limit := q.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	for _, t := range q.Types {
		if !t.Valid() {
			return nil, apperr.Validation("unknown type %q", t)
		}
	}

	ids, err := s.index.Search(ctx, search.FilterParams{
		Query:    text,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		Types:    q.Types,
		Limit:    int64(limit),
	})
	if err != nil {
		return nil, apperr.Unavailable("search", err)
	}
	if len(ids) == 0 {
		return []Listing{}, nil
	}

	var rows []models.Property
	err = s.db.WithContext(ctx).
		Where("id IN ? AND status = ? AND open_for_agent = ?", ids, models.PropertyStatusAvailable, true).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Storage(err)
	}

	byID := make(map[string]*models.Property, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	out := make([]Listing, 0, len(rows))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, s.toListing(ctx, p))
		}
	}
	return out, nil
}

func (s *Service) toListing(ctx context.Context, p *models.Property) Listing {
	urls := objectstore.ResolveURLs(ctx, s.store, p.PhotoKeys)
	if urls == nil {
		urls = []string{}
	}
	amenities := []string(p.Amenities)
	if amenities == nil {
		amenities = []string{}
	}
	return Listing{
		ID:          p.ID,
		Name:        p.Name,
		Type:        p.Type,
		Address:     p.Address,
		Price:       p.Price,
		Description: p.Description,
		Bedrooms:    p.Bedrooms,
		Bathrooms:   p.Bathrooms,
		Area:        p.Area,
		Amenities:   amenities,
		PhotoURLs:   urls,
		Reserved:    p.IsReserved(),
		CreatedAt:   p.CreatedAt,
	}
}
