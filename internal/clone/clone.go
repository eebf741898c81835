// Package clone duplicates a property's static attributes into new Draft units.
package clone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/database"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"gorm.io/gorm"
)

const (
	MinBulkCount = 2
	MaxBulkCount = 50
)

// Request is the body of POST /properties/:id/clone. Count 0 or 1 is single mode.
type Request struct {
	Name      string   `json:"name"`
	Count     int      `json:"count"`
	UnitNames []string `json:"unit_names"`
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: database.Now}
}

// WithClock returns a copy using now as its time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	return &Service{db: s.db, now: now}
}

// Clone dispatches to CloneOne or CloneBulk based on req.Count.
func (s *Service) Clone(ctx context.Context, ownerID, sourceID string, req Request) ([]models.Property, error) {
	if req.Count <= 1 && len(req.UnitNames) == 0 {
		p, err := s.CloneOne(ctx, ownerID, sourceID, req.Name)
		if err != nil {
			return nil, err
		}
		return []models.Property{*p}, nil
	}
	return s.CloneBulk(ctx, ownerID, sourceID, req.Count, req.UnitNames)
}

// CloneOne creates a single Draft copy named "<source> (Copy)" unless name is given.
func (s *Service) CloneOne(ctx context.Context, ownerID, sourceID, name string) (*models.Property, error) {
	src, err := s.loadSource(ctx, ownerID, sourceID)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = src.Name + " (Copy)"
	}
	p := copyOf(src, name, s.now().UTC().Truncate(time.Millisecond))
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, apperr.Storage(err)
	}
	slog.Info("property cloned", "source_id", sourceID, "property_id", p.ID)
	return &p, nil
}

// CloneBulk creates count Draft copies in one all-or-nothing insert.
func (s *Service) CloneBulk(ctx context.Context, ownerID, sourceID string, count int, unitNames []string) ([]models.Property, error) {
	if len(unitNames) > 0 && count == 0 {
		count = len(unitNames)
	}
	if count < MinBulkCount || count > MaxBulkCount {
		return nil, apperr.Validation("count must be between %d and %d", MinBulkCount, MaxBulkCount)
	}
	if len(unitNames) > 0 && len(unitNames) != count {
		return nil, apperr.Validation("expected %d unit names, got %d", count, len(unitNames))
	}
	names := make([]string, count)
	for i := range names {
		if len(unitNames) > 0 {
			names[i] = strings.TrimSpace(unitNames[i])
			if names[i] == "" {
				return nil, apperr.Validation("unit name %d is empty", i+1)
			}
		}
	}

	src, err := s.loadSource(ctx, ownerID, sourceID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	clones := make([]models.Property, count)
	for i := range clones {
		name := names[i]
		if name == "" {
			name = fmt.Sprintf("%s (Copy %d)", src.Name, i+1)
		}
		clones[i] = copyOf(src, name, now)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&clones).Error
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}

	slog.Info("property bulk cloned", "source_id", sourceID, "count", count)
	return clones, nil
}

func (s *Service) loadSource(ctx context.Context, ownerID, sourceID string) (*models.Property, error) {
	var src models.Property
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", sourceID, ownerID).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("property")
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return &src, nil
}

// copyOf carries over static attributes only.
func copyOf(src *models.Property, name string, now time.Time) models.Property {
	return models.Property{
		ID:          uuid.NewString(),
		OwnerID:     src.OwnerID,
		Name:        name,
		Type:        src.Type,
		Address:     src.Address,
		Price:       src.Price,
		Description: src.Description,
		Bedrooms:    src.Bedrooms,
		Bathrooms:   src.Bathrooms,
		Area:        src.Area,
		Amenities:   src.Amenities.Clone(),
		PhotoKeys:   models.StringList{},
		Status:      models.PropertyStatusDraft,
		CreatedAt:   now,
	}
}
