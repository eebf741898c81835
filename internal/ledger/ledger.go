// Package ledger is the append-only rental history. Records are inserted when a
// property becomes occupied and closed when it is checked out; nothing else
// ever changes them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"gorm.io/gorm"
)

// Entry describes a new occupancy period.
type Entry struct {
	TenantName     string
	AgentName      string
	ContractKey    string
	StartDate      time.Time
	DurationMonths int
}

// Open inserts an open record for p capturing its current price. It must run
// in the same transaction as the status change to Occupied.
func Open(tx *gorm.DB, p *models.Property, e Entry, now time.Time) (*models.RentalHistoryRecord, error) {
	var openCount int64
	if err := tx.Model(&models.RentalHistoryRecord{}).
		Where("property_id = ? AND end_date IS NULL", p.ID).
		Count(&openCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count open records: %w", err)
	}
	if openCount > 0 {
		return nil, apperr.InvalidState("property %s already has an open rental record", p.ID)
	}

	record := &models.RentalHistoryRecord{
		ID:                  uuid.NewString(),
		PropertyID:          p.ID,
		TenantName:          e.TenantName,
		AgentName:           e.AgentName,
		StartDate:           e.StartDate,
		DurationMonths:      e.DurationMonths,
		ContractKey:         e.ContractKey,
		RentPriceAtThatTime: p.Price,
		CreatedAt:           now,
	}
	if err := tx.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to open rental record: %w", err)
	}
	return record, nil
}

// CloseOpen sets end_date on the most recent open record of p. Properties
// occupied before the ledger existed have no open record; one is synthesised
// from the property's occupancy fields and stored already closed.
func CloseOpen(tx *gorm.DB, p *models.Property, end time.Time) (*models.RentalHistoryRecord, error) {
	var record models.RentalHistoryRecord
	err := tx.Where("property_id = ? AND end_date IS NULL", p.ID).
		Order("start_date DESC, created_at DESC").
		First(&record).Error

	switch {
	case err == nil:
		res := tx.Model(&models.RentalHistoryRecord{}).
			Where("id = ? AND end_date IS NULL", record.ID).
			Update("end_date", end)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to close rental record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, apperr.InvalidState("rental record %s was closed concurrently", record.ID)
		}
		record.EndDate = &end
		return &record, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		synth := synthesize(p, end)
		if err := tx.Create(synth).Error; err != nil {
			return nil, fmt.Errorf("failed to write synthesised rental record: %w", err)
		}
		return synth, nil

	default:
		return nil, fmt.Errorf("failed to load open rental record: %w", err)
	}
}

func synthesize(p *models.Property, end time.Time) *models.RentalHistoryRecord {
	start := end
	if p.ContractStartDate != nil {
		start = *p.ContractStartDate
	}
	months := 0
	if p.LeaseDurationMonths != nil {
		months = *p.LeaseDurationMonths
	}
	return &models.RentalHistoryRecord{
		ID:                  uuid.NewString(),
		PropertyID:          p.ID,
		TenantName:          p.TenantName,
		AgentName:           p.AgentName,
		StartDate:           start,
		EndDate:             &end,
		DurationMonths:      months,
		ContractKey:         p.ContractKey,
		RentPriceAtThatTime: p.Price,
		CreatedAt:           end,
	}
}

// Service answers ledger queries.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ListForProperty returns the history of an owned property, most recent first.
func (s *Service) ListForProperty(ctx context.Context, ownerID, propertyID string) ([]models.RentalHistoryRecord, error) {
	var owned int64
	if err := s.db.WithContext(ctx).Model(&models.Property{}).
		Where("id = ? AND owner_id = ?", propertyID, ownerID).
		Count(&owned).Error; err != nil {
		return nil, apperr.Unavailable("storage", err)
	}
	if owned == 0 {
		return nil, apperr.NotFound("property")
	}

	var records []models.RentalHistoryRecord
	if err := s.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("start_date DESC, created_at DESC").
		Find(&records).Error; err != nil {
		return nil, apperr.Unavailable("storage", err)
	}
	return records, nil
}

// OpenRecord returns the open record for propertyID, or nil when none exists.
func (s *Service) OpenRecord(ctx context.Context, propertyID string) (*models.RentalHistoryRecord, error) {
	var record models.RentalHistoryRecord
	err := s.db.WithContext(ctx).
		Where("property_id = ? AND end_date IS NULL", propertyID).
		Order("start_date DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Unavailable("storage", err)
	}
	return &record, nil
}

// CountOpen returns the number of open records across all properties.
func (s *Service) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.RentalHistoryRecord{}).
		Where("end_date IS NULL").
		Count(&n).Error
	return n, err
}
