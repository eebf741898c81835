package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jesadaho/asset-ace-sub000/internal/database"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"gorm.io/gorm"
)

// Service purges agent invites that can no longer be accepted
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates a new cleanup service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: database.Now}
}

// ErrSafetyLimit is returned when a purge would delete more than MaxDeletionCount invites.
var ErrSafetyLimit = errors.New("safety check failed")

// CleanupConfig holds configuration for cleanup operations
type CleanupConfig struct {
	RetentionDays    int  // Days to keep expired or consumed invites before deletion
	MaxDeletionCount int  // Maximum number of invites to delete in one run (safety limit)
	DryRun           bool // If true, only log what would be deleted
}

// DefaultCleanupConfig returns default configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		RetentionDays:    30,
		MaxDeletionCount: 10000,
		DryRun:           false,
	}
}

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	TargetCount   int       `json:"target_count"`
	DeletedCount  int       `json:"deleted_count"`
	DryRun        bool      `json:"dry_run"`
	ExecutedAt    time.Time `json:"executed_at"`
	DeletedTokens []string  `json:"deleted_tokens,omitempty"`
}

// FindStaleInvites returns invites that expired, or were consumed, before the
// retention cutoff.
func (s *Service) FindStaleInvites(ctx context.Context, retentionDays int) ([]models.AgentInvite, error) {
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	var invites []models.AgentInvite
	err := s.db.WithContext(ctx).
		Where("expires_at < ? OR (consumed_at IS NOT NULL AND consumed_at < ?)", cutoff, cutoff).
		Order("created_at ASC").
		Find(&invites).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stale invites: %w", err)
	}
	return invites, nil
}

// PurgeInvites deletes stale invites in one transaction.
func (s *Service) PurgeInvites(ctx context.Context, config CleanupConfig) (*CleanupResult, error) {
	result := &CleanupResult{
		DryRun:     config.DryRun,
		ExecutedAt: s.now(),
	}

	stale, err := s.FindStaleInvites(ctx, config.RetentionDays)
	if err != nil {
		return nil, err
	}
	result.TargetCount = len(stale)
	if result.TargetCount == 0 {
		slog.Info("no stale invites to purge")
		return result, nil
	}

	// Safety check: abort if too many invites would be deleted
	if config.MaxDeletionCount > 0 && result.TargetCount > config.MaxDeletionCount {
		return nil, fmt.Errorf("%w: %d invites exceed max deletion limit of %d",
			ErrSafetyLimit, result.TargetCount, config.MaxDeletionCount)
	}

	tokens := make([]string, 0, len(stale))
	for _, inv := range stale {
		tokens = append(tokens, inv.Token)
	}

	if config.DryRun {
		slog.Info("[DRY-RUN] would purge invites", "count", len(tokens), "retention_days", config.RetentionDays)
		result.DeletedTokens = tokens
		result.DeletedCount = len(tokens)
		return result, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("token IN ?", tokens).Delete(&models.AgentInvite{})
		if res.Error != nil {
			return res.Error
		}
		result.DeletedCount = int(res.RowsAffected)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to purge invites: %w", err)
	}

	result.DeletedTokens = tokens
	slog.Info("invite cleanup completed", "deleted", result.DeletedCount, "target", result.TargetCount)
	return result, nil
}

// GetInviteStats returns counts of open, consumed and expired invites
func (s *Service) GetInviteStats(ctx context.Context) (map[string]int64, error) {
	now := s.now()
	stats := make(map[string]int64)

	var open, consumed, expired int64
	if err := s.db.WithContext(ctx).Model(&models.AgentInvite{}).
		Where("consumed_at IS NULL AND expires_at >= ?", now).
		Count(&open).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.AgentInvite{}).
		Where("consumed_at IS NOT NULL").
		Count(&consumed).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.AgentInvite{}).
		Where("consumed_at IS NULL AND expires_at < ?", now).
		Count(&expired).Error; err != nil {
		return nil, err
	}

	stats["open"] = open
	stats["consumed"] = consumed
	stats["expired"] = expired
	return stats, nil
}
