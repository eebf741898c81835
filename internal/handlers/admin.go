package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/cleanup"
	"github.com/jesadaho/asset-ace-sub000/internal/ledger"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/jesadaho/asset-ace-sub000/internal/notify"
	"github.com/jesadaho/asset-ace-sub000/internal/property"
	"github.com/jesadaho/asset-ace-sub000/internal/ratelimit"
	"github.com/jesadaho/asset-ace-sub000/internal/scheduler"
	"gorm.io/gorm"
)

// NotificationStats exposes dispatcher counters.
type NotificationStats interface {
	Stats() notify.Stats
}

// AdminHandler handles admin-related requests
type AdminHandler struct {
	db             *gorm.DB
	scheduler      *scheduler.Scheduler
	cleanupService *cleanup.Service
	ledger         *ledger.Service
	properties     *property.Service
	notifications  NotificationStats
	limiter        *ratelimit.RateLimiter
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db *gorm.DB, sched *scheduler.Scheduler, properties *property.Service, notifications NotificationStats, limiter *ratelimit.RateLimiter) *AdminHandler {
	return &AdminHandler{
		db:             db,
		scheduler:      sched,
		cleanupService: cleanup.NewService(db),
		ledger:         ledger.NewService(db),
		properties:     properties,
		notifications:  notifications,
		limiter:        limiter,
	}
}

// GetStats returns system statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := make(map[string]interface{})

	// Property counts by status
	var rows []struct {
		Status models.PropertyStatus
		Count  int64
	}
	if err := h.db.WithContext(ctx).Model(&models.Property{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		respondError(c, apperr.Storage(err))
		return
	}
	byStatus := map[string]int64{
		string(models.PropertyStatusDraft):     0,
		string(models.PropertyStatusAvailable): 0,
		string(models.PropertyStatusOccupied):  0,
	}
	var total int64
	for _, r := range rows {
		byStatus[string(r.Status)] = r.Count
		total += r.Count
	}
	stats["properties"] = map[string]interface{}{
		"by_status": byStatus,
		"total":     total,
	}

	openLeases, err := h.ledger.CountOpen(ctx)
	if err != nil {
		slog.Warn("failed to count open rental records", "error", err)
	} else {
		stats["open_rental_records"] = openLeases
	}

	inviteStats, err := h.cleanupService.GetInviteStats(ctx)
	if err != nil {
		slog.Warn("failed to get invite stats", "error", err)
	} else {
		stats["invites"] = inviteStats
	}

	if h.notifications != nil {
		stats["notifications"] = h.notifications.Stats()
	}
	if h.limiter != nil {
		stats["rate_limit"] = h.limiter.GetStats()
	}

	c.JSON(http.StatusOK, stats)
}

// RunVacancyScan runs the vacancy scan synchronously and reports its counts
func (h *AdminHandler) RunVacancyScan(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not available", "code": "UNAVAILABLE"})
		return
	}

	slog.Info("admin: manual vacancy scan requested")
	result, err := h.scheduler.RunVacancyScan(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type cleanupRequest struct {
	RetentionDays    *int `json:"retention_days"`
	MaxDeletionCount *int `json:"max_deletion_count"`
	DryRun           bool `json:"dry_run"`
}

// RunInviteCleanup purges expired and consumed invites
func (h *AdminHandler) RunInviteCleanup(c *gin.Context) {
	var req cleanupRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	cfg := cleanup.DefaultCleanupConfig()
	cfg.DryRun = req.DryRun
	if req.RetentionDays != nil {
		if *req.RetentionDays < 0 {
			respondError(c, apperr.Validation("retention_days must not be negative"))
			return
		}
		cfg.RetentionDays = *req.RetentionDays
	}
	if req.MaxDeletionCount != nil {
		cfg.MaxDeletionCount = *req.MaxDeletionCount
	}

	result, err := h.cleanupService.PurgeInvites(c.Request.Context(), cfg)
	if errors.Is(err, cleanup.ErrSafetyLimit) {
		respondError(c, apperr.InvalidState("%v", err))
		return
	}
	if err != nil {
		respondError(c, apperr.Storage(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// Reindex pushes every property into the search index
func (h *AdminHandler) Reindex(c *gin.Context) {
	synced, err := h.properties.Reindex(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": synced})
}
