package engagement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/metrics"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"gorm.io/gorm"
)

// Vacancy window in whole days before the contract end.
const (
	VacancyWindowMinDays = 29
	VacancyWindowMaxDays = 31
)

// ScanResult summarises one vacancy scan.
type ScanResult struct {
	Scanned      int `json:"scanned"`
	Notified     int `json:"notified"`
	MessagesSent int `json:"messages_sent"`
	Failed       int `json:"failed"`
}

// ScanVacancies notifies followers of Occupied properties whose contract ends
// 29 to 31 days from today. Each property is announced at most once per tenancy;
// re-running the scan is safe.
func (s *Service) ScanVacancies(ctx context.Context) (*ScanResult, error) {
	var properties []models.Property
	err := s.db.WithContext(ctx).
		Where("status = ? AND contract_start_date IS NOT NULL AND lease_duration_months IS NOT NULL", models.PropertyStatusOccupied).
		Find(&properties).Error
	if err != nil {
		return nil, apperr.Storage(err)
	}

	now := s.clock()
	result := &ScanResult{Scanned: len(properties)}
	for i := range properties {
		p := &properties[i]
		if p.VacancyNotified30DayAt != nil {
			continue
		}
		end := p.ContractEndDate()
		if end == nil {
			continue
		}
		days := DaysUntil(now, *end)
		if days < VacancyWindowMinDays || days > VacancyWindowMaxDays {
			continue
		}

		sent, err := s.announceVacancy(ctx, p, *end, now)
		if err != nil {
			result.Failed++
			slog.Error("vacancy notice failed", "property_id", p.ID, "error", err)
			continue
		}
		if sent < 0 {
			// another scan claimed it first
			continue
		}
		result.Notified++
		result.MessagesSent += sent
		metrics.VacancyNoticesTotal.Inc()
	}

	slog.Info("vacancy scan finished",
		"scanned", result.Scanned, "notified", result.Notified, "messages", result.MessagesSent, "failed", result.Failed)
	return result, nil
}

// announceVacancy claims the marker and loads followers in one transaction,
// then notifies them. It returns -1 when the marker was already set. A failed
// follower load rolls the marker back so the next scan retries.
func (s *Service) announceVacancy(ctx context.Context, p *models.Property, end, now time.Time) (int, error) {
	var agentIDs []string
	claimed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Property{}).
			Where("id = ? AND status = ? AND vacancy_notified_30_day_at IS NULL", p.ID, models.PropertyStatusOccupied).
			Update("vacancy_notified_30_day_at", now)
		if res.Error != nil {
			return fmt.Errorf("failed to claim vacancy marker: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		claimed = true
		if err := tx.Model(&models.PropertyFollow{}).
			Where("property_id = ?", p.ID).
			Pluck("agent_id", &agentIDs).Error; err != nil {
			return fmt.Errorf("failed to load followers: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !claimed {
		return -1, nil
	}

	text := fmt.Sprintf("%s becomes vacant on %s.", p.Name, end.Format("2006-01-02"))
	if p.Address != "" {
		text = fmt.Sprintf("%s (%s) becomes vacant on %s.", p.Name, p.Address, end.Format("2006-01-02"))
	}
	for _, agentID := range agentIDs {
		s.notifier.Notify(agentID, text)
	}
	return len(agentIDs), nil
}

// DaysUntil returns the number of calendar days from now's date to end's date (UTC).
func DaysUntil(now, end time.Time) int {
	from := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(end.UTC().Year(), end.UTC().Month(), end.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
