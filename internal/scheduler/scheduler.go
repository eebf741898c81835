package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jesadaho/asset-ace-sub000/internal/cleanup"
	"github.com/jesadaho/asset-ace-sub000/internal/config"
	"github.com/jesadaho/asset-ace-sub000/internal/engagement"
	"github.com/robfig/cron/v3"
)

// VacancyScanner runs one vacancy scan.
type VacancyScanner interface {
	ScanVacancies(ctx context.Context) (*engagement.ScanResult, error)
}

// InvitePurger removes stale invites.
type InvitePurger interface {
	PurgeInvites(ctx context.Context, cfg cleanup.CleanupConfig) (*cleanup.CleanupResult, error)
}

// Sweeper drops idle state, e.g. rate limiter keys.
type Sweeper interface {
	Sweep() int
}

// Scheduler handles the daily vacancy scan and housekeeping jobs
type Scheduler struct {
	cron      *cron.Cron
	config    config.SchedulerConfig
	scanner   VacancyScanner
	purger    InvitePurger
	sweeper   Sweeper
	isRunning bool
}

// NewScheduler creates a new scheduler. purger and sweeper may be nil.
func NewScheduler(cfg config.SchedulerConfig, scanner VacancyScanner, purger InvitePurger, sweeper Sweeper) *Scheduler {
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			slog.Warn("scheduler: unknown timezone, using UTC", "timezone", cfg.Timezone, "error", err)
		}
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		config:  cfg,
		scanner: scanner,
		purger:  purger,
		sweeper: sweeper,
	}
}

// Start registers the enabled jobs and starts the cron loop
func (s *Scheduler) Start() error {
	if s.config.VacancyScanEnabled && s.scanner != nil {
		spec := parseDailyRunTime(s.config.VacancyScanTime, "09:00")
		if _, err := s.cron.AddFunc(spec, func() {
			if _, err := s.RunVacancyScan(context.Background()); err != nil {
				slog.Error("scheduler: vacancy scan failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule vacancy scan: %w", err)
		}
		slog.Info("scheduler: vacancy scan scheduled", "at", s.config.VacancyScanTime, "cron", spec)
	}

	if s.config.CleanupEnabled && s.purger != nil {
		spec := parseDailyRunTime(s.config.CleanupTime, "03:30")
		if _, err := s.cron.AddFunc(spec, func() {
			if _, err := s.purger.PurgeInvites(context.Background(), cleanup.DefaultCleanupConfig()); err != nil {
				slog.Error("scheduler: invite cleanup failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule invite cleanup: %w", err)
		}
		slog.Info("scheduler: invite cleanup scheduled", "at", s.config.CleanupTime, "cron", spec)
	}

	if s.sweeper != nil {
		if _, err := s.cron.AddFunc("@hourly", func() {
			if n := s.sweeper.Sweep(); n > 0 {
				slog.Debug("scheduler: swept idle rate limit keys", "count", n)
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.isRunning = true
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		slog.Info("scheduler: stopped")
	}
}

// RunVacancyScan runs the scan immediately (manual trigger and CLI)
func (s *Scheduler) RunVacancyScan(ctx context.Context) (*engagement.ScanResult, error) {
	slog.Info("scheduler: starting vacancy scan")
	return s.scanner.ScanVacancies(ctx)
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// parseDailyRunTime converts HH:MM format to cron specification
// Example: "09:00" -> "0 9 * * *"
func parseDailyRunTime(timeStr, fallback string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	slog.Warn("scheduler: failed to parse time, using default", "value", timeStr, "default", fallback)
	fmt.Sscanf(fallback, "%d:%d", &hour, &minute)
	return fmt.Sprintf("%d %d * * *", minute, hour)
}
