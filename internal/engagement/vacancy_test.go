package engagement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func (f *fixture) occupied(t *testing.T, id string, start time.Time, months int) {
	t.Helper()
	p := f.property(t, id, models.PropertyStatusOccupied, false)
	require.NoError(t, f.db.Model(p).Updates(map[string]interface{}{
		"tenant_name":           "Tenant " + id,
		"contract_start_date":   start,
		"lease_duration_months": months,
	}).Error)
}

func (f *fixture) follow(t *testing.T, propertyID string, agents ...string) {
	t.Helper()
	for _, a := range agents {
		require.NoError(t, f.db.Create(&models.PropertyFollow{PropertyID: propertyID, AgentID: a, CreatedAt: f.clock.Now()}).Error)
	}
}

func TestScanVacancies_NotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(time.Date(2024, 12, 2, 9, 0, 0, 0, time.UTC))

	// ends 2025-01-01, 30 days after 2024-12-02
	f.occupied(t, "ending", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 12)
	f.follow(t, "ending", agentA, agentB)

	// ends well outside the window
	f.occupied(t, "later", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 12)
	f.follow(t, "later", agentA)

	first, err := f.svc.ScanVacancies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Scanned)
	assert.Equal(t, 1, first.Notified)
	assert.Equal(t, 2, first.MessagesSent)
	assert.Len(t, f.notifier.To(agentA), 1)
	assert.Len(t, f.notifier.To(agentB), 1)
	assert.Contains(t, f.notifier.To(agentA)[0].Text, "2025-01-01")

	f.clock.Advance(3 * time.Hour)
	second, err := f.svc.ScanVacancies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Notified)
	assert.Equal(t, 0, second.MessagesSent)
	assert.Len(t, f.notifier.Messages(), 2)

	var p models.Property
	require.NoError(t, f.db.First(&p, "id = ?", "ending").Error)
	assert.NotNil(t, p.VacancyNotified30DayAt)
}

func TestScanVacancies_RetriesAfterFollowerLoadFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(time.Date(2024, 12, 2, 9, 0, 0, 0, time.UTC))
	f.occupied(t, "ending", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 12)
	f.follow(t, "ending", agentA)

	failFollows := true
	require.NoError(t, f.db.Callback().Query().Before("gorm:query").Register("test:fail_follows", func(tx *gorm.DB) {
		if failFollows && tx.Statement.Table == "property_follows" {
			_ = tx.AddError(errors.New("follower table unavailable"))
		}
	}))

	first, err := f.svc.ScanVacancies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, 0, first.Notified)
	assert.Empty(t, f.notifier.Messages())
	assert.Nil(t, f.reload(t, "ending").VacancyNotified30DayAt)

	failFollows = false
	second, err := f.svc.ScanVacancies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, 1, second.Notified)
	assert.Len(t, f.notifier.To(agentA), 1)
	assert.NotNil(t, f.reload(t, "ending").VacancyNotified30DayAt)
}

func TestScanVacancies_WindowEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f.clock.Set(today)

	// one-year leases ending 28, 29, 31 and 32 days from today
	for _, days := range []int{28, 29, 31, 32} {
		end := today.AddDate(0, 0, days)
		start := end.AddDate(-1, 0, 0)
		id := end.Format("0102")
		f.occupied(t, id, start, 12)
		f.follow(t, id, agentA)
	}

	res, err := f.svc.ScanVacancies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Scanned)
	assert.Equal(t, 2, res.Notified)
	assert.Equal(t, 2, res.MessagesSent)
}

func TestScanVacancies_NoFollowersStillClaimsMarker(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC))
	f.occupied(t, "lonely", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 12)

	res, err := f.svc.ScanVacancies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notified)
	assert.Equal(t, 0, res.MessagesSent)
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2024, 1, 31, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysUntil(now, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, DaysUntil(now, now))
	assert.Equal(t, -1, DaysUntil(now, time.Date(2024, 1, 30, 12, 0, 0, 0, time.UTC)))
}
