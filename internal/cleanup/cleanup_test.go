package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/jesadaho/asset-ace-sub000/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func seedInvites(t *testing.T, db *gorm.DB) {
	t.Helper()
	longAgo := now.AddDate(0, 0, -60)
	recent := now.AddDate(0, 0, -1)
	invites := []models.AgentInvite{
		{Token: "expired-old", PropertyID: "p", OwnerID: "o", ExpiresAt: longAgo, CreatedAt: longAgo},
		{Token: "consumed-old", PropertyID: "p", OwnerID: "o", ExpiresAt: now.AddDate(1, 0, 0), ConsumedAt: &longAgo, CreatedAt: longAgo},
		{Token: "expired-recent", PropertyID: "p", OwnerID: "o", ExpiresAt: recent, CreatedAt: longAgo},
		{Token: "open", PropertyID: "p", OwnerID: "o", ExpiresAt: now.AddDate(0, 0, 7), CreatedAt: recent},
	}
	require.NoError(t, db.Create(&invites).Error)
}

func newTestService(db *gorm.DB) *Service {
	s := NewService(db)
	s.now = func() time.Time { return now }
	return s
}

func TestPurgeInvites(t *testing.T) {
	db := testutil.NewDB(t)
	seedInvites(t, db)
	svc := newTestService(db)

	res, err := svc.PurgeInvites(context.Background(), CleanupConfig{RetentionDays: 30, MaxDeletionCount: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TargetCount)
	assert.Equal(t, 2, res.DeletedCount)
	assert.ElementsMatch(t, []string{"expired-old", "consumed-old"}, res.DeletedTokens)

	var left []string
	require.NoError(t, db.Model(&models.AgentInvite{}).Order("token").Pluck("token", &left).Error)
	assert.Equal(t, []string{"expired-recent", "open"}, left)

	stats, err := svc.GetInviteStats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats["open"])
	assert.EqualValues(t, 1, stats["expired"])
	assert.EqualValues(t, 0, stats["consumed"])
}

func TestPurgeInvites_DryRunAndSafetyLimit(t *testing.T) {
	db := testutil.NewDB(t)
	seedInvites(t, db)
	svc := newTestService(db)

	res, err := svc.PurgeInvites(context.Background(), CleanupConfig{RetentionDays: 30, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.DeletedCount)

	_, err = svc.PurgeInvites(context.Background(), CleanupConfig{RetentionDays: 0, MaxDeletionCount: 2})
	assert.ErrorIs(t, err, ErrSafetyLimit)

	var count int64
	require.NoError(t, db.Model(&models.AgentInvite{}).Count(&count).Error)
	assert.EqualValues(t, 4, count)
}
