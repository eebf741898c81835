package profile

import (
	"context"
	"testing"

	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/jesadaho/asset-ace-sub000/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestGet_DefaultsWhenMissing(t *testing.T) {
	svc := NewService(testutil.NewDB(t))
	u, err := svc.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "U1", u.ID)
	assert.Equal(t, models.UserRoleOwner, u.Role)
	assert.False(t, u.HasName())
}

func TestUpdate_CreatesThenPatches(t *testing.T) {
	svc := NewService(testutil.NewDB(t))
	ctx := context.Background()

	u, err := svc.Update(ctx, "U1", UpdateRequest{
		Role:        ptr(models.UserRoleAgent),
		DisplayName: ptr("  Ploy "),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ploy", u.DisplayName)
	assert.Equal(t, models.UserRoleAgent, u.Role)
	assert.False(t, u.HasContact())

	u, err = svc.Update(ctx, "U1", UpdateRequest{Phone: ptr("089-123-4567"), NotifyEnabled: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Ploy", u.DisplayName)
	assert.True(t, u.HasContact())
	assert.False(t, u.NotifyEnabled)

	_, err = svc.Update(ctx, "U1", UpdateRequest{Role: ptr(models.UserRole("admin"))})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}
