// Package profile stores the per-user profile attached to a chat identity.
package profile

import (
	"context"
	"errors"
	"strings"

	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpdateRequest is the body of PUT /me/profile. Nil fields are left unchanged.
type UpdateRequest struct {
	Role          *models.UserRole `json:"role"`
	DisplayName   *string          `json:"display_name"`
	Phone         *string          `json:"phone"`
	ChatHandle    *string          `json:"chat_handle"`
	NotifyEnabled *bool            `json:"notify_enabled"`
}

func (r *UpdateRequest) Validate() error {
	if r.Role != nil && !r.Role.Valid() {
		return apperr.Validation("role must be owner, agent or tenant")
	}
	if r.DisplayName != nil && len(strings.TrimSpace(*r.DisplayName)) > 255 {
		return apperr.Validation("display name is too long")
	}
	return nil
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get returns the profile, or a blank owner profile when none is stored yet.
func (s *Service) Get(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.User{ID: userID, Role: models.UserRoleOwner, NotifyEnabled: true}, nil
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return &u, nil
}

// Update applies req, creating the profile on first write.
func (s *Service) Update(ctx context.Context, userID string, req UpdateRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	if req.DisplayName != nil {
		u.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Phone != nil {
		u.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.ChatHandle != nil {
		u.ChatHandle = strings.TrimSpace(*req.ChatHandle)
	}
	if req.NotifyEnabled != nil {
		u.NotifyEnabled = *req.NotifyEnabled
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "display_name", "phone", "chat_handle", "notify_enabled", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return s.Get(ctx, userID)
}
