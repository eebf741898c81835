// Package engagement covers the agent-facing flows around a property: invite
// issuance and acceptance, contact requests, follows and the vacancy scan.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/database"
	"github.com/jesadaho/asset-ace-sub000/internal/metrics"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/jesadaho/asset-ace-sub000/internal/notify"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultInviteTTL = 7 * 24 * time.Hour

type Service struct {
	db            *gorm.DB
	notifier      notify.Notifier
	now           func() time.Time
	inviteBaseURL string
	inviteTTL     time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithInvites sets the base URL embedded in invite links and their lifetime.
func WithInvites(baseURL string, ttl time.Duration) Option {
	return func(s *Service) {
		s.inviteBaseURL = strings.TrimRight(baseURL, "/")
		if ttl > 0 {
			s.inviteTTL = ttl
		}
	}
}

func NewService(db *gorm.DB, notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		db:        db,
		notifier:  notifier,
		now:       database.Now,
		inviteTTL: defaultInviteTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Invite is the link handed to a prospective managing agent.
type Invite struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueInvite creates a single-use invite for a property without an agent.
func (s *Service) IssueInvite(ctx context.Context, ownerID, propertyID, inviteeName string) (*Invite, error) {
	now := s.clock()
	inv := &models.AgentInvite{
		Token:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		PropertyID:  propertyID,
		OwnerID:     ownerID,
		InviteeName: strings.TrimSpace(inviteeName),
		ExpiresAt:   now.Add(s.inviteTTL),
		CreatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadOwned(tx, ownerID, propertyID)
		if err != nil {
			return err
		}
		if p.HasAgent() {
			return apperr.InvalidState("property already has a managing agent")
		}
		if err := tx.Create(inv).Error; err != nil {
			return fmt.Errorf("failed to create invite: %w", err)
		}
		return tx.Model(&models.Property{}).
			Where("id = ?", propertyID).
			Updates(map[string]interface{}{
				"agent_invite_sent_at": now,
				"agent_invitee_name":   inv.InviteeName,
			}).Error
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}

	slog.Info("agent invite issued", "property_id", propertyID, "expires_at", inv.ExpiresAt)
	return &Invite{URL: s.inviteURL(propertyID, inv.Token), Token: inv.Token, ExpiresAt: inv.ExpiresAt}, nil
}

func (s *Service) inviteURL(propertyID, token string) string {
	return fmt.Sprintf("%s/invite/%s?token=%s", s.inviteBaseURL, url.PathEscape(propertyID), url.QueryEscape(token))
}

// AcceptInvite assigns agentID as the managing agent. The token is consumed
// and the property claimed in one transaction, so only one agent can win.
func (s *Service) AcceptInvite(ctx context.Context, agentID, propertyID, token string) (*models.Property, error) {
	agent, err := s.loadUser(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.HasName() {
		return nil, apperr.ProfileIncomplete(apperr.CodeProfileNameRequired, "set a display name before accepting invites")
	}
	if strings.TrimSpace(token) == "" {
		return nil, apperr.Validation("invite token is required")
	}

	now := s.clock()
	var out models.Property
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.AgentInvite
		if err := tx.Where("token = ? AND property_id = ?", token, propertyID).First(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("invite")
			}
			return err
		}
		if !inv.IsUsable(now) {
			return apperr.InvalidState("invite has expired or was already used")
		}

		var p models.Property
		if err := tx.Where("id = ?", propertyID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("property")
			}
			return err
		}
		if p.HasAgent() {
			return apperr.InvalidState("property already has a managing agent")
		}
		if p.OwnerID == agentID {
			return apperr.InvalidState("owners cannot accept their own invite")
		}

		res := tx.Model(&models.AgentInvite{}).
			Where("token = ? AND consumed_at IS NULL", token).
			Updates(map[string]interface{}{"consumed_at": now, "consumed_by": agentID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("invite was already used")
		}

		res = tx.Model(&models.Property{}).
			Where("id = ? AND (agent_line_id = '' OR agent_line_id IS NULL)", propertyID).
			Updates(map[string]interface{}{
				"agent_line_id":        agentID,
				"agent_name":           strings.TrimSpace(agent.DisplayName),
				"agent_invite_sent_at": nil,
				"agent_invitee_name":   "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("property already has a managing agent")
		}
		return tx.Where("id = ?", propertyID).First(&out).Error
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}

	metrics.Transition("accept_invite")
	slog.Info("agent invite accepted", "property_id", propertyID, "agent_id", agentID)
	s.notifier.Notify(out.OwnerID, fmt.Sprintf("%s is now the managing agent for %s.", out.AgentName, out.Name))
	return &out, nil
}

// OwnerContact is returned to agents who request an introduction.
type OwnerContact struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	ChatHandle string `json:"chat_handle,omitempty"`
}

// RequestContact returns the owner's contact details and records the request.
// Repeated requests refresh the existing row.
func (s *Service) RequestContact(ctx context.Context, agentID, propertyID string) (*OwnerContact, error) {
	agent, err := s.loadUser(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.HasName() {
		return nil, apperr.ProfileIncomplete(apperr.CodeProfileNameRequired, "set a display name before requesting contacts")
	}
	if !agent.HasContact() {
		return nil, apperr.ProfileIncomplete(apperr.CodeProfileContactRequired, "set a phone number before requesting contacts")
	}

	var p models.Property
	err = s.db.WithContext(ctx).
		Where("id = ? AND open_for_agent = ?", propertyID, true).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("property")
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}

	ownerProfile, err := s.loadUser(ctx, p.OwnerID)
	if err != nil {
		return nil, err
	}

	req := &models.AgentContactRequest{
		PropertyID:  propertyID,
		AgentID:     agentID,
		AgentName:   strings.TrimSpace(agent.DisplayName),
		AgentPhone:  strings.TrimSpace(agent.Phone),
		RequestedAt: s.clock(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "property_id"}, {Name: "agent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"requested_at", "agent_name", "agent_phone"}),
	}).Create(req).Error
	if err != nil {
		return nil, apperr.Storage(err)
	}

	s.notifier.Notify(p.OwnerID, fmt.Sprintf("Agent %s (%s) asked for your contact about %s.", req.AgentName, req.AgentPhone, p.Name))
	return &OwnerContact{
		Name:       ownerProfile.DisplayName,
		Phone:      ownerProfile.Phone,
		ChatHandle: ownerProfile.ChatHandle,
	}, nil
}

// ListContactRequests returns one row per agent, newest first.
func (s *Service) ListContactRequests(ctx context.Context, ownerID, propertyID string) ([]models.AgentContactRequest, error) {
	if _, err := loadOwned(s.db.WithContext(ctx), ownerID, propertyID); err != nil {
		return nil, apperr.Storage(err)
	}

	var requests []models.AgentContactRequest
	err := s.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("requested_at DESC, id DESC").
		Find(&requests).Error
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return requests, nil
}

// ToggleFollow follows an Occupied property, or unfollows it when already
// following. It returns the resulting state.
func (s *Service) ToggleFollow(ctx context.Context, agentID, propertyID string) (bool, error) {
	following := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Property
		if err := tx.Where("id = ?", propertyID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("property")
			}
			return err
		}
		if p.Status != models.PropertyStatusOccupied {
			return apperr.InvalidState("only occupied properties can be followed")
		}

		res := tx.Where("property_id = ? AND agent_id = ?", propertyID, agentID).Delete(&models.PropertyFollow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		following = true
		return tx.Create(&models.PropertyFollow{
			PropertyID: propertyID,
			AgentID:    agentID,
			CreatedAt:  s.clock(),
		}).Error
	})
	if err != nil {
		return false, apperr.Storage(err)
	}
	return following, nil
}

// IsFollowing reports whether agentID follows propertyID.
func (s *Service) IsFollowing(ctx context.Context, agentID, propertyID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.PropertyFollow{}).
		Where("property_id = ? AND agent_id = ?", propertyID, agentID).
		Count(&n).Error
	if err != nil {
		return false, apperr.Storage(err)
	}
	return n > 0, nil
}

func (s *Service) loadUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.User{ID: userID}, nil
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return &u, nil
}

func loadOwned(tx *gorm.DB, ownerID, id string) (*models.Property, error) {
	var p models.Property
	err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("property")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
