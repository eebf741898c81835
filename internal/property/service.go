// Package property implements the property lifecycle: Draft → Available ⇄
// Occupied with an orthogonal reservation flag on Available. Transitions into
// and out of Occupied write the rental history ledger in the same transaction.
package property

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/database"
	"github.com/jesadaho/asset-ace-sub000/internal/ledger"
	"github.com/jesadaho/asset-ace-sub000/internal/metrics"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/jesadaho/asset-ace-sub000/internal/notify"
	"github.com/jesadaho/asset-ace-sub000/internal/search"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	notifier notify.Notifier
	index    search.Index
	now      func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIndex enables marketplace index syncing.
func WithIndex(idx search.Index) Option {
	return func(s *Service) {
		if idx != nil {
			s.index = idx
		}
	}
}

func NewService(db *gorm.DB, notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		db:       db,
		notifier: notifier,
		index:    search.Noop{},
		now:      database.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Create inserts a new Draft property, or Available when req.Publish is set.
func (s *Service) Create(ctx context.Context, ownerID string, req CreateRequest) (*models.Property, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	status := models.PropertyStatusDraft
	if req.Publish {
		status = models.PropertyStatusAvailable
	}

	p := &models.Property{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Name:          req.Name,
		Type:          req.Type,
		Address:       req.Address,
		Price:         req.Price,
		Description:   req.Description,
		Bedrooms:      req.Bedrooms,
		Bathrooms:     req.Bathrooms,
		Area:          req.Area,
		Amenities:     models.StringList(req.Amenities),
		PhotoKeys:     models.StringList(req.PhotoKeys),
		Status:        status,
		OpenForAgent:  req.OpenForAgent,
		PublicListing: req.PublicListing,
		CreatedAt:     s.clock(),
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, apperr.Storage(err)
	}

	slog.Info("property created", "property_id", p.ID, "owner_id", ownerID, "status", p.Status)
	s.syncIndex(ctx, p)
	return p, nil
}

// Get returns a property visible to userID: its owner or its assigned agent.
func (s *Service) Get(ctx context.Context, userID, id string) (*models.Property, error) {
	var p models.Property
	err := s.db.WithContext(ctx).
		Where("id = ? AND (owner_id = ? OR agent_line_id = ?)", id, userID, userID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("property")
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return &p, nil
}

// ListMine lists the owner's properties, newest first, optionally by status.
func (s *Service) ListMine(ctx context.Context, ownerID string, status string) ([]models.Property, error) {
	q := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if status != "" {
		st := models.PropertyStatus(status)
		if !st.Valid() {
			return nil, apperr.Validation("unknown status %q", status)
		}
		q = q.Where("status = ?", st)
	}

	var properties []models.Property
	if err := q.Order("created_at DESC, id DESC").Find(&properties).Error; err != nil {
		return nil, apperr.Storage(err)
	}
	return properties, nil
}

// ListManaged lists Occupied properties the agent is assigned to.
func (s *Service) ListManaged(ctx context.Context, agentID string) ([]models.Property, error) {
	var properties []models.Property
	err := s.db.WithContext(ctx).
		Where("agent_line_id = ?", agentID).
		Order("created_at DESC, id DESC").
		Find(&properties).Error
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return properties, nil
}

// Update edits descriptive fields and flags. Occupied properties are frozen
// except through AgentUpdate.
func (s *Service) Update(ctx context.Context, ownerID, id string, req UpdateRequest) (*models.Property, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	updates := req.updates()
	if len(updates) == 0 {
		return nil, apperr.Validation("nothing to update")
	}

	var out *models.Property
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadOwned(tx, ownerID, id)
		if err != nil {
			return err
		}
		if p.Status == models.PropertyStatusOccupied {
			return apperr.InvalidState("property is occupied")
		}

		res := tx.Model(&models.Property{}).
			Where("id = ? AND owner_id = ? AND status = ?", id, ownerID, p.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("property changed concurrently")
		}
		out, err = reload(tx, id)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}

	s.syncIndex(ctx, out)
	return out, nil
}

// Delete removes a non-occupied property with its follows, contact requests
// and invites. Rental history is retained.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadOwned(tx, ownerID, id)
		if err != nil {
			return err
		}
		if p.Status == models.PropertyStatusOccupied {
			return apperr.InvalidState("cannot delete an occupied property")
		}

		res := tx.Where("id = ? AND owner_id = ? AND status <> ?", id, ownerID, models.PropertyStatusOccupied).
			Delete(&models.Property{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("property changed concurrently")
		}

		for _, companion := range []interface{}{&models.PropertyFollow{}, &models.AgentContactRequest{}, &models.AgentInvite{}} {
			if err := tx.Where("property_id = ?", id).Delete(companion).Error; err != nil {
				return fmt.Errorf("failed to delete companion rows: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Storage(err)
	}

	slog.Info("property deleted", "property_id", id, "owner_id", ownerID)
	if err := s.index.Remove(ctx, id); err != nil {
		slog.Warn("search index remove failed", "property_id", id, "error", err)
	}
	return nil
}

// Publish moves Draft to Available. Publishing an Available property is a no-op.
func (s *Service) Publish(ctx context.Context, ownerID, id string) (*models.Property, error) {
	var out *models.Property
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadOwned(tx, ownerID, id)
		if err != nil {
			return err
		}
		switch p.Status {
		case models.PropertyStatusAvailable:
			out = p
			return nil
		case models.PropertyStatusOccupied:
			return apperr.InvalidState("cannot publish an occupied property")
		}

		if err := casStatus(tx, ownerID, id, models.PropertyStatusDraft, map[string]interface{}{
			"status": models.PropertyStatusAvailable,
		}); err != nil {
			return err
		}
		out, err = reload(tx, id)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}

	metrics.Transition("publish")
	s.syncIndex(ctx, out)
	return out, nil
}

// Reserve marks an Available, unreserved property as reserved and tells its
// followers it is no longer on offer.
func (s *Service) Reserve(ctx context.Context, ownerID, id string, req ReserveRequest) (*models.Property, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.clock()
	var out *models.Property
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadOwned(tx, ownerID, id)
		if err != nil {
			return err
		}
		if p.Status != models.PropertyStatusAvailable {
			return apperr.InvalidState("only available properties can be reserved")
		}
		if p.IsReserved() {
			return apperr.InvalidState("property is already reserved")
		}

		res := tx.Model(&models.Property{}).
			Where("id = ? AND owner_id = ? AND status = ? AND reserved_at IS NULL", id, ownerID, models.PropertyStatusAvailable).
			Updates(map[string]interface{}{
				"reserved_at":         now,
				"reserved_by_name":    req.Name,
				"reserved_by_contact": req.Contact,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("property changed concurrently")
		}
		out, err = reload(tx, id)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}

	metrics.Transition("reserve")
	s.notifyFollowers(ctx, out, fmt.Sprintf("%s has been reserved and is no longer available.", out.Name))
	return out, nil
}

// ClearReservation drops the reservation fields regardless of status.
func (s *Service) ClearReservation(ctx context.Context, ownerID, id string) (*models.Property, error) {
	var out *models.Property
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOwned(tx, ownerID, id); err != nil {
			return err
		}
		if err := tx.Model(&models.Property{}).
			Where("id = ? AND owner_id = ?", id, ownerID).
			Updates(models.ReservationClearUpdates()).Error; err != nil {
			return err
		}
		var err error
		out, err = reload(tx, id)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}

// SetRented moves Available to Occupied and opens a rental record at the
// current price.
func (s *Service) SetRented(ctx context.Context, ownerID, id string, req SetRentedRequest) (*models.Property, error) {
	start, err := req.Validate()
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var out *models.Property
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadOwned(tx, ownerID, id)
		if err != nil {
			return err
		}
		if p.Status != models.PropertyStatusAvailable {
			return apperr.InvalidState("only available properties can be rented")
		}

		updates := models.ReservationClearUpdates()
		updates["status"] = models.PropertyStatusOccupied
		updates["tenant_name"] = req.TenantName
		updates["tenant_contact"] = req.TenantContact
		updates["group_chat_ref"] = req.GroupChatRef
		updates["contract_start_date"] = start
		updates["lease_duration_months"] = req.LeaseDurationMonths
		updates["contract_key"] = req.ContractKey
		updates["vacancy_notified_30_day_at"] = nil
		if err := casStatus(tx, ownerID, id, models.PropertyStatusAvailable, updates); err != nil {
			return err
		}

		agentName := req.AgentName
		if agentName == "" {
			agentName = p.AgentName
		}
		if _, err := ledger.Open(tx, p, ledger.Entry{
			TenantName:     req.TenantName,
			AgentName:      agentName,
			ContractKey:    req.ContractKey,
			StartDate:      start,
			DurationMonths: req.LeaseDurationMonths,
		}, now); err != nil {
			return err
		}

		out, err = reload(tx, id)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}

	metrics.Transition("set_rented")
	slog.Info("property rented", "property_id", id, "tenant", req.TenantName, "start", req.ContractStartDate)
	s.syncIndex(ctx, out)
	return out, nil
}

// Checkout moves Occupied back to Available, closing the open rental record
// and clearing every occupancy field.
func (s *Service) Checkout(ctx context.Context, ownerID, id string) (*models.Property, error) {
	now := s.clock()
	var out *models.Property
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadOwned(tx, ownerID, id)
		if err != nil {
			return err
		}
		if p.Status != models.PropertyStatusOccupied {
			return apperr.InvalidState("only occupied properties can be checked out")
		}

		updates := models.OccupancyClearUpdates()
		for k, v := range models.ReservationClearUpdates() {
			updates[k] = v
		}
		updates["status"] = models.PropertyStatusAvailable
		updates["vacancy_notified_30_day_at"] = nil
		if err := casStatus(tx, ownerID, id, models.PropertyStatusOccupied, updates); err != nil {
			return err
		}

		if _, err := ledger.CloseOpen(tx, p, now); err != nil {
			return err
		}

		out, err = reload(tx, id)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}

	metrics.Transition("checkout")
	slog.Info("property checked out", "property_id", id)
	s.syncIndex(ctx, out)
	return out, nil
}

// AgentUpdate lets the assigned agent edit occupancy metadata of an Occupied
// property. The ledger is not touched.
func (s *Service) AgentUpdate(ctx context.Context, agentID, id string, req AgentUpdateRequest) (*models.Property, error) {
	updates, err := req.updates()
	if err != nil {
		return nil, err
	}

	var out *models.Property
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Property
		if err := tx.Where("id = ? AND agent_line_id = ?", id, agentID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("property")
			}
			return err
		}
		if p.Status != models.PropertyStatusOccupied {
			return apperr.InvalidState("occupancy can only be edited while occupied")
		}

		res := tx.Model(&models.Property{}).
			Where("id = ? AND agent_line_id = ? AND status = ?", id, agentID, models.PropertyStatusOccupied).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("property changed concurrently")
		}
		out, err = reload(tx, id)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}

// Reindex pushes every property through the search index.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	var properties []models.Property
	if err := s.db.WithContext(ctx).Find(&properties).Error; err != nil {
		return 0, apperr.Storage(err)
	}
	synced := 0
	for i := range properties {
		if err := s.index.Sync(ctx, &properties[i]); err != nil {
			slog.Warn("search index sync failed", "property_id", properties[i].ID, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (s *Service) syncIndex(ctx context.Context, p *models.Property) {
	if p == nil {
		return
	}
	if err := s.index.Sync(ctx, p); err != nil {
		slog.Warn("search index sync failed", "property_id", p.ID, "error", err)
	}
}

func (s *Service) notifyFollowers(ctx context.Context, p *models.Property, text string) {
	var agentIDs []string
	if err := s.db.WithContext(ctx).Model(&models.PropertyFollow{}).
		Where("property_id = ?", p.ID).
		Pluck("agent_id", &agentIDs).Error; err != nil {
		slog.Warn("failed to load followers", "property_id", p.ID, "error", err)
		return
	}
	for _, agentID := range agentIDs {
		s.notifier.Notify(agentID, text)
	}
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

func reload(tx *gorm.DB, id string) (*models.Property, error) {
	var p models.Property
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// casStatus applies updates only if the row still has the expected status.
func casStatus(tx *gorm.DB, ownerID, id string, expected models.PropertyStatus, updates map[string]interface{}) error {
	res := tx.Model(&models.Property{}).
		Where("id = ? AND owner_id = ? AND status = ?", id, ownerID, expected).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.InvalidState("property is no longer %s", expected)
	}
	return nil
}
