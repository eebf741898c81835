package property

import (
	"strings"
	"time"

	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
)

// DateLayout is the wire format of contract dates.
const DateLayout = "2006-01-02"

// CreateRequest is the body of POST /properties
type CreateRequest struct {
	Name          string              `json:"name" binding:"required"`
	Type          models.PropertyType `json:"type" binding:"required"`
	Address       string              `json:"address"`
	Price         float64             `json:"price"`
	Description   string              `json:"description"`
	Bedrooms      string              `json:"bedrooms"`
	Bathrooms     string              `json:"bathrooms"`
	Area          string              `json:"area"`
	Amenities     []string            `json:"amenities"`
	PhotoKeys     []string            `json:"photo_keys"`
	OpenForAgent  bool                `json:"open_for_agent"`
	PublicListing bool                `json:"public_listing"`
	Publish       bool                `json:"publish"`
}

func (r *CreateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return apperr.Validation("name is required")
	}
	if !r.Type.Valid() {
		return apperr.Validation("type must be one of Condo, House, Apartment")
	}
	if r.Price < 0 {
		return apperr.Validation("price must not be negative")
	}
	return nil
}

// UpdateRequest is the body of PUT /properties/:id. Nil fields are left unchanged.
type UpdateRequest struct {
	Name          *string              `json:"name"`
	Type          *models.PropertyType `json:"type"`
	Address       *string              `json:"address"`
	Price         *float64             `json:"price"`
	Description   *string              `json:"description"`
	Bedrooms      *string              `json:"bedrooms"`
	Bathrooms     *string              `json:"bathrooms"`
	Area          *string              `json:"area"`
	Amenities     *[]string            `json:"amenities"`
	PhotoKeys     *[]string            `json:"photo_keys"`
	OpenForAgent  *bool                `json:"open_for_agent"`
	PublicListing *bool                `json:"public_listing"`
}

func (r *UpdateRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return apperr.Validation("name must not be empty")
	}
	if r.Type != nil && !r.Type.Valid() {
		return apperr.Validation("type must be one of Condo, House, Apartment")
	}
	if r.Price != nil && *r.Price < 0 {
		return apperr.Validation("price must not be negative")
	}
	return nil
}

func (r *UpdateRequest) updates() map[string]interface{} {
	u := map[string]interface{}{}
	if r.Name != nil {
		u["name"] = strings.TrimSpace(*r.Name)
	}
	if r.Type != nil {
		u["type"] = *r.Type
	}
	if r.Address != nil {
		u["address"] = *r.Address
	}
	if r.Price != nil {
		u["price"] = *r.Price
	}
	if r.Description != nil {
		u["description"] = *r.Description
	}
	if r.Bedrooms != nil {
		u["bedrooms"] = *r.Bedrooms
	}
	if r.Bathrooms != nil {
		u["bathrooms"] = *r.Bathrooms
	}
	if r.Area != nil {
		u["area"] = *r.Area
	}
	if r.Amenities != nil {
		u["amenities"] = models.StringList(*r.Amenities)
	}
	if r.PhotoKeys != nil {
		u["photo_keys"] = models.StringList(*r.PhotoKeys)
	}
	if r.OpenForAgent != nil {
		u["open_for_agent"] = *r.OpenForAgent
	}
	if r.PublicListing != nil {
		u["public_listing"] = *r.PublicListing
	}
	return u
}

// ReserveRequest is the body of POST /properties/:id/reserve
type ReserveRequest struct {
	Name    string `json:"name" binding:"required"`
	Contact string `json:"contact"`
}

func (r *ReserveRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return apperr.Validation("reserver name is required")
	}
	return nil
}

// SetRentedRequest is the body of POST /properties/:id/rent
type SetRentedRequest struct {
	TenantName          string `json:"tenant_name" binding:"required"`
	TenantContact       string `json:"tenant_contact"`
	ContractStartDate   string `json:"contract_start_date" binding:"required"`
	LeaseDurationMonths int    `json:"lease_duration_months" binding:"required"`
	AgentName           string `json:"agent_name"`
	ContractKey         string `json:"contract_key"`
	GroupChatRef        string `json:"group_chat_ref"`
}

// Validate checks the request and returns the parsed start date.
func (r *SetRentedRequest) Validate() (time.Time, error) {
	r.TenantName = strings.TrimSpace(r.TenantName)
	if r.TenantName == "" {
		return time.Time{}, apperr.Validation("tenant name is required")
	}
	start, err := ParseDate(r.ContractStartDate)
	if err != nil {
		return time.Time{}, err
	}
	if r.LeaseDurationMonths < 1 {
		return time.Time{}, apperr.Validation("lease duration must be at least 1 month")
	}
	return start, nil
}

// AgentUpdateRequest is the body of PUT /properties/:id/occupancy
type AgentUpdateRequest struct {
	TenantName          *string `json:"tenant_name"`
	TenantContact       *string `json:"tenant_contact"`
	AgentName           *string `json:"agent_name"`
	GroupChatRef        *string `json:"group_chat_ref"`
	ContractStartDate   *string `json:"contract_start_date"`
	LeaseDurationMonths *int    `json:"lease_duration_months"`
	ContractKey         *string `json:"contract_key"`
}

func (r *AgentUpdateRequest) updates() (map[string]interface{}, error) {
	u := map[string]interface{}{}
	if r.TenantName != nil {
		name := strings.TrimSpace(*r.TenantName)
		if name == "" {
			return nil, apperr.Validation("tenant name must not be empty")
		}
		u["tenant_name"] = name
	}
	if r.TenantContact != nil {
		u["tenant_contact"] = *r.TenantContact
	}
	if r.AgentName != nil {
		name := strings.TrimSpace(*r.AgentName)
		if name == "" {
			return nil, apperr.Validation("agent name must not be empty")
		}
		u["agent_name"] = name
	}
	if r.GroupChatRef != nil {
		u["group_chat_ref"] = *r.GroupChatRef
	}
	if r.ContractStartDate != nil {
		start, err := ParseDate(*r.ContractStartDate)
		if err != nil {
			return nil, err
		}
		u["contract_start_date"] = start
	}
	if r.LeaseDurationMonths != nil {
		if *r.LeaseDurationMonths < 1 {
			return nil, apperr.Validation("lease duration must be at least 1 month")
		}
		u["lease_duration_months"] = *r.LeaseDurationMonths
	}
	if r.ContractKey != nil {
		u["contract_key"] = *r.ContractKey
	}
	if len(u) == 0 {
		return nil, apperr.Validation("nothing to update")
	}
	return u, nil
}

// ParseDate parses a YYYY-MM-DD contract date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, apperr.Validation("contract start date must be YYYY-MM-DD")
	}
	return t, nil
}
