package models

import "time"

type Property struct {
	// 基本情報
	ID          string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID     string       `gorm:"type:varchar(64);not null;index" json:"owner_id"`
	Name        string       `gorm:"type:varchar(255);not null" json:"name"`
	Type        PropertyType `gorm:"type:varchar(20);not null" json:"type"`
	Address     string       `gorm:"type:text" json:"address,omitempty"`
	Price       float64      `gorm:"not null;default:0;index" json:"price"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	Bedrooms    string       `gorm:"type:varchar(20)" json:"bedrooms,omitempty"`
	Bathrooms   string       `gorm:"type:varchar(20)" json:"bathrooms,omitempty"`
	Area        string       `gorm:"type:varchar(20)" json:"area,omitempty"`
	Amenities   StringList   `gorm:"type:text" json:"amenities"`
	PhotoKeys   StringList   `gorm:"type:text" json:"photo_keys"`

	// ステータス
	Status PropertyStatus `gorm:"type:varchar(20);not null;default:'Draft';index:idx_market,priority:1" json:"status"`

	// 入居中のみ有効
	TenantName          string     `gorm:"type:varchar(255)" json:"tenant_name,omitempty"`
	TenantContact       string     `gorm:"type:varchar(255)" json:"tenant_contact,omitempty"`
	AgentName           string     `gorm:"type:varchar(255)" json:"agent_name,omitempty"`
	AgentLineID         string     `gorm:"type:varchar(64);index" json:"agent_line_id,omitempty"`
	GroupChatRef        string     `gorm:"type:varchar(255)" json:"group_chat_ref,omitempty"`
	ContractStartDate   *time.Time `json:"contract_start_date,omitempty"`
	LeaseDurationMonths *int       `json:"lease_duration_months,omitempty"`
	ContractKey         string     `gorm:"type:varchar(512)" json:"contract_key,omitempty"`

	// 募集中のみ有効
	ReservedAt        *time.Time `json:"reserved_at,omitempty"`
	ReservedByName    string     `gorm:"type:varchar(255)" json:"reserved_by_name,omitempty"`
	ReservedByContact string     `gorm:"type:varchar(255)" json:"reserved_by_contact,omitempty"`

	// エージェント向けフラグ
	OpenForAgent  bool `gorm:"not null;default:false;index:idx_market,priority:2" json:"open_for_agent"`
	PublicListing bool `gorm:"not null;default:false" json:"public_listing"`

	AgentInviteSentAt *time.Time `json:"agent_invite_sent_at,omitempty"`
	AgentInviteeName  string     `gorm:"type:varchar(255)" json:"agent_invitee_name,omitempty"`

	VacancyNotified30DayAt *time.Time `gorm:"column:vacancy_notified_30_day_at" json:"vacancy_notified_30_day_at,omitempty"`

	// タイムスタンプ
	CreatedAt time.Time `gorm:"not null;index:idx_market,priority:3,sort:desc" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// PropertyStatus は物件のステータス
type PropertyStatus string

const (
	PropertyStatusDraft     PropertyStatus = "Draft"
	PropertyStatusAvailable PropertyStatus = "Available"
	PropertyStatusOccupied  PropertyStatus = "Occupied"
)

// Valid reports whether s is a reachable lifecycle status.
func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyStatusDraft, PropertyStatusAvailable, PropertyStatusOccupied:
		return true
	}
	return false
}

// PropertyType は物件種別
type PropertyType string

const (
	PropertyTypeCondo     PropertyType = "Condo"
	PropertyTypeHouse     PropertyType = "House"
	PropertyTypeApartment PropertyType = "Apartment"
)

func (t PropertyType) Valid() bool {
	switch t {
	case PropertyTypeCondo, PropertyTypeHouse, PropertyTypeApartment:
		return true
	}
	return false
}

// TableName はテーブル名を明示的に指定
func (Property) TableName() string {
	return "properties"
}

// IsReserved は募集中で予約済みかどうか
func (p *Property) IsReserved() bool {
	return p.Status == PropertyStatusAvailable && p.ReservedAt != nil
}

// HasAgent は担当エージェントが割り当て済みかどうか
func (p *Property) HasAgent() bool {
	return p.AgentLineID != ""
}

// ContractEndDate returns start + lease months, or nil when either is unset.
func (p *Property) ContractEndDate() *time.Time {
	if p.ContractStartDate == nil || p.LeaseDurationMonths == nil || *p.LeaseDurationMonths < 1 {
		return nil
	}
	end := p.ContractStartDate.AddDate(0, *p.LeaseDurationMonths, 0)
	return &end
}

// OccupancyClearUpdates resets every occupancy field.
func OccupancyClearUpdates() map[string]interface{} {
	return map[string]interface{}{
		"tenant_name":           "",
		"tenant_contact":        "",
		"agent_name":            "",
		"agent_line_id":         "",
		"group_chat_ref":        "",
		"contract_start_date":   nil,
		"lease_duration_months": nil,
		"contract_key":          "",
	}
}

// ReservationClearUpdates resets the reservation sub-state.
func ReservationClearUpdates() map[string]interface{} {
	return map[string]interface{}{
		"reserved_at":         nil,
		"reserved_by_name":    "",
		"reserved_by_contact": "",
	}
}
