package models

import "time"

// PropertyFollow subscribes an agent to vacancy notices for an occupied property
type PropertyFollow struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_follow_pair" json:"property_id"`
	AgentID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_follow_pair;index" json:"agent_id"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name
func (PropertyFollow) TableName() string {
	return "property_follows"
}

// AgentContactRequest records that an agent asked for the owner's contact.
// One row per (property, agent); repeated requests refresh RequestedAt.
type AgentContactRequest struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID  string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_contact_pair" json:"property_id"`
	AgentID     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_contact_pair" json:"agent_id"`
	AgentName   string    `gorm:"type:varchar(255)" json:"agent_name"`
	AgentPhone  string    `gorm:"type:varchar(64)" json:"agent_phone"`
	RequestedAt time.Time `gorm:"not null;index" json:"requested_at"`
}

// TableName specifies the table name
func (AgentContactRequest) TableName() string {
	return "agent_contact_requests"
}

// AgentInvite is a single-use invite token for a property's managing agent slot
type AgentInvite struct {
	Token       string     `gorm:"type:varchar(64);primaryKey" json:"token"`
	PropertyID  string     `gorm:"type:varchar(36);not null;index" json:"property_id"`
	OwnerID     string     `gorm:"type:varchar(64);not null" json:"owner_id"`
	InviteeName string     `gorm:"type:varchar(255)" json:"invitee_name,omitempty"`
	ExpiresAt   time.Time  `gorm:"not null;index" json:"expires_at"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
	ConsumedBy  string     `gorm:"type:varchar(64)" json:"consumed_by,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name
func (AgentInvite) TableName() string {
	return "agent_invites"
}

// IsUsable reports whether the invite can still be accepted at now
func (i *AgentInvite) IsUsable(now time.Time) bool {
	return i.ConsumedAt == nil && now.Before(i.ExpiresAt)
}
