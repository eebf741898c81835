package models

import "time"

// RentalHistoryRecord is one occupancy period of a property.
// Rows are append-only; the only mutation is setting EndDate when the period closes.
type RentalHistoryRecord struct {
	ID                  string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	PropertyID          string     `gorm:"type:varchar(36);not null;index:idx_history_property" json:"property_id"`
	TenantName          string     `gorm:"type:varchar(255);not null" json:"tenant_name"`
	AgentName           string     `gorm:"type:varchar(255)" json:"agent_name,omitempty"`
	StartDate           time.Time  `gorm:"not null;index:idx_history_property,priority:2" json:"start_date"`
	EndDate             *time.Time `gorm:"index" json:"end_date"`
	DurationMonths      int        `gorm:"not null" json:"duration_months"`
	ContractKey         string     `gorm:"type:varchar(512)" json:"contract_key,omitempty"`
	RentPriceAtThatTime float64    `gorm:"not null" json:"rent_price_at_that_time"`
	CreatedAt           time.Time  `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name
func (RentalHistoryRecord) TableName() string {
	return "rental_history"
}

// IsOpen reports whether the period is still running.
func (r *RentalHistoryRecord) IsOpen() bool {
	return r.EndDate == nil
}
