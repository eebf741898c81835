package models

import (
	"strings"
	"time"
)

// UserRole は利用者の役割
type UserRole string

const (
	UserRoleOwner  UserRole = "owner"
	UserRoleAgent  UserRole = "agent"
	UserRoleTenant UserRole = "tenant"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleOwner, UserRoleAgent, UserRoleTenant:
		return true
	}
	return false
}

// User is the profile attached to a chat-platform identity
type User struct {
	ID            string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Role          UserRole  `gorm:"type:varchar(20);not null;default:'owner'" json:"role"`
	DisplayName   string    `gorm:"type:varchar(255)" json:"display_name"`
	Phone         string    `gorm:"type:varchar(64)" json:"phone"`
	ChatHandle    string    `gorm:"type:varchar(255)" json:"chat_handle,omitempty"`
	NotifyEnabled bool      `gorm:"not null" json:"notify_enabled"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}

// HasName reports whether the display name is filled in
func (u *User) HasName() bool {
	return u != nil && strings.TrimSpace(u.DisplayName) != ""
}

// HasContact reports whether both name and phone are filled in
func (u *User) HasContact() bool {
	return u.HasName() && strings.TrimSpace(u.Phone) != ""
}
