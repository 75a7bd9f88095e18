package models

import (
	"gorm.io/gorm"
)

// Workspace groups users, sender accounts and campaigns under one tenant.
// Send credits and the approval policy live here so every campaign in the
// workspace shares them.
type Workspace struct {
	gorm.Model
	Name     string `gorm:"not null" json:"name"`
	Timezone string `gorm:"default:'UTC'" json:"timezone"`

	// Execution policy
	RequireApproval bool `gorm:"default:false" json:"require_approval"`

	// Credit-based sending
	SendCredits     int `gorm:"default:1000" json:"send_credits"` // 1000 free credits for new workspaces
	CreditsConsumed int `gorm:"default:0" json:"credits_consumed"`

	// Stripe integration
	StripeCustomerID *string `gorm:"index" json:"stripe_customer_id,omitempty"`
	DefaultCurrency  string  `gorm:"default:'usd'" json:"default_currency"`

	// Relations
	Users     []User          `gorm:"foreignKey:WorkspaceID" json:"users,omitempty"`
	Accounts  []SenderAccount `gorm:"foreignKey:WorkspaceID" json:"accounts,omitempty"`
	Campaigns []Campaign      `gorm:"foreignKey:WorkspaceID" json:"campaigns,omitempty"`
}

// User represents an operator account in the system.
type User struct {
	gorm.Model
	WorkspaceID uint `gorm:"not null;index" json:"workspace_id"`

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	TokenVersion int    `gorm:"default:0" json:"-"`

	// Profile information
	Name     *string `json:"name,omitempty"`
	Timezone string  `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`
	IsAdmin  bool `gorm:"default:false" json:"is_admin"`

	// Relations
	Workspace Workspace `json:"-"`
}
