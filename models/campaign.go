package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign lifecycle states
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)

// Campaign represents a multi-channel outreach sequence.
type Campaign struct {
	gorm.Model
	WorkspaceID uint `gorm:"not null;index" json:"workspace_id"`
	CreatedBy   uint `gorm:"not null;index" json:"created_by"`

	// Campaign details
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Scheduling
	Status      string     `gorm:"default:'draft'" json:"status"` // draft, active, paused, completed
	ScheduledAt *time.Time `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Execution settings
	RequiresApproval bool `gorm:"default:false" json:"requires_approval"`
	TrackOpens       bool `gorm:"default:true" json:"track_opens"`
	TrackClicks      bool `gorm:"default:true" json:"track_clicks"`

	// Relations
	Steps    []CampaignStep    `gorm:"foreignKey:CampaignID" json:"steps,omitempty"`
	Contacts []CampaignContact `gorm:"foreignKey:CampaignID" json:"contacts,omitempty"`
	Accounts []CampaignAccount `gorm:"foreignKey:CampaignID" json:"accounts,omitempty"`
}

// CampaignStep is one templated touch in a campaign sequence. Scheduling a
// campaign expands each step against every attached contact.
type CampaignStep struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	StepIndex int     `gorm:"not null" json:"step_index"`
	Channel   Channel `gorm:"type:varchar(32);not null" json:"channel"`
	Subject   string  `json:"subject"`
	Body      string  `gorm:"type:text" json:"body"`
	DelayDays int     `gorm:"default:0" json:"delay_days"` // days after the previous step

	// Relations
	Campaign Campaign `json:"-"`
}

// CampaignContact joins contacts to campaigns.
type CampaignContact struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index;uniqueIndex:idx_campaign_contact" json:"campaign_id"`
	ContactID  uint `gorm:"not null;uniqueIndex:idx_campaign_contact" json:"contact_id"`
}

// CampaignAccount assigns a sender account to a campaign, one per account type.
type CampaignAccount struct {
	gorm.Model
	CampaignID      uint `gorm:"not null;index" json:"campaign_id"`
	SenderAccountID uint `gorm:"not null;index" json:"sender_account_id"`
}
