package models

import (
	"time"

	"gorm.io/gorm"
)

// Engagement event types recorded against executed steps
const (
	EventTypeSent         = "sent"
	EventTypeDelivered    = "delivered"
	EventTypeOpened       = "opened"
	EventTypeClicked      = "clicked"
	EventTypeReplied      = "replied"
	EventTypeBounced      = "bounced"
	EventTypeUnsubscribed = "unsubscribed"
)

// KnownEventType reports whether t is an event type the platform records.
func KnownEventType(t string) bool {
	switch t {
	case EventTypeSent, EventTypeDelivered, EventTypeOpened, EventTypeClicked,
		EventTypeReplied, EventTypeBounced, EventTypeUnsubscribed:
		return true
	}
	return false
}

// EngagementEvent is one recipient interaction with an executed step. The
// step index and channel are denormalized so health reports aggregate
// without joining back to the steps table.
type EngagementEvent struct {
	gorm.Model
	WorkspaceID uint    `gorm:"not null;index" json:"workspace_id"`
	CampaignID  uint    `gorm:"not null;index:idx_events_campaign_type" json:"campaign_id"`
	ContactID   uint    `gorm:"not null;index" json:"contact_id"`
	StepID      uint    `gorm:"not null;index" json:"step_id"`
	StepIndex   int     `gorm:"not null" json:"step_index"`
	Channel     Channel `gorm:"type:varchar(32);not null" json:"channel"`

	EventType  string    `gorm:"not null;index:idx_events_campaign_type" json:"event_type"`
	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`

	// Device and location info
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Details   string `gorm:"type:text" json:"details,omitempty"` // JSON details if needed
}

// ClickEvent tracks individual link clicks (normalized from the event stream)
type ClickEvent struct {
	gorm.Model
	EventID   uint      `gorm:"not null;index" json:"event_id"`
	URL       string    `gorm:"not null" json:"url"`
	ClickedAt time.Time `gorm:"not null" json:"clicked_at"`
	Count     int       `gorm:"default:1" json:"count"`
}
