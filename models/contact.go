package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact lifecycle states, lowest precedence first
const (
	ContactStatusPending      = "pending"
	ContactStatusContacted    = "contacted"
	ContactStatusReplied      = "replied"
	ContactStatusBounced      = "bounced"
	ContactStatusUnsubscribed = "unsubscribed"
	ContactStatusDoNotContact = "do_not_contact"
)

var contactStatusRank = map[string]int{
	ContactStatusPending:      0,
	ContactStatusContacted:    1,
	ContactStatusReplied:      2,
	ContactStatusBounced:      3,
	ContactStatusUnsubscribed: 4,
	ContactStatusDoNotContact: 5,
}

// ContactStatusOutranks reports whether next is a stronger state than current.
// Status updates only ever move up the ranking, so a bounced contact never
// drops back to contacted when a later step goes out.
func ContactStatusOutranks(next, current string) bool {
	return contactStatusRank[next] > contactStatusRank[current]
}

// Contact represents a single outreach target across all channels.
type Contact struct {
	gorm.Model
	WorkspaceID uint `gorm:"not null;index" json:"workspace_id"`

	Email       string `gorm:"index" json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company"`
	Position    string `json:"position"`
	Phone       string `json:"phone"`
	LinkedInURL string `json:"linkedin_url"`

	// Status
	Status          string     `gorm:"default:'pending';index" json:"status"`
	BounceRisk      bool       `gorm:"default:false" json:"bounce_risk"`
	IsVerified      bool       `gorm:"default:false" json:"is_verified"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`

	// Metadata
	Source string `json:"source"` // manual, csv, api
}

// FullName joins the contact's name parts for message personalization.
func (c *Contact) FullName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.LastName
	}
}
