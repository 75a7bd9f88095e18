package models

import (
	"time"

	"gorm.io/gorm"
)

// SenderAccount is a sending identity on one provider. Email accounts carry
// SMTP/IMAP settings, LinkedIn accounts a bridge session, SMS accounts a
// gateway number. Secrets are stored encrypted and decrypted at send time.
type SenderAccount struct {
	gorm.Model
	WorkspaceID uint `gorm:"not null;index" json:"workspace_id"`

	Name     string `gorm:"not null" json:"name"`
	Type     string `gorm:"not null;index" json:"type"` // email, linkedin, sms, call
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Email identity
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`

	// SMTP settings
	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port"`
	SMTPUsername   string `json:"smtp_username"`
	SMTPPassword   string `json:"-"` // encrypted
	SMTPEncryption string `gorm:"default:'SSL'" json:"smtp_encryption"` // SSL, TLS, STARTTLS, None

	// IMAP settings for reply detection
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"-"` // encrypted
	IMAPEncryption string `gorm:"default:'SSL'" json:"imap_encryption"`
	IMAPMailbox    string `gorm:"default:'INBOX'" json:"imap_mailbox"`

	// LinkedIn bridge session
	LinkedInSession string `json:"-"` // encrypted
	ProxyURL        string `json:"proxy_url"`

	// SMS gateway
	SMSFromNumber string `json:"sms_from_number"`
	SMSAPIKey     string `json:"-"` // encrypted

	// Warmup ramp, anchored to the account's first executed step
	WarmupEnabled bool `gorm:"default:true" json:"warmup_enabled"`

	// Health
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`

	// Relations
	Workspace Workspace `json:"-"`
}
