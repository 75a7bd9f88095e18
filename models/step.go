package models

import (
	"time"

	"gorm.io/gorm"
)

// StepStatus is the lifecycle state of a scheduled step.
type StepStatus string

const (
	StepStatusPending          StepStatus = "pending"
	StepStatusApproved         StepStatus = "approved"
	StepStatusRequiresApproval StepStatus = "requires_approval"
	StepStatusExecuting        StepStatus = "executing"
	StepStatusSent             StepStatus = "sent"
	StepStatusCompleted        StepStatus = "completed"
	StepStatusFailed           StepStatus = "failed"
	StepStatusSkipped          StepStatus = "skipped"
	StepStatusDeferred         StepStatus = "deferred"
)

// Channel identifies the delivery medium of an outreach step.
type Channel string

const (
	ChannelLinkedInConnection Channel = "linkedin_connection"
	ChannelLinkedInMessage    Channel = "linkedin_message"
	ChannelEmail              Channel = "email"
	ChannelSMS                Channel = "sms"
	ChannelPhone              Channel = "phone"
	ChannelVoicemail          Channel = "voicemail"
)

// AllChannels lists every channel a campaign step may use.
var AllChannels = []Channel{
	ChannelLinkedInConnection,
	ChannelLinkedInMessage,
	ChannelEmail,
	ChannelSMS,
	ChannelPhone,
	ChannelVoicemail,
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	for _, known := range AllChannels {
		if c == known {
			return true
		}
	}
	return false
}

// IsLinkedIn reports whether the channel is delivered through a LinkedIn session.
func (c Channel) IsLinkedIn() bool {
	return c == ChannelLinkedInConnection || c == ChannelLinkedInMessage
}

// IsTask reports whether the channel produces a rep task instead of an outbound message.
func (c Channel) IsTask() bool {
	return c == ChannelPhone || c == ChannelVoicemail
}

// Sender account types, one per delivery provider
const (
	AccountTypeEmail    = "email"
	AccountTypeLinkedIn = "linkedin"
	AccountTypeSMS      = "sms"
	AccountTypeCall     = "call"
)

// AccountTypeFor returns the sender account type that serves a channel.
func AccountTypeFor(c Channel) string {
	switch c {
	case ChannelLinkedInConnection, ChannelLinkedInMessage:
		return AccountTypeLinkedIn
	case ChannelEmail:
		return AccountTypeEmail
	case ChannelSMS:
		return AccountTypeSMS
	default:
		return AccountTypeCall
	}
}

// ErrorCode classifies why a step execution failed.
type ErrorCode string

const (
	ErrCodeConnectionTimeout ErrorCode = "connection_timeout"
	ErrCodeAccountNotLinked  ErrorCode = "destination_account_not_linked"
	ErrCodeSessionExpired    ErrorCode = "session_expired"
	ErrCodeProxyError        ErrorCode = "proxy_error"
	ErrCodeMissingRecipient  ErrorCode = "missing_recipient_handle"
	ErrCodeWarmupDeferred    ErrorCode = "warmup_limit_deferred"
	ErrCodeRateLimited       ErrorCode = "rate_limited_by_destination"
	ErrCodeOther             ErrorCode = "other_error"
	ErrCodeUnknown           ErrorCode = "unknown"
)

// ScheduledStep is one concrete outreach action owed to one contact.
// Rows are created when a campaign is scheduled and only leave the table
// through campaign or contact deletion.
type ScheduledStep struct {
	gorm.Model
	WorkspaceID     uint `gorm:"not null;index" json:"workspace_id"`
	CampaignID      uint `gorm:"not null;index;uniqueIndex:idx_steps_dedupe" json:"campaign_id"`
	ContactID       uint `gorm:"not null;uniqueIndex:idx_steps_dedupe;index:idx_steps_contact_channel" json:"contact_id"`
	StepIndex       int  `gorm:"not null;uniqueIndex:idx_steps_dedupe" json:"step_index"`
	SenderAccountID uint `gorm:"not null;index" json:"sender_account_id"`

	// Message content, personalized at execution time
	Channel Channel `gorm:"type:varchar(32);not null;index:idx_steps_contact_channel" json:"channel"`
	Subject string  `json:"subject"`
	Body    string  `gorm:"type:text" json:"body"`

	// Lifecycle
	Status      StepStatus `gorm:"type:varchar(24);not null;default:'pending';index:idx_steps_due" json:"status"`
	ScheduledAt time.Time  `gorm:"not null;index:idx_steps_due" json:"scheduled_at"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	MessageID   string     `gorm:"index" json:"message_id,omitempty"`

	// Failure details, cleared on reset
	ErrorCode    ErrorCode `gorm:"type:varchar(48)" json:"error_code,omitempty"`
	ErrorMessage *string   `gorm:"type:text" json:"error_message,omitempty"`

	// Approval trail
	ReviewedBy *uint      `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	SkipReason *string    `json:"skip_reason,omitempty"`

	// Relations
	Campaign Campaign `json:"-"`
	Contact  Contact  `json:"-"`
}
