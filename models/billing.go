package models

import "gorm.io/gorm"

// Credit packages offered for one-time purchase, amounts in cents.
var CreditPackages = []CreditPackage{
	{Credits: 1000, AmountCents: 1000, Name: "starter"},
	{Credits: 5000, AmountCents: 4000, Name: "grow"},
	{Credits: 20000, AmountCents: 12000, Name: "scale"},
}

// CreditPackage describes a purchasable block of send credits.
type CreditPackage struct {
	Name        string `json:"name"`
	Credits     int    `json:"credits"`
	AmountCents int    `json:"amount_cents"`
}

// PackageByName looks up a purchasable credit package.
func PackageByName(name string) (CreditPackage, bool) {
	for _, p := range CreditPackages {
		if p.Name == name {
			return p, true
		}
	}
	return CreditPackage{}, false
}

// CreditTransaction records credit purchases and grants. Per-send usage is
// tracked on the workspace counters, not as transaction rows.
type CreditTransaction struct {
	gorm.Model
	WorkspaceID uint `gorm:"not null;index" json:"workspace_id"`
	UserID      uint `gorm:"index" json:"user_id"`

	// Credit changes, positive for purchases and grants
	Credits int `gorm:"not null" json:"credits"`

	// Financial information
	AmountCents int    `json:"amount_cents"` // in cents
	Currency    string `gorm:"default:'usd'" json:"currency"`
	Status      string `gorm:"default:'pending'" json:"status"` // pending, completed, failed, refunded

	// Metadata
	Description           string `json:"description"`
	StripePaymentIntentID string `gorm:"index" json:"stripe_payment_intent_id,omitempty"`
}
