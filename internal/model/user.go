package model

import "time"

// Tier is a subscription level. It decides the daily publish quota.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPaid
}

// DefaultPostingHours is the inclusive service-local hour window used when a
// user has not configured one.
var DefaultPostingHours = [2]int{9, 23}

// Preferences holds per-user content settings, stored as JSONB.
type Preferences struct {
	Prompt       *string `json:"prompt,omitempty"`
	PostingHours *[2]int `json:"posting_hours,omitempty"`
}

// EffectivePostingHours returns the configured window, or the default when
// unset or invalid.
func (p Preferences) EffectivePostingHours() [2]int {
	if p.PostingHours == nil {
		return DefaultPostingHours
	}
	h := *p.PostingHours
	if h[0] < 0 || h[1] > 23 || h[0] > h[1] {
		return DefaultPostingHours
	}
	return h
}

// InPostingWindow reports whether hour (0-23) falls inside the window, bounds
// included.
func (p Preferences) InPostingWindow(hour int) bool {
	h := p.EffectivePostingHours()
	return h[0] <= hour && hour <= h[1]
}

// Merge applies the keys set in update on top of p.
func (p Preferences) Merge(update Preferences) Preferences {
	if update.Prompt != nil {
		prompt := *update.Prompt
		p.Prompt = &prompt
	}
	if update.PostingHours != nil {
		hours := *update.PostingHours
		p.PostingHours = &hours
	}
	return p
}

// User represents a bot owner in the system
type User struct {
	ID               int64       `db:"id" json:"id"`
	Username         string      `db:"username" json:"username"`
	IsActive         bool        `db:"is_active" json:"is_active"`
	SubscriptionTier Tier        `db:"subscription_tier" json:"subscription_tier"`
	Preferences      Preferences `db:"preferences" json:"preferences"`
	StripeCustomerID *string     `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// Credentials are the user's social account keys. They never leave the
// credential store except to sign a publish request.
type Credentials struct {
	APIKey       string `json:"api_key" validate:"required"`
	APISecret    string `json:"api_secret" validate:"required"`
	AccessToken  string `json:"access_token" validate:"required"`
	AccessSecret string `json:"access_secret" validate:"required"`
}
