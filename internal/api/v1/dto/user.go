package dto

import "time"

// CredentialsDTO carries the user's X/Twitter app and access keys.
type CredentialsDTO struct {
	APIKey       string `json:"api_key" validate:"required"`
	APISecret    string `json:"api_secret" validate:"required"`
	AccessToken  string `json:"access_token" validate:"required"`
	AccessSecret string `json:"access_secret" validate:"required"`
}

// PreferencesDTO is used for create and partial update requests. Omitted
// keys keep their stored value.
type PreferencesDTO struct {
	Prompt       *string `json:"prompt,omitempty" validate:"omitempty,max=2000"`
	PostingHours []int   `json:"posting_hours,omitempty" validate:"omitempty,len=2,dive,min=0,max=23"`
}

// UserCreateDTO is used for incoming create requests
type UserCreateDTO struct {
	Username    string          `json:"username" validate:"required,max=64"`
	Credentials CredentialsDTO  `json:"credentials" validate:"required"`
	Preferences *PreferencesDTO `json:"preferences,omitempty"`
}

type PreferencesResponseDTO struct {
	Prompt       *string `json:"prompt,omitempty"`
	PostingHours [2]int  `json:"posting_hours"`
}

// UserResponseDTO is returned in API responses
type UserResponseDTO struct {
	ID               int64                  `json:"id"`
	Username         string                 `json:"username"`
	IsActive         bool                   `json:"is_active"`
	SubscriptionTier string                 `json:"subscription_tier"`
	Preferences      PreferencesResponseDTO `json:"preferences"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}
