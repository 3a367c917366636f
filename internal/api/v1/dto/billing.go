package dto

// BillingSessionResponseDTO carries a hosted Stripe page URL.
type BillingSessionResponseDTO struct {
	URL string `json:"url"`
}
