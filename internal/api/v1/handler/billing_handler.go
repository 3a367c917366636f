package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ranikadev/baas-bot/internal/api/v1/dto"
	"github.com/ranikadev/baas-bot/internal/service"

	"github.com/rs/zerolog"
)

const maxWebhookBytes = 64 << 10

// BillingHandler handles tier upgrade endpoints and the Stripe webhook.
type BillingHandler struct {
	billing service.BillingService
	logger  zerolog.Logger
}

func NewBillingHandler(billing service.BillingService, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, logger: logger.With().Str("handler", "BillingHandler").Logger()}
}

// RegisterRoutes registers the billing endpoints. The webhook is
// authenticated by its Stripe signature, not by authMw.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("POST /users/{id}/billing/checkout", authMw(http.HandlerFunc(h.Checkout)))
	mux.Handle("POST /users/{id}/billing/portal", authMw(http.HandlerFunc(h.Portal)))
	mux.HandleFunc("POST /billing/webhook", h.Webhook)
}

// Checkout godoc
// @Summary Start a paid-tier Stripe Checkout session
// @Tags billing
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} dto.BillingSessionResponseDTO
// @Failure 404 {string} string "user not found"
// @Failure 500 {string} string "failed to create checkout session"
// @Router /users/{id}/billing/checkout [post]
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	url, err := h.billing.CreateCheckoutSession(r.Context(), id)
	h.writeSession(w, url, err, "failed to create checkout session")
}

// Portal godoc
// @Summary Create a Stripe Customer Portal session
// @Tags billing
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} dto.BillingSessionResponseDTO
// @Failure 404 {string} string "user not found"
// @Failure 409 {string} string "user has no stripe customer"
// @Router /users/{id}/billing/portal [post]
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	url, err := h.billing.CreatePortalSession(r.Context(), id)
	h.writeSession(w, url, err, "failed to create portal session")
}

func (h *BillingHandler) writeSession(w http.ResponseWriter, url string, err error, msg string) {
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrNoStripeCustomer):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error().Err(err).Msg(msg)
			http.Error(w, msg, http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dto.BillingSessionResponseDTO{URL: url}); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// Webhook godoc
// @Summary Stripe webhook
// @Description Moves users between tiers on checkout and subscription events.
// @Tags billing
// @Accept json
// @Success 200 {string} string "ok"
// @Failure 400 {string} string "invalid webhook"
// @Router /billing/webhook [post]
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	if err := h.billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidWebhook):
			http.Error(w, "invalid webhook", http.StatusBadRequest)
		case errors.Is(err, service.ErrUserNotFound):
			// Nothing to retry for an unknown user.
			h.logger.Warn().Err(err).Msg("Webhook for unknown user")
			w.WriteHeader(http.StatusOK)
		default:
			h.logger.Error().Err(err).Msg("failed to apply webhook")
			http.Error(w, "failed to apply webhook", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}
