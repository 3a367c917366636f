package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ranikadev/baas-bot/internal/config"
	"github.com/ranikadev/baas-bot/internal/model"
	"github.com/ranikadev/baas-bot/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrInvalidWebhook   = errors.New("invalid stripe webhook")
	ErrNoStripeCustomer = errors.New("user has no stripe customer")
)

// BillingService moves users between the free and paid tiers through Stripe
// subscriptions.
type BillingService interface {
	CreateCheckoutSession(ctx context.Context, userID int64) (string, error)
	CreatePortalSession(ctx context.Context, userID int64) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type billingService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
	logger   zerolog.Logger
}

// NewBillingService initializes the Stripe key and returns the service with a
// scoped logger.
func NewBillingService(cfg *config.Config, userRepo repository.UserRepository, logger zerolog.Logger) BillingService {
	stripe.Key = cfg.StripeSecretKey
	return &billingService{
		cfg:      cfg,
		userRepo: userRepo,
		logger:   logger.With().Str("service", "BillingService").Logger(),
	}
}

func (s *billingService) loadUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return u, nil
}

func (s *billingService) getOrCreateCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	cust, err := customerpkg.New(&stripe.CustomerParams{
		Name:     stripe.String(user.Username),
		Metadata: map[string]string{"user_id": strconv.FormatInt(user.ID, 10)},
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, user.ID, cust.ID); err != nil {
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

func (s *billingService) CreateCheckoutSession(ctx context.Context, userID int64) (string, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}
	customerID, err := s.getOrCreateCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	meta := map[string]string{"user_id": strconv.FormatInt(userID, 10)}
	sess, err := checkoutsession.New(&stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(s.cfg.StripePricePaid), Quantity: stripe.Int64(1)}},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(s.cfg.StripeReturnURL + "?status=success"),
		CancelURL:  stripe.String(s.cfg.StripeReturnURL + "?status=cancel"),
		Metadata:   meta,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *billingService) CreatePortalSession(ctx context.Context, userID int64) (string, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", ErrNoStripeCustomer
	}
	sess, err := billingsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*user.StripeCustomerID),
		ReturnURL: stripe.String(s.cfg.StripeReturnURL),
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// HandleWebhook verifies the Stripe signature and applies the event.
func (s *billingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.StripeWebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	s.logger.Info().Str("event_type", string(event.Type)).Msg("Stripe webhook received")
	return s.applyEvent(ctx, event)
}

func (s *billingService) applyEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return fmt.Errorf("%w: invalid checkout.session data: %v", ErrInvalidWebhook, err)
		}
		customerID := ""
		if cs.Customer != nil {
			customerID = cs.Customer.ID
		}
		userID, err := s.resolveUser(ctx, cs.Metadata, customerID)
		if err != nil {
			return err
		}
		if customerID != "" {
			if err := s.userRepo.UpdateStripeCustomerID(ctx, userID, customerID); err != nil {
				return fmt.Errorf("store stripe customer id: %w", err)
			}
		}
		return s.setTier(ctx, userID, model.TierPaid)
	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: invalid subscription data: %v", ErrInvalidWebhook, err)
		}
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		userID, err := s.resolveUser(ctx, sub.Metadata, customerID)
		if err != nil {
			return err
		}
		tier := model.TierFree
		if event.Type == "customer.subscription.updated" && subscriptionGrantsPaid(sub.Status) {
			tier = model.TierPaid
		}
		return s.setTier(ctx, userID, tier)
	default:
		s.logger.Debug().Str("event_type", string(event.Type)).Msg("Ignoring Stripe event")
		return nil
	}
}

func subscriptionGrantsPaid(status stripe.SubscriptionStatus) bool {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
		return true
	}
	return false
}

// resolveUser reads user_id from metadata, falling back to the customer id.
func (s *billingService) resolveUser(ctx context.Context, metadata map[string]string, customerID string) (int64, error) {
	if raw, ok := metadata["user_id"]; ok && raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad user_id metadata %q", ErrInvalidWebhook, raw)
		}
		return id, nil
	}
	if customerID == "" {
		return 0, fmt.Errorf("%w: cannot determine user: missing metadata and customer id", ErrInvalidWebhook)
	}
	s.logger.Warn().Str("stripe_customer_id", customerID).Msg("Missing user_id metadata; looking up user by customer ID")
	u, err := s.userRepo.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("lookup user by stripe customer id: %w", err)
	}
	return u.ID, nil
}

func (s *billingService) setTier(ctx context.Context, userID int64, tier model.Tier) error {
	if err := s.userRepo.UpdateTier(ctx, userID, tier); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update tier: %w", err)
	}
	s.logger.Info().Int64("user_id", userID).Str("tier", string(tier)).Msg("Subscription tier updated")
	return nil
}
