package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ranikadev/baas-bot/internal/config"
	"github.com/ranikadev/baas-bot/internal/model"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
)

func newTestBilling(users *fakeUserRepo) *billingService {
	cfg := &config.Config{StripeSecretKey: "sk_test_x", StripeWebhookSecret: "whsec_test"}
	return NewBillingService(cfg, users, zerolog.Nop()).(*billingService)
}

func stripeEvent(eventType string, obj any) stripe.Event {
	raw, _ := json.Marshal(obj)
	return stripe.Event{Type: stripe.EventType(eventType), Data: &stripe.EventData{Raw: raw}}
}

func TestBillingCheckoutCompletedUpgradesTier(t *testing.T) {
	users := newFakeUserRepo(model.User{ID: 7, Username: "u", SubscriptionTier: model.TierFree})
	svc := newTestBilling(users)

	evt := stripeEvent("checkout.session.completed", map[string]any{
		"id":       "cs_1",
		"customer": "cus_42",
		"metadata": map[string]string{"user_id": "7"},
	})
	if err := svc.applyEvent(context.Background(), evt); err != nil {
		t.Fatalf("applyEvent: %v", err)
	}
	u, _ := users.GetUserByID(context.Background(), 7)
	if u.SubscriptionTier != model.TierPaid {
		t.Fatalf("expected paid tier, got %s", u.SubscriptionTier)
	}
	if u.StripeCustomerID == nil || *u.StripeCustomerID != "cus_42" {
		t.Fatalf("expected customer id stored, got %v", u.StripeCustomerID)
	}
}

func TestBillingSubscriptionDeletedDowngradesByCustomer(t *testing.T) {
	cust := "cus_9"
	users := newFakeUserRepo(model.User{ID: 3, Username: "u", SubscriptionTier: model.TierPaid, StripeCustomerID: &cust})
	svc := newTestBilling(users)

	evt := stripeEvent("customer.subscription.deleted", map[string]any{
		"id":       "sub_1",
		"customer": "cus_9",
		"status":   "canceled",
	})
	if err := svc.applyEvent(context.Background(), evt); err != nil {
		t.Fatalf("applyEvent: %v", err)
	}
	u, _ := users.GetUserByID(context.Background(), 3)
	if u.SubscriptionTier != model.TierFree {
		t.Fatalf("expected free tier, got %s", u.SubscriptionTier)
	}
}

func TestBillingSubscriptionUpdatedStatus(t *testing.T) {
	tests := []struct {
		status string
		want   model.Tier
	}{
		{status: "active", want: model.TierPaid},
		{status: "trialing", want: model.TierPaid},
		{status: "unpaid", want: model.TierFree},
		{status: "canceled", want: model.TierFree},
	}
	for _, tt := range tests {
		users := newFakeUserRepo(model.User{ID: 1, Username: "u", SubscriptionTier: model.TierFree})
		svc := newTestBilling(users)
		evt := stripeEvent("customer.subscription.updated", map[string]any{
			"id":       "sub_1",
			"status":   tt.status,
			"metadata": map[string]string{"user_id": "1"},
		})
		if err := svc.applyEvent(context.Background(), evt); err != nil {
			t.Fatalf("%s: applyEvent: %v", tt.status, err)
		}
		u, _ := users.GetUserByID(context.Background(), 1)
		if u.SubscriptionTier != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.status, tt.want, u.SubscriptionTier)
		}
	}
}

func TestBillingUnknownUserAndIgnoredEvents(t *testing.T) {
	svc := newTestBilling(newFakeUserRepo())
	ctx := context.Background()

	evt := stripeEvent("checkout.session.completed", map[string]any{"id": "cs", "metadata": map[string]string{"user_id": "404"}})
	if err := svc.applyEvent(ctx, evt); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	missing := stripeEvent("checkout.session.completed", map[string]any{"id": "cs"})
	if err := svc.applyEvent(ctx, missing); !errors.Is(err, ErrInvalidWebhook) {
		t.Fatalf("expected ErrInvalidWebhook, got %v", err)
	}
	if err := svc.applyEvent(ctx, stripeEvent("invoice.created", map[string]any{"id": "in"})); err != nil {
		t.Fatalf("expected ignored event, got %v", err)
	}
}

func TestBillingWebhookRejectsBadSignature(t *testing.T) {
	svc := newTestBilling(newFakeUserRepo())
	err := svc.HandleWebhook(context.Background(), []byte(`{"id":"evt_1","type":"checkout.session.completed"}`), "t=1,v1=bad")
	if !errors.Is(err, ErrInvalidWebhook) {
		t.Fatalf("expected ErrInvalidWebhook, got %v", err)
	}
}
