//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"aitools-pro-billing/internal/domain"
)

// --- Subscriber Model Tests ---

func TestNewSubscriber(t *testing.T) {
	t.Run("should normalize the email and start with status none", func(t *testing.T) {
		s, err := NewSubscriber("  A@Example.COM ")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if s.Email != "a@example.com" {
			t.Errorf("expected email to be 'a@example.com', but got %q", s.Email)
		}
		if s.Status != SubscriptionStatusNone {
			t.Errorf("expected status none, but got %s", s.Status)
		}
		if s.ProEnabled || s.PremiumBadge {
			t.Error("expected entitlement flags to be false for a new subscriber")
		}
	})

	t.Run("should fail with empty email", func(t *testing.T) {
		s, err := NewSubscriber("   ")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, but got %v", err)
		}
		if s != nil {
			t.Error("expected subscriber to be nil on error")
		}
	})
}

func TestSubscriber_SetStatusKeepsFlagsConsistent(t *testing.T) {
	cases := map[SubscriptionStatus]bool{
		SubscriptionStatusNone:     false,
		SubscriptionStatusActive:   true,
		SubscriptionStatusPastDue:  false,
		SubscriptionStatusExpired:  false,
		SubscriptionStatusLifetime: true,
	}
	for status, want := range cases {
		s := &Subscriber{Email: "a@example.com"}
		s.SetStatus(status)
		if s.ProEnabled != want || s.PremiumBadge != want {
			t.Errorf("status %s: expected flags %v, got pro=%v badge=%v", status, want, s.ProEnabled, s.PremiumBadge)
		}
	}
}

func TestSubscriber_Clone(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := &Subscriber{Email: "a@example.com", StartedAt: &started}

	cp := orig.Clone()
	*cp.StartedAt = cp.StartedAt.Add(time.Hour)

	if !orig.StartedAt.Equal(started) {
		t.Error("expected clone to not share the StartedAt pointer")
	}
	if (*Subscriber)(nil).Clone() != nil {
		t.Error("expected nil clone of nil subscriber")
	}
}

// --- Billing Event Tests ---

func TestNewBillingEvent(t *testing.T) {
	data := EventData{CustomerEmail: "a@example.com"}
	tests := []struct {
		name string
		want EventType
	}{
		{"charge.success", EventTypeChargeSuccess},
		{"subscription.create", EventTypeSubscriptionCreate},
		{"subscription.disable", EventTypeSubscriptionDisable},
		{"invoice.payment_failed", EventTypeInvoicePaymentFailed},
		{"some.future.event", EventTypeUnknown},
		{"", EventTypeUnknown},
	}
	for _, tt := range tests {
		ev := NewBillingEvent(tt.name, data)
		if ev.Type() != tt.want {
			t.Errorf("%q: expected type %s, got %s", tt.name, tt.want, ev.Type())
		}
		if ev.Data().CustomerEmail != "a@example.com" {
			t.Errorf("%q: expected data to be carried through", tt.name)
		}
	}

	if u, ok := NewBillingEvent("some.future.event", data).(UnrecognizedEvent); !ok || u.Name != "some.future.event" {
		t.Error("expected UnrecognizedEvent to keep the original name")
	}
}

func TestEventData_Tier(t *testing.T) {
	tests := []struct {
		data EventData
		want SubscriptionTier
	}{
		{EventData{PlanCode: "pro_yearly"}, SubscriptionTierAnnual},
		{EventData{PlanCode: "PLN_x", PlanInterval: "annually"}, SubscriptionTierAnnual},
		{EventData{PlanCode: "pro_lifetime"}, SubscriptionTierLifetime},
		{EventData{PlanCode: "pro_monthly"}, SubscriptionTierMonthly},
		{EventData{}, SubscriptionTierMonthly},
	}
	for _, tt := range tests {
		if got := tt.data.Tier(); got != tt.want {
			t.Errorf("plan %+v: expected %s, got %s", tt.data, tt.want, got)
		}
	}
}

func TestEventData_Outcome(t *testing.T) {
	if (EventData{}).Outcome() != PaymentOutcomeSuccess {
		t.Error("expected empty status to count as success")
	}
	if (EventData{Status: "Success"}).Outcome() != PaymentOutcomeSuccess {
		t.Error("expected 'Success' to count as success")
	}
	if (EventData{Status: "failed"}).Outcome() != PaymentOutcomeFailed {
		t.Error("expected 'failed' to count as failed")
	}
	if (EventData{Status: "pending"}).Outcome() != PaymentOutcomeOther {
		t.Error("expected 'pending' to be neither success nor failure")
	}
}

func TestNewWebhookEvent(t *testing.T) {
	now := time.Now()
	ev := NewWebhookEvent("paystack", "ref_1", EventTypeChargeSuccess, []byte(`{}`), now)
	if ev.ID == "" {
		t.Fatal("expected a generated id")
	}
	if ev.Processed || ev.ProcessedAt != nil {
		t.Error("expected a new event to be unprocessed")
	}
	other := NewWebhookEvent("paystack", "ref_2", EventTypeChargeSuccess, nil, now)
	if other.ID == ev.ID {
		t.Error("expected unique ids")
	}
}
