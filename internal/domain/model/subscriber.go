package model

import (
	"strings"
	"time"

	"aitools-pro-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusNone     SubscriptionStatus = "none"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
	SubscriptionStatusLifetime SubscriptionStatus = "lifetime"
)

// Entitled reports whether a subscriber in this status gets Pro features.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusLifetime
}

type SubscriptionTier string

const (
	SubscriptionTierMonthly  SubscriptionTier = "monthly"
	SubscriptionTierAnnual   SubscriptionTier = "annual"
	SubscriptionTierLifetime SubscriptionTier = "lifetime"
)

// Subscriber is the current entitlement projection for one billing customer.
type Subscriber struct {
	Email              string // natural key, lower-cased
	ProviderCustomerID string // "" until the provider sends one
	Status             SubscriptionStatus
	Tier               SubscriptionTier
	PremiumBadge       bool
	ProEnabled         bool
	StartedAt          *time.Time
	EndsAt             *time.Time // nil: never expires (lifetime) or unknown
	LastPaymentRef     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewSubscriber returns an empty projection for email with status none.
func NewSubscriber(email string) (*Subscriber, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscriber{Email: email, Status: SubscriptionStatusNone}, nil
}

// SetStatus changes the status and keeps the entitlement flags consistent with it.
func (s *Subscriber) SetStatus(status SubscriptionStatus) {
	s.Status = status
	s.PremiumBadge = status.Entitled()
	s.ProEnabled = status.Entitled()
}

// Clone returns a deep copy so callers can compute a new projection without
// mutating the stored one.
func (s *Subscriber) Clone() *Subscriber {
	if s == nil {
		return nil
	}
	cp := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	if s.EndsAt != nil {
		t := *s.EndsAt
		cp.EndsAt = &t
	}
	return &cp
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
