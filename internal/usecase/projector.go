// File: internal/usecase/projector.go
package usecase

import (
	"fmt"
	"time"

	"aitools-pro-billing/internal/domain"
	"aitools-pro-billing/internal/domain/model"
)

// Projection is the outcome of applying one billing event to a subscriber row.
type Projection struct {
	// Subscriber is the row to upsert when Changed is true; otherwise it is the
	// unchanged input (possibly nil).
	Subscriber *model.Subscriber
	Changed    bool
	From       model.SubscriptionStatus
	To         model.SubscriptionStatus
}

// Project maps a billing event and the current subscriber row (nil if absent)
// onto the row to persist. It does no I/O and is idempotent: projecting the same
// event onto its own result yields the same row.
//
// Rules:
//   - charge.success / subscription.create with a successful payment activate the
//     tier derived from the plan (annual: +1y, monthly: +1m, lifetime: no end).
//   - invoice.payment_failed, or an explicit failed payment status, -> past_due.
//   - subscription.disable -> expired.
//   - lifetime is terminal; unknown events change nothing.
//   - provider_customer_id, subscription_started_at and last_payment_ref keep their
//     previous values unless the event supplies new ones.
//   - failure/disable for an email with no row does not create one.
func Project(ev model.BillingEvent, current *model.Subscriber, now time.Time) (*Projection, error) {
	from := model.SubscriptionStatusNone
	if current != nil {
		from = current.Status
	}
	unchanged := &Projection{Subscriber: current, From: from, To: from}

	if ev == nil {
		return nil, domain.ErrInvalidArgument
	}
	if _, ok := ev.(model.UnrecognizedEvent); ok {
		return unchanged, nil
	}

	data := ev.Data()
	email := model.NormalizeEmail(data.CustomerEmail)
	if email == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPayload, domain.ErrMissingCustomerEmail)
	}
	if current != nil && current.Status == model.SubscriptionStatusLifetime {
		return unchanged, nil
	}

	switch ev.(type) {
	case model.ChargeSucceeded, model.SubscriptionCreated:
		switch data.Outcome() {
		case model.PaymentOutcomeSuccess:
			return activate(email, data, current, now)
		case model.PaymentOutcomeFailed:
			return deactivate(data, current, model.SubscriptionStatusPastDue, now, unchanged)
		default:
			return unchanged, nil
		}
	case model.InvoicePaymentFailed:
		return deactivate(data, current, model.SubscriptionStatusPastDue, now, unchanged)
	case model.SubscriptionDisabled:
		return deactivate(data, current, model.SubscriptionStatusExpired, now, unchanged)
	default:
		return unchanged, nil
	}
}

func activate(email string, data model.EventData, current *model.Subscriber, now time.Time) (*Projection, error) {
	next := current.Clone()
	if next == nil {
		s, err := model.NewSubscriber(email)
		if err != nil {
			return nil, err
		}
		s.CreatedAt = now
		next = s
	}

	// Anchor dates on the provider's payment time so a retried delivery of the
	// same payload lands on the same end date.
	anchor := now
	if data.PaidAt != nil && !data.PaidAt.IsZero() {
		anchor = data.PaidAt.UTC()
	}

	next.Tier = data.Tier()
	switch next.Tier {
	case model.SubscriptionTierAnnual:
		ends := anchor.AddDate(1, 0, 0)
		next.EndsAt = &ends
		next.SetStatus(model.SubscriptionStatusActive)
	case model.SubscriptionTierLifetime:
		next.EndsAt = nil
		next.SetStatus(model.SubscriptionStatusLifetime)
	default:
		ends := anchor.AddDate(0, 1, 0)
		next.EndsAt = &ends
		next.SetStatus(model.SubscriptionStatusActive)
	}
	if next.StartedAt == nil {
		started := anchor
		next.StartedAt = &started
	}
	mergeRefs(next, data)
	next.UpdatedAt = now

	from := model.SubscriptionStatusNone
	if current != nil {
		from = current.Status
	}
	return &Projection{Subscriber: next, Changed: true, From: from, To: next.Status}, nil
}

// deactivate flips status and flags only; tier and dates stay on record.
func deactivate(data model.EventData, current *model.Subscriber, status model.SubscriptionStatus, now time.Time, unchanged *Projection) (*Projection, error) {
	if current == nil {
		return unchanged, nil
	}
	next := current.Clone()
	next.SetStatus(status)
	mergeRefs(next, data)
	next.UpdatedAt = now
	return &Projection{Subscriber: next, Changed: true, From: current.Status, To: status}, nil
}

func mergeRefs(s *model.Subscriber, data model.EventData) {
	if data.CustomerCode != "" {
		s.ProviderCustomerID = data.CustomerCode
	}
	if data.Reference != "" {
		s.LastPaymentRef = data.Reference
	}
}
