package model

import (
	"strings"
	"time"
)

type EventType string

const (
	EventTypeChargeSuccess        EventType = "charge.success"
	EventTypeSubscriptionCreate   EventType = "subscription.create"
	EventTypeSubscriptionDisable  EventType = "subscription.disable"
	EventTypeInvoicePaymentFailed EventType = "invoice.payment_failed"
	EventTypeUnknown              EventType = "unknown"
)

// ParseEventType maps a provider event name onto the closed set of handled types.
// Anything else becomes EventTypeUnknown.
func ParseEventType(name string) EventType {
	switch EventType(strings.TrimSpace(name)) {
	case EventTypeChargeSuccess:
		return EventTypeChargeSuccess
	case EventTypeSubscriptionCreate:
		return EventTypeSubscriptionCreate
	case EventTypeSubscriptionDisable:
		return EventTypeSubscriptionDisable
	case EventTypeInvoicePaymentFailed:
		return EventTypeInvoicePaymentFailed
	default:
		return EventTypeUnknown
	}
}

type PaymentOutcome int

const (
	PaymentOutcomeOther PaymentOutcome = iota
	PaymentOutcomeSuccess
	PaymentOutcomeFailed
)

// EventData holds the validated fields the projector reads from a billing event.
// Optional fields are zero when the provider omitted them.
type EventData struct {
	TransactionID string
	Reference     string
	CustomerEmail string
	CustomerCode  string
	PlanCode      string
	PlanName      string
	PlanInterval  string
	Amount        int64
	Currency      string
	Status        string
	PaidAt        *time.Time
}

// Outcome classifies the provider's payment status string. An empty status counts
// as success because the event type itself already says the charge went through.
func (d EventData) Outcome() PaymentOutcome {
	switch strings.ToLower(strings.TrimSpace(d.Status)) {
	case "", "success", "successful", "active", "paid", "completed":
		return PaymentOutcomeSuccess
	case "failed", "failure", "declined", "reversed", "abandoned":
		return PaymentOutcomeFailed
	default:
		return PaymentOutcomeOther
	}
}

// Tier derives the subscription tier from the plan code, name and interval.
func (d EventData) Tier() SubscriptionTier {
	plan := strings.ToLower(d.PlanCode + " " + d.PlanName + " " + d.PlanInterval)
	switch {
	case strings.Contains(plan, "annual"), strings.Contains(plan, "year"):
		return SubscriptionTierAnnual
	case strings.Contains(plan, "lifetime"):
		return SubscriptionTierLifetime
	default:
		return SubscriptionTierMonthly
	}
}

// BillingEvent is a validated provider event. The concrete type says which
// transition applies; UnrecognizedEvent covers names this service ignores.
type BillingEvent interface {
	Type() EventType
	Data() EventData
	isBillingEvent()
}

type ChargeSucceeded struct{ EventData }

type SubscriptionCreated struct{ EventData }

type SubscriptionDisabled struct{ EventData }

type InvoicePaymentFailed struct{ EventData }

// UnrecognizedEvent keeps the original event name for logging.
type UnrecognizedEvent struct {
	Name string
	EventData
}

func (ChargeSucceeded) Type() EventType      { return EventTypeChargeSuccess }
func (SubscriptionCreated) Type() EventType  { return EventTypeSubscriptionCreate }
func (SubscriptionDisabled) Type() EventType { return EventTypeSubscriptionDisable }
func (InvoicePaymentFailed) Type() EventType { return EventTypeInvoicePaymentFailed }
func (UnrecognizedEvent) Type() EventType    { return EventTypeUnknown }

func (e ChargeSucceeded) Data() EventData      { return e.EventData }
func (e SubscriptionCreated) Data() EventData  { return e.EventData }
func (e SubscriptionDisabled) Data() EventData { return e.EventData }
func (e InvoicePaymentFailed) Data() EventData { return e.EventData }
func (e UnrecognizedEvent) Data() EventData    { return e.EventData }

func (ChargeSucceeded) isBillingEvent()      {}
func (SubscriptionCreated) isBillingEvent()  {}
func (SubscriptionDisabled) isBillingEvent() {}
func (InvoicePaymentFailed) isBillingEvent() {}
func (UnrecognizedEvent) isBillingEvent()    {}

// NewBillingEvent picks the variant for a provider event name.
func NewBillingEvent(name string, data EventData) BillingEvent {
	switch ParseEventType(name) {
	case EventTypeChargeSuccess:
		return ChargeSucceeded{data}
	case EventTypeSubscriptionCreate:
		return SubscriptionCreated{data}
	case EventTypeSubscriptionDisable:
		return SubscriptionDisabled{data}
	case EventTypeInvoicePaymentFailed:
		return InvoicePaymentFailed{data}
	default:
		return UnrecognizedEvent{Name: name, EventData: data}
	}
}
