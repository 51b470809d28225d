package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// WebhookEvent is one row of the append-only delivery log. A row is created the
// first time an event id is seen and flips to processed exactly once.
type WebhookEvent struct {
	ID              string // ULID
	Provider        string // e.g. "paystack"
	ProviderEventID string // unique per provider
	EventType       EventType
	RawPayload      []byte // verbatim body, kept for audit and replay
	Processed       bool
	ProcessedAt     *time.Time
	CreatedAt       time.Time
}

// NewWebhookEvent builds an unprocessed log row for a freshly seen delivery.
func NewWebhookEvent(provider, providerEventID string, eventType EventType, raw []byte, now time.Time) *WebhookEvent {
	return &WebhookEvent{
		ID:              ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Provider:        provider,
		ProviderEventID: providerEventID,
		EventType:       eventType,
		RawPayload:      raw,
		CreatedAt:       now,
	}
}
