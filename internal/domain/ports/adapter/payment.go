package adapter

import (
	"aitools-pro-billing/internal/domain/model"
)

// WebhookProvider is the hex port for a billing provider's webhook format.
type WebhookProvider interface {
	// Name is the fixed provider identifier stored on every webhook_events row.
	Name() string

	// VerifySignature checks the signature header against the raw, unparsed body.
	// Returns domain.ErrInvalidSignature on mismatch.
	VerifySignature(body []byte, signature string) error

	// ParseEvent decodes a verified body into a billing event and derives the
	// provider event id used for deduplication. Returns domain.ErrInvalidPayload
	// for bodies that are not a valid envelope.
	ParseEvent(body []byte) (event model.BillingEvent, providerEventID string, err error)
}
