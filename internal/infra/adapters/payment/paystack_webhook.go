// File: internal/infra/adapters/payment/paystack_webhook.go
package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"aitools-pro-billing/internal/domain"
	"aitools-pro-billing/internal/domain/model"
	"aitools-pro-billing/internal/domain/ports/adapter"
)

var _ adapter.WebhookProvider = (*PaystackWebhook)(nil)

// SignatureHeader carries the hex HMAC-SHA512 of the raw request body.
const SignatureHeader = "X-Paystack-Signature"

// PaystackWebhook implements adapter.WebhookProvider for Paystack-style events.
type PaystackWebhook struct {
	secret []byte
}

func NewPaystackWebhook(secretKey string) (*PaystackWebhook, error) {
	if secretKey == "" {
		return nil, errors.New("paystack secret key empty")
	}
	return &PaystackWebhook{secret: []byte(secretKey)}, nil
}

func (p *PaystackWebhook) Name() string { return "paystack" }

// Sign returns the hex signature the provider would send for body.
func (p *PaystackWebhook) Sign(body []byte) string {
	h := hmac.New(sha512.New, p.secret)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (p *PaystackWebhook) VerifySignature(body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("%w: signature is missing", domain.ErrInvalidSignature)
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", domain.ErrInvalidSignature)
	}
	h := hmac.New(sha512.New, p.secret)
	h.Write(body)
	if !hmac.Equal(h.Sum(nil), got) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrInvalidSignature)
	}
	return nil
}

// envelope is the wire shape: { event, data{...} }.
type envelope struct {
	Event string        `json:"event"`
	Data  *envelopeData `json:"data"`
}

type envelopeData struct {
	ID        flexString      `json:"id"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    json.Number     `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    string          `json:"paid_at"`
	CreatedAt string          `json:"created_at"`
	Customer  *customer       `json:"customer"`
	Plan      json.RawMessage `json:"plan"`
}

type customer struct {
	Email        string `json:"email"`
	CustomerCode string `json:"customer_code"`
}

type plan struct {
	PlanCode string `json:"plan_code"`
	Name     string `json:"name"`
	Interval string `json:"interval"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (p *PaystackWebhook) ParseEvent(body []byte) (model.BillingEvent, string, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	name := strings.TrimSpace(env.Event)
	if name == "" {
		return nil, "", fmt.Errorf("%w: event is required", domain.ErrInvalidPayload)
	}

	var data model.EventData
	var id string
	if d := env.Data; d != nil {
		amount, err := parseAmount(d.Amount)
		if err != nil {
			return nil, "", fmt.Errorf("%w: amount: %v", domain.ErrInvalidPayload, err)
		}
		pl, err := parsePlan(d.Plan)
		if err != nil {
			return nil, "", fmt.Errorf("%w: plan: %v", domain.ErrInvalidPayload, err)
		}
		data = model.EventData{
			TransactionID: string(d.ID),
			Reference:     strings.TrimSpace(d.Reference),
			PlanCode:      pl.PlanCode,
			PlanName:      pl.Name,
			PlanInterval:  pl.Interval,
			Amount:        amount,
			Currency:      d.Currency,
			Status:        d.Status,
			PaidAt:        parseTime(d.PaidAt, d.CreatedAt),
		}
		if d.Customer != nil {
			data.CustomerEmail = model.NormalizeEmail(d.Customer.Email)
			data.CustomerCode = strings.TrimSpace(d.Customer.CustomerCode)
		}
		id = string(d.ID)
	}

	ev := model.NewBillingEvent(name, data)
	return ev, providerEventID(name, data, id), nil
}

// providerEventID scopes the object id (else the reference) by event name:
// subscription.create and subscription.disable carry the same subscription
// id, while a redelivery repeats both. Without either it falls back to
// event:email:amount, which can alias two distinct events with the same
// type, customer and amount.
func providerEventID(event string, data model.EventData, id string) string {
	if id != "" {
		return event + ":" + id
	}
	if data.Reference != "" {
		return event + ":" + data.Reference
	}
	return fmt.Sprintf("%s:%s:%d", event, data.CustomerEmail, data.Amount)
}

func parseAmount(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}

// parsePlan accepts a plan object, a bare plan code string, or nothing.
func parsePlan(raw json.RawMessage) (plan, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return plan{}, nil
	}
	if raw[0] == '"' {
		var code string
		if err := json.Unmarshal(raw, &code); err != nil {
			return plan{}, err
		}
		return plan{PlanCode: code}, nil
	}
	var pl plan
	if err := json.Unmarshal(raw, &pl); err != nil {
		return plan{}, err
	}
	return pl, nil
}

// parseTime returns the first value that parses as RFC3339; unparseable
// timestamps are dropped rather than failing the event.
func parseTime(values ...string) *time.Time {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
