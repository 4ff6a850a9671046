package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
)

// DefaultWebhookTolerance bounds how old a signed webhook may be.
const DefaultWebhookTolerance = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrIgnoredEvent     = errors.New("webhook event ignored")
)

// PaymentResult is a verified payment outcome for one checkout session.
type PaymentResult struct {
	EventID         string
	EventType       string
	SessionID       string
	OrderID         *uuid.UUID
	PaymentIntentID *string
	Status          model.PaymentStatus
}

// WebhookVerifier authenticates and decodes provider webhooks.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier creates a verifier for the endpoint signing secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{
		secret:    []byte(secret),
		tolerance: DefaultWebhookTolerance,
		now:       time.Now,
	}
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			PaymentIntent     *string           `json:"payment_intent"`
			PaymentStatus     string            `json:"payment_status"`
			ClientReferenceID string            `json:"client_reference_id"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Parse verifies the Stripe-Signature header and maps the event to a payment
// result. Events that do not change payment status return ErrIgnoredEvent.
func (v *WebhookVerifier) Parse(payload []byte, signatureHeader string) (*PaymentResult, error) {
	if err := v.verify(payload, signatureHeader); err != nil {
		return nil, err
	}

	var evt webhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}

	obj := evt.Data.Object
	result := &PaymentResult{
		EventID:         evt.ID,
		EventType:       evt.Type,
		SessionID:       obj.ID,
		PaymentIntentID: obj.PaymentIntent,
	}

	ref := obj.Metadata["order_id"]
	if ref == "" {
		ref = obj.ClientReferenceID
	}
	if id, err := uuid.Parse(ref); err == nil {
		result.OrderID = &id
	}

	switch evt.Type {
	case "checkout.session.completed":
		if obj.PaymentStatus != "paid" && obj.PaymentStatus != "no_payment_required" {
			return nil, ErrIgnoredEvent
		}
		result.Status = model.PaymentPaid
	case "checkout.session.async_payment_succeeded":
		result.Status = model.PaymentPaid
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		result.Status = model.PaymentFailed
	default:
		return nil, ErrIgnoredEvent
	}

	if result.SessionID == "" && result.OrderID == nil {
		return nil, fmt.Errorf("webhook event %s references no session or order", evt.ID)
	}

	return result, nil
}

func (v *WebhookVerifier) verify(payload []byte, header string) error {
	var (
		timestamp  int64
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, val)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeSignature(v.secret, timestamp, payload)
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignWebhook builds a Stripe-Signature header value for payload.
func SignWebhook(secret string, timestamp time.Time, payload []byte) string {
	ts := timestamp.Unix()
	sig := computeSignature([]byte(secret), ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(sig))
}

func computeSignature(secret []byte, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
