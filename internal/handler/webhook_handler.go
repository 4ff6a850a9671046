package handler

import (
	"errors"
	"io"
	"net/http"

	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/service"

	"github.com/rs/zerolog"
)

const (
	signatureHeader    = "Stripe-Signature"
	maxWebhookBodySize = 64 << 10
)

// EventParser authenticates a raw webhook delivery.
type EventParser interface {
	Parse(payload []byte, signatureHeader string) (*payment.PaymentResult, error)
}

// WebhookHandler receives payment provider callbacks.
type WebhookHandler struct {
	parser EventParser
	orders service.OrderService
	logger zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(parser EventParser, orders service.OrderService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		parser: parser,
		orders: orders,
		logger: logger.With().Str("handler", "webhook").Logger(),
	}
}

type webhookAck struct {
	Received bool `json:"received"`
}

// Payment handles POST /webhooks/payment requests. Outcomes that a redelivery
// cannot change are acknowledged so the provider stops retrying; storage
// failures return 5xx so it retries.
func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		writeError(w, model.ErrInvalidInput.WithDetails("unreadable webhook body"), h.logger)
		return
	}

	result, err := h.parser.Parse(payload, r.Header.Get(signatureHeader))
	switch {
	case errors.Is(err, payment.ErrIgnoredEvent):
		writeJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, model.ErrInvalidInput.WithDetails("invalid signature").Wrap(err), h.logger)
		return
	case err != nil:
		writeError(w, model.ErrInvalidInput.WithDetails("invalid webhook payload").Wrap(err), h.logger)
		return
	}

	log := h.logger.With().
		Str("event_id", result.EventID).
		Str("event_type", result.EventType).
		Str("session_id", result.SessionID).
		Logger()

	_, err = h.orders.ApplyPaymentResult(r.Context(), result)
	switch {
	case err == nil:
		log.Info().Str("payment_status", string(result.Status)).Msg("payment webhook applied")
	case errors.Is(err, model.ErrOrderNotFound),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrInvalidInput):
		log.Warn().Err(err).Msg("payment webhook not applicable, acknowledging")
	default:
		writeError(w, err, log)
		return
	}

	writeJSON(w, http.StatusOK, webhookAck{Received: true})
}
