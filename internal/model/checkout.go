package model

import (
	"github.com/google/uuid"
)

// CheckoutRequest is the untrusted cart submitted by a shopper.
type CheckoutRequest struct {
	Items           []CheckoutLine  `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method,omitempty"`

	// IdempotencyKey comes from the Idempotency-Key header, never the body.
	IdempotencyKey string `json:"-"`
}

// CheckoutLine identifies a product and quantity. Any price sent by the client is ignored.
type CheckoutLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CheckoutResult is returned once a hosted payment session exists.
type CheckoutResult struct {
	URL         string    `json:"url"`
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	SessionID   string    `json:"sessionId"`
}

// NotificationType names a customer email.
type NotificationType string

const (
	NotificationConfirmation NotificationType = "confirmation"
	NotificationShipped      NotificationType = "shipped"
)

// Valid reports whether t is a supported notification.
func (t NotificationType) Valid() bool {
	return t == NotificationConfirmation || t == NotificationShipped
}
