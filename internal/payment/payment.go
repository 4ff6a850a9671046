// Package payment talks to the hosted checkout provider.
package payment

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/model"
)

var (
	// ErrUnavailable covers timeouts, transport failures and provider-side errors.
	ErrUnavailable = errors.New("payment gateway unavailable")

	// ErrRejected means the provider refused the request as invalid.
	ErrRejected = errors.New("payment gateway rejected request")
)

// Gateway creates hosted payment sessions.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// SessionRequest describes a persisted order to be paid. Amounts come only
// from the order and its items.
type SessionRequest struct {
	Order      *model.Order
	Items      []model.OrderItem
	SuccessURL string
	CancelURL  string

	// Attempt separates deliberate new sessions for the same order. Requests
	// with the same order, parameters and Attempt share one provider
	// idempotency key, so an empty Attempt makes a repeat call return the
	// session created first.
	Attempt string
}

// Session is a hosted checkout page.
type Session struct {
	ID              string
	URL             string
	PaymentIntentID *string
}

// APIError is an error response from the provider.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment provider returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

// Unwrap classifies the response: 429 and 5xx are retryable, other 4xx are rejections.
func (e *APIError) Unwrap() error {
	if e.StatusCode >= 500 || e.StatusCode == 429 {
		return ErrUnavailable
	}
	return ErrRejected
}
