package model

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string     `json:"error"`
	Message       string     `json:"message"`
	OrderID       *uuid.UUID `json:"orderId,omitempty"`
	Details       []string   `json:"details,omitempty"`
	CorrelationID string     `json:"correlationId,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON         = "INVALID_JSON"
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeProductNotFound     = "PRODUCT_NOT_FOUND"
	ErrCodeProductUnavailable  = "PRODUCT_UNAVAILABLE"
	ErrCodePersistenceFailure  = "PERSISTENCE_FAILURE"
	ErrCodeGatewayUnavailable  = "GATEWAY_UNAVAILABLE"
	ErrCodeGatewayRejected     = "GATEWAY_REJECTED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeOrderNotFound       = "ORDER_NOT_FOUND"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	ErrCodeAlreadyPaid         = "ALREADY_PAID"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// DomainError is a business-level failure with a stable code.
// Two domain errors match under errors.Is when their codes are equal, so the
// sentinels below can be compared against enriched copies.
type DomainError struct {
	Code    string
	Message string
	Details []string
	OrderID *uuid.UUID
	Err     error
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy carrying the given details.
func (e *DomainError) WithDetails(details ...string) *DomainError {
	c := *e
	c.Details = append(append([]string(nil), e.Details...), details...)
	return &c
}

// WithOrder returns a copy tied to an already persisted order.
func (e *DomainError) WithOrder(id uuid.UUID) *DomainError {
	c := *e
	c.OrderID = &id
	return &c
}

// Wrap returns a copy with err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	c := *e
	c.Err = err
	return &c
}

// AsDomainError extracts the first DomainError in err's chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Common domain errors
var (
	ErrUnauthenticated     = NewDomainError(ErrCodeUnauthenticated, "Authentication required")
	ErrInvalidInput        = NewDomainError(ErrCodeInvalidInput, "Invalid request")
	ErrProductNotFound     = NewDomainError(ErrCodeProductNotFound, "One or more products not found")
	ErrProductUnavailable  = NewDomainError(ErrCodeProductUnavailable, "One or more products are unavailable")
	ErrPersistenceFailure  = NewDomainError(ErrCodePersistenceFailure, "Failed to save order")
	ErrGatewayUnavailable  = NewDomainError(ErrCodeGatewayUnavailable, "Payment provider unavailable")
	ErrGatewayRejected     = NewDomainError(ErrCodeGatewayRejected, "Payment provider rejected the checkout session")
	ErrUnauthorized        = NewDomainError(ErrCodeUnauthorized, "Not allowed to access this order")
	ErrOrderNotFound       = NewDomainError(ErrCodeOrderNotFound, "Order not found")
	ErrInvalidTransition   = NewDomainError(ErrCodeInvalidTransition, "Invalid status transition")
	ErrIdempotencyConflict = NewDomainError(ErrCodeIdempotencyConflict, "Idempotency key reused with a different request")
	ErrAlreadyPaid         = NewDomainError(ErrCodeAlreadyPaid, "Order is already paid")
)
