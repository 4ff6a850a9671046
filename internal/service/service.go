package service

import (
	"context"

	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/payment"

	"github.com/google/uuid"
)

// ProductService defines read operations on the active catalog.
type ProductService interface {
	// GetAll retrieves active products with pagination.
	GetAll(ctx context.Context, limit, offset int) ([]model.Product, error)

	// GetByID retrieves a single active product by ID.
	GetByID(ctx context.Context, id string) (*model.Product, error)
}

// CheckoutService turns an untrusted cart into a persisted order and a hosted payment session.
type CheckoutService interface {
	CreateCheckout(ctx context.Context, identity auth.Identity, req *model.CheckoutRequest) (*model.CheckoutResult, error)

	// RetryPayment opens a new payment session for the actor's own pending order.
	RetryPayment(ctx context.Context, identity auth.Identity, orderID uuid.UUID) (*model.CheckoutResult, error)
}

// OrderService defines order reads and the operations that move an order
// through its lifecycle.
type OrderService interface {
	// GetOrder returns an order the actor owns, or any order for an admin.
	GetOrder(ctx context.Context, actor auth.Identity, id uuid.UUID) (*model.OrderDetail, error)

	// ListOrders returns the actor's own orders, newest first.
	ListOrders(ctx context.Context, actor auth.Identity, filter model.OrderFilter) ([]model.Order, error)

	// ListAllOrders returns every order. Admin only.
	ListAllOrders(ctx context.Context, actor auth.Identity, filter model.OrderFilter) ([]model.Order, error)

	// UpdateStatus moves an order along its fulfilment lifecycle. Admin only.
	UpdateStatus(ctx context.Context, actor auth.Identity, id uuid.UUID, update model.StatusUpdate) (*model.Order, error)

	// ResendNotification queues a customer email for the order.
	ResendNotification(ctx context.Context, actor auth.Identity, id uuid.UUID, t model.NotificationType) error

	// ApplyPaymentResult records a verified payment outcome from the gateway.
	ApplyPaymentResult(ctx context.Context, result *payment.PaymentResult) (*model.Order, error)
}
