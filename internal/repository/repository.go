package repository

import (
	"context"
	"errors"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateOrderNumber is returned when a generated order number is already taken.
	ErrDuplicateOrderNumber = errors.New("order number already exists")

	// ErrDuplicateIdempotencyKey is returned when a concurrent checkout claimed the same key first.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

const (
	orderNumberConstraint    = "orders_order_number_key"
	idempotencyKeyConstraint = "idx_orders_user_idempotency"
	uniqueViolationCode      = "23505"
)

// ProductRepository defines the interface for product data access operations.
type ProductRepository interface {
	// GetAll retrieves active products with pagination support.
	GetAll(ctx context.Context, limit, offset int) ([]model.Product, error)

	// GetByID retrieves a single product by its ID, active or not.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// GetByIDs retrieves multiple products by their IDs in a single query,
	// including inactive ones so callers can tell missing from unavailable.
	GetByIDs(ctx context.Context, ids []string) ([]model.Product, error)

	// Upsert inserts or updates products, returning how many rows were written.
	Upsert(ctx context.Context, products []model.Product) (int, error)
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// CreateOrder inserts a new order header within the provided transaction.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// CreateOrderItems inserts multiple order items within the provided transaction.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// DeleteOrder removes an order and, by cascade, its items.
	DeleteOrder(ctx context.Context, id uuid.UUID) error

	// GetByID retrieves an order by its ID along with its items.
	// A missing order yields nil without error.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error)

	// GetByIdempotencyKey finds a user's order created with the given key.
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*model.Order, error)

	// ReleaseIdempotencyKey clears an order's idempotency key within the provided transaction.
	ReleaseIdempotencyKey(ctx context.Context, tx pgx.Tx, id uuid.UUID) error

	// GetByPaymentSession finds the order a gateway session was created for.
	GetByPaymentSession(ctx context.Context, sessionID string) (*model.Order, error)

	// List returns orders newest first.
	List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)

	// SetPaymentSession records the gateway session on a pending order.
	SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID string, intentID *string) error

	// UpdateStatus applies a status change if the order is still in ExpectedStatus.
	UpdateStatus(ctx context.Context, change model.StatusChange) (bool, error)

	// UpdatePayment applies a payment change if the order is still in ExpectedStatus.
	UpdatePayment(ctx context.Context, update model.PaymentUpdate) (bool, error)
}

// RoleRepository resolves user roles.
type RoleRepository interface {
	// HasRole reports whether the user holds the role.
	HasRole(ctx context.Context, userID, role string) (bool, error)

	// Grant assigns a role to a user; granting twice is a no-op.
	Grant(ctx context.Context, userID, role string) error
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return pgErr.ConstraintName, true
	}
	return "", false
}
