package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/model"
	"storefront/internal/pricing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const orderColumns = `
	id, order_number, user_id, contact_email,
	subtotal_cents, shipping_cents, tax_cents, total_cents, currency,
	status, payment_method, payment_status, payment_session_id, payment_intent_id,
	tracking_number, shipping_address, idempotency_key, request_fingerprint,
	created_at, updated_at, shipped_at, delivered_at`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// CreateOrder inserts a new order header within the provided transaction.
func (r *orderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	query := `
		INSERT INTO orders (
			id, order_number, user_id, contact_email,
			subtotal_cents, shipping_cents, tax_cents, total_cents, currency,
			status, payment_method, payment_status, shipping_address,
			idempotency_key, request_fingerprint, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := tx.Exec(ctx, query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.ContactEmail,
		pricing.ToCents(order.Subtotal),
		pricing.ToCents(order.ShippingCost),
		pricing.ToCents(order.TaxAmount),
		pricing.ToCents(order.TotalAmount),
		order.Currency,
		string(order.Status),
		order.PaymentMethod,
		string(order.PaymentStatus),
		order.ShippingAddress,
		order.IdempotencyKey,
		order.RequestFingerprint,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case orderNumberConstraint:
				return fmt.Errorf("failed to create order %s: %w", order.OrderNumber, ErrDuplicateOrderNumber)
			case idempotencyKeyConstraint:
				return fmt.Errorf("failed to create order: %w", ErrDuplicateIdempotencyKey)
			}
		}
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Msg("order created")

	return nil
}

// CreateOrderItems inserts multiple order items within the provided transaction.
func (r *orderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (
			id, order_id, line_no, product_id, product_name, product_image,
			quantity, unit_price_cents, total_price_cents
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	batch := &pgx.Batch{}
	for i, item := range items {
		lineNo := item.LineNo
		if lineNo == 0 {
			lineNo = i + 1
		}
		batch.Queue(query,
			item.ID,
			item.OrderID,
			lineNo,
			item.ProductID,
			item.ProductName,
			item.ProductImage,
			item.Quantity,
			pricing.ToCents(item.UnitPrice),
			pricing.ToCents(item.TotalPrice),
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(items); i++ {
		_, err := results.Exec()
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", items[i].OrderID.String()).
				Str("product_id", items[i].ProductID).
				Msg("failed to create order item")
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(items)).
		Msg("order items created")

	return nil
}

// DeleteOrder removes an order and its items.
func (r *orderRepository) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to delete order")
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID along with its items.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error) {
	order, err := r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil || order == nil {
		return nil, nil, err
	}

	itemsQuery := `
		SELECT id, order_id, line_no, product_id, product_name, product_image,
			quantity, unit_price_cents, total_price_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no
	`

	rows, err := r.pool.Query(ctx, itemsQuery, id)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", id.String()).
			Msg("failed to query order items")
		return nil, nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := []model.OrderItem{}
	for rows.Next() {
		var (
			item            model.OrderItem
			unit, lineTotal int64
		)
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.LineNo, &item.ProductID, &item.ProductName, &item.ProductImage,
			&item.Quantity, &unit, &lineTotal,
		)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order item row")
			return nil, nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		item.UnitPrice = pricing.FromCents(unit)
		item.TotalPrice = pricing.FromCents(lineTotal)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order item rows")
		return nil, nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return order, items, nil
}

// GetByIdempotencyKey finds a user's order created with the given key.
func (r *orderRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*model.Order, error) {
	return r.getOne(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`,
		userID, key,
	)
}

// GetByPaymentSession finds the order a gateway session was created for.
func (r *orderRepository) GetByPaymentSession(ctx context.Context, sessionID string) (*model.Order, error) {
	return r.getOne(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_session_id = $1`,
		sessionID,
	)
}

// List returns orders newest first.
func (r *orderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, filter.Search+"%")
		conds = append(conds, fmt.Sprintf("order_number LIKE $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list orders")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order row")
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// ReleaseIdempotencyKey clears the key of an order within tx so a newer
// order can take it over.
func (r *orderRepository) ReleaseIdempotencyKey(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(ctx, `UPDATE orders SET idempotency_key = NULL WHERE id = $1`, id); err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to release idempotency key")
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// SetPaymentSession records the gateway session on a pending order.
func (r *orderRepository) SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID string, intentID *string) error {
	query := `
		UPDATE orders
		SET payment_session_id = $2,
			payment_intent_id = COALESCE($3, payment_intent_id),
			updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, id, sessionID, intentID); err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to record payment session")
		return fmt.Errorf("failed to record payment session: %w", err)
	}
	return nil
}

// UpdateStatus applies a status change if the order is still in the expected status.
func (r *orderRepository) UpdateStatus(ctx context.Context, change model.StatusChange) (bool, error) {
	query := `
		UPDATE orders
		SET status = $3,
			tracking_number = COALESCE($4, tracking_number),
			shipped_at = COALESCE(shipped_at, $5),
			delivered_at = COALESCE(delivered_at, $6),
			updated_at = $7
		WHERE id = $1 AND status = $2
	`

	tag, err := r.pool.Exec(ctx, query,
		change.OrderID,
		string(change.ExpectedStatus),
		string(change.Status),
		change.TrackingNumber,
		change.ShippedAt,
		change.DeliveredAt,
		change.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", change.OrderID.String()).Msg("failed to update order status")
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// UpdatePayment applies a payment change if the order is still in the expected payment status.
func (r *orderRepository) UpdatePayment(ctx context.Context, update model.PaymentUpdate) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = $3,
			payment_session_id = COALESCE($4, payment_session_id),
			payment_intent_id = COALESCE($5, payment_intent_id),
			updated_at = $6
		WHERE id = $1 AND payment_status = $2
	`

	tag, err := r.pool.Exec(ctx, query,
		update.OrderID,
		string(update.ExpectedStatus),
		string(update.Status),
		update.PaymentSessionID,
		update.PaymentIntentID,
		update.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", update.OrderID.String()).Msg("failed to update payment status")
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *orderRepository) getOne(ctx context.Context, query string, args ...any) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return order, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                            model.Order
		subtotal, shipping, tax, tot int64
		status, paymentStatus        string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.ContactEmail,
		&subtotal, &shipping, &tax, &tot, &o.Currency,
		&status, &o.PaymentMethod, &paymentStatus, &o.PaymentSessionID, &o.PaymentIntentID,
		&o.TrackingNumber, &o.ShippingAddress, &o.IdempotencyKey, &o.RequestFingerprint,
		&o.CreatedAt, &o.UpdatedAt, &o.ShippedAt, &o.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	o.Subtotal = pricing.FromCents(subtotal)
	o.ShippingCost = pricing.FromCents(shipping)
	o.TaxAmount = pricing.FromCents(tax)
	o.TotalAmount = pricing.FromCents(tot)
	o.Status = model.OrderStatus(status)
	o.PaymentStatus = model.PaymentStatus(paymentStatus)
	return &o, nil
}
