package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const defaultCountry = "US"

// CheckoutOptions configures redirects, gateway timeout and idempotency.
type CheckoutOptions struct {
	PublicBaseURL     string
	PaymentTimeout    time.Duration
	IdempotencyWindow time.Duration
}

// checkoutService implements CheckoutService.
type checkoutService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	calculator  *pricing.Calculator
	gateway     payment.Gateway
	opts        CheckoutOptions
	logger      zerolog.Logger

	now         func() time.Time
	orderNumber func(time.Time) (string, error)
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	calculator *pricing.Calculator,
	gateway payment.Gateway,
	opts CheckoutOptions,
	logger zerolog.Logger,
) CheckoutService {
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = 10 * time.Second
	}
	if opts.IdempotencyWindow <= 0 {
		opts.IdempotencyWindow = 24 * time.Hour
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")

	return &checkoutService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		calculator:  calculator,
		gateway:     gateway,
		opts:        opts,
		logger:      logger.With().Str("service", "checkout").Logger(),
		now:         time.Now,
		orderNumber: newOrderNumber,
	}
}

// CreateCheckout re-prices the cart from the catalog, persists the order with
// its items atomically and opens a hosted payment session for it.
func (s *checkoutService) CreateCheckout(ctx context.Context, identity auth.Identity, req *model.CheckoutRequest) (*model.CheckoutResult, error) {
	if identity.UserID == "" || identity.Email == "" {
		return nil, model.ErrUnauthenticated
	}

	lines, address, err := s.validateCheckoutRequest(req)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", identity.UserID).Msg("checkout rejected")
		return nil, err
	}

	log := s.logger.With().Str("user_id", identity.UserID).Logger()

	var (
		idempotencyKey *string
		expiredOrderID *uuid.UUID
		fingerprint    = requestFingerprint(lines, address)
	)
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		existing, err := s.orderRepo.GetByIdempotencyKey(ctx, identity.UserID, key)
		if err != nil {
			log.Error().Err(err).Msg("failed to look up idempotency key")
			return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
		}
		switch {
		case existing == nil:
			idempotencyKey = &key
		case s.now().Sub(existing.CreatedAt) > s.opts.IdempotencyWindow:
			// The new order takes the key over in the same transaction.
			log.Info().Str("order_id", existing.ID.String()).Msg("idempotency key expired, moving it to a new order")
			idempotencyKey = &key
			expiredOrderID = &existing.ID
		default:
			return s.replay(ctx, existing, fingerprint)
		}
	}

	products, err := s.productRepo.GetByIDs(ctx, productIDs(lines))
	if err != nil {
		log.Error().Err(err).Msg("failed to load catalog snapshot")
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	items, totals, err := s.priceLines(lines, products)
	if err != nil {
		log.Warn().Err(err).Msg("cart references unknown or inactive products")
		return nil, err
	}

	now := s.now().UTC()
	order := &model.Order{
		ID:                 uuid.New(),
		UserID:             identity.UserID,
		ContactEmail:       identity.Email,
		Subtotal:           totals.Subtotal,
		ShippingCost:       totals.Shipping,
		TaxAmount:          totals.Tax,
		TotalAmount:        totals.Total,
		Currency:           s.calculator.Currency(),
		Status:             model.StatusPending,
		PaymentMethod:      model.PaymentMethodStripe,
		PaymentStatus:      model.PaymentPending,
		ShippingAddress:    address,
		IdempotencyKey:     idempotencyKey,
		RequestFingerprint: &fingerprint,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = order.ID
	}

	if err := s.persist(ctx, order, items, expiredOrderID); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			// A concurrent request with the same key won the insert.
			existing, lookupErr := s.orderRepo.GetByIdempotencyKey(ctx, identity.UserID, *idempotencyKey)
			if lookupErr == nil && existing != nil {
				return s.replay(ctx, existing, fingerprint)
			}
		}
		return nil, model.ErrPersistenceFailure.Wrap(err)
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("total", order.TotalAmount.StringFixed(2)).
		Int("item_count", len(items)).
		Msg("order created")

	return s.openSession(ctx, order, items, "")
}

// RetryPayment opens a new payment session for a pending order the actor
// owns. The order is neither re-priced nor re-created.
func (s *checkoutService) RetryPayment(ctx context.Context, identity auth.Identity, orderID uuid.UUID) (*model.CheckoutResult, error) {
	if identity.UserID == "" {
		return nil, model.ErrUnauthenticated
	}

	log := s.logger.With().Str("user_id", identity.UserID).Str("order_id", orderID.String()).Logger()

	order, items, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load order for payment retry")
		return nil, model.ErrPersistenceFailure.WithOrder(orderID).Wrap(err)
	}
	if order == nil || order.UserID != identity.UserID {
		log.Warn().Msg("payment retry for an order the user does not own")
		return nil, model.ErrUnauthorized
	}

	if order.PaymentStatus == model.PaymentPaid {
		return nil, model.ErrAlreadyPaid.WithOrder(order.ID)
	}
	if order.Status != model.StatusPending || order.PaymentStatus != model.PaymentPending {
		return nil, model.ErrInvalidTransition.
			WithOrder(order.ID).
			WithDetails(fmt.Sprintf("order is %s with payment %s", order.Status, order.PaymentStatus))
	}

	log.Info().Msg("retrying payment session")
	return s.openSession(ctx, order, items, uuid.NewString())
}

// replay answers a retried request that carries an already used idempotency key.
func (s *checkoutService) replay(ctx context.Context, existing *model.Order, fingerprint string) (*model.CheckoutResult, error) {
	log := s.logger.With().Str("order_id", existing.ID.String()).Logger()

	if existing.RequestFingerprint == nil || *existing.RequestFingerprint != fingerprint {
		log.Warn().Msg("idempotency key reused with a different cart")
		return nil, model.ErrIdempotencyConflict.WithOrder(existing.ID)
	}
	if existing.PaymentStatus == model.PaymentPaid {
		return nil, model.ErrAlreadyPaid.WithOrder(existing.ID)
	}
	if existing.Status != model.StatusPending || existing.PaymentStatus != model.PaymentPending {
		return nil, model.ErrIdempotencyConflict.
			WithOrder(existing.ID).
			WithDetails(fmt.Sprintf("order is %s with payment %s", existing.Status, existing.PaymentStatus))
	}

	order, items, err := s.orderRepo.GetByID(ctx, existing.ID)
	if err != nil || order == nil {
		log.Error().Err(err).Msg("failed to reload order for replay")
		return nil, model.ErrPersistenceFailure.WithOrder(existing.ID).Wrap(err)
	}

	log.Info().Msg("replaying checkout for idempotency key")
	return s.openSession(ctx, order, items, "")
}

// persist writes the header and items in one transaction, retrying with a new
// order number when the generated one collides. A non-nil releaseKeyFrom
// names the order whose expired idempotency key the new order takes over.
func (s *checkoutService) persist(ctx context.Context, order *model.Order, items []model.OrderItem, releaseKeyFrom *uuid.UUID) error {
	var lastErr error
	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		number, err := s.orderNumber(order.CreatedAt)
		if err != nil {
			return err
		}
		order.OrderNumber = number

		lastErr = s.persistOnce(ctx, order, items, releaseKeyFrom)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, repository.ErrDuplicateOrderNumber) {
			return lastErr
		}
		s.logger.Warn().
			Str("order_number", number).
			Int("attempt", attempt).
			Msg("order number collision, retrying")
	}
	return lastErr
}

func (s *checkoutService) persistOnce(ctx context.Context, order *model.Order, items []model.OrderItem, releaseKeyFrom *uuid.UUID) error {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if releaseKeyFrom != nil {
		if err := s.orderRepo.ReleaseIdempotencyKey(ctx, tx, *releaseKeyFrom); err != nil {
			s.rollback(ctx, tx, order.ID)
			return err
		}
	}

	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		s.rollback(ctx, tx, order.ID)
		return err
	}

	if err := s.orderRepo.CreateOrderItems(ctx, tx, items); err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Int("item_count", len(items)).
			Msg("failed to create order items")
		s.rollback(ctx, tx, order.ID)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to commit transaction")
		s.compensate(ctx, order.ID)
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// rollback aborts tx. If the rollback itself fails the header is deleted
// outside the transaction so no item-less order survives.
func (s *checkoutService) rollback(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to rollback transaction")
		s.compensate(ctx, orderID)
	}
}

func (s *checkoutService) compensate(ctx context.Context, orderID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	if err := s.orderRepo.DeleteOrder(ctx, orderID); err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", orderID.String()).
			Str("incident", "data_integrity").
			Msg("failed to remove partially written order")
	}
}

// openSession creates the hosted payment page from the persisted order only.
// Calls with the same attempt for an unchanged order resolve to one session.
func (s *checkoutService) openSession(ctx context.Context, order *model.Order, items []model.OrderItem, attempt string) (*model.CheckoutResult, error) {
	log := s.logger.With().Str("order_id", order.ID.String()).Logger()

	gctx, cancel := context.WithTimeout(ctx, s.opts.PaymentTimeout)
	defer cancel()

	session, err := s.gateway.CreateSession(gctx, payment.SessionRequest{
		Order:      order,
		Items:      items,
		SuccessURL: s.opts.PublicBaseURL + "/success?session_id={CHECKOUT_SESSION_ID}&order_id=" + order.ID.String(),
		CancelURL:  s.opts.PublicBaseURL + "/cancel",
		Attempt:    attempt,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create payment session")
		if errors.Is(err, payment.ErrRejected) {
			return nil, model.ErrGatewayRejected.WithOrder(order.ID).Wrap(err)
		}
		return nil, model.ErrGatewayUnavailable.WithOrder(order.ID).Wrap(err)
	}

	if err := s.orderRepo.SetPaymentSession(ctx, order.ID, session.ID, session.PaymentIntentID); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to record payment session")
	}

	return &model.CheckoutResult{
		URL:         session.URL,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		SessionID:   session.ID,
	}, nil
}

// validateCheckoutRequest re-checks the cart and address regardless of what
// the transport layer already validated.
func (s *checkoutService) validateCheckoutRequest(req *model.CheckoutRequest) ([]model.CheckoutLine, model.ShippingAddress, error) {
	if req == nil {
		return nil, model.ShippingAddress{}, model.ErrInvalidInput.WithDetails("request body is required")
	}
	if len(req.Items) == 0 {
		return nil, model.ShippingAddress{}, model.ErrInvalidInput.WithDetails("items must not be empty")
	}

	var details []string
	lines := make([]model.CheckoutLine, len(req.Items))
	seen := make(map[string]int, len(req.Items))

	for i, item := range req.Items {
		id := strings.TrimSpace(item.ProductID)
		switch {
		case id == "":
			details = append(details, fmt.Sprintf("items[%d].product_id is required", i))
		case item.Quantity <= 0:
			details = append(details, fmt.Sprintf("items[%d].quantity must be a positive integer", i))
		}
		if id != "" {
			if first, dup := seen[id]; dup {
				details = append(details, fmt.Sprintf("items[%d].product_id duplicates items[%d]", i, first))
			} else {
				seen[id] = i
			}
		}
		lines[i] = model.CheckoutLine{ProductID: id, Quantity: item.Quantity}
	}

	address := normalizeAddress(req.ShippingAddress)
	for _, field := range address.MissingFields() {
		details = append(details, "shipping_address."+field+" is required")
	}

	if m := strings.TrimSpace(req.PaymentMethod); m != "" && m != model.PaymentMethodStripe {
		details = append(details, fmt.Sprintf("payment_method %q is not supported", m))
	}

	if len(details) > 0 {
		return nil, model.ShippingAddress{}, model.ErrInvalidInput.WithDetails(details...)
	}
	return lines, address, nil
}

// priceLines builds item snapshots from catalog prices. Missing products are
// reported before inactive ones, both in request order.
func (s *checkoutService) priceLines(lines []model.CheckoutLine, products []model.Product) ([]model.OrderItem, pricing.Totals, error) {
	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var missing, inactive []string
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		switch {
		case !ok:
			missing = append(missing, l.ProductID)
		case !p.IsActive:
			inactive = append(inactive, l.ProductID)
		}
	}
	if len(missing) > 0 {
		return nil, pricing.Totals{}, model.ErrProductNotFound.WithDetails(missing...)
	}
	if len(inactive) > 0 {
		return nil, pricing.Totals{}, model.ErrProductUnavailable.WithDetails(inactive...)
	}

	items := make([]model.OrderItem, len(lines))
	priced := make([]pricing.Line, len(lines))
	for i, l := range lines {
		p := byID[l.ProductID]
		priced[i] = pricing.Line{UnitPrice: p.Price, Quantity: l.Quantity}
		items[i] = model.OrderItem{
			LineNo:       i + 1,
			ProductID:    p.ID,
			ProductName:  p.Name,
			ProductImage: p.PrimaryImage(),
			Quantity:     l.Quantity,
			UnitPrice:    pricing.Round(p.Price),
			TotalPrice:   pricing.Round(priced[i].Total()),
		}
	}

	return items, s.calculator.Compute(priced), nil
}

func normalizeAddress(a model.ShippingAddress) model.ShippingAddress {
	a.Name = strings.TrimSpace(a.Name)
	a.Phone = strings.TrimSpace(a.Phone)
	a.AddressLine1 = strings.TrimSpace(a.AddressLine1)
	a.AddressLine2 = strings.TrimSpace(a.AddressLine2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	if a.Country == "" {
		a.Country = defaultCountry
	}
	return a
}

func productIDs(lines []model.CheckoutLine) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	return ids
}

// requestFingerprint identifies the cart and address a key was first used with.
func requestFingerprint(lines []model.CheckoutLine, address model.ShippingAddress) string {
	data, _ := json.Marshal(struct {
		Items   []model.CheckoutLine  `json:"items"`
		Address model.ShippingAddress `json:"address"`
	}{lines, address})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
