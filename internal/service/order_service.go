package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/access"
	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/notification"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// orderService implements OrderService.
type orderService struct {
	orderRepo repository.OrderRepository
	authz     *access.Authorizer
	notifier  notification.Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	authz *access.Authorizer,
	notifier notification.Notifier,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		authz:     authz,
		notifier:  notifier,
		logger:    logger.With().Str("service", "order").Logger(),
		now:       time.Now,
	}
}

// GetOrder returns the order with its items if the actor may see it.
func (s *orderService) GetOrder(ctx context.Context, actor auth.Identity, id uuid.UUID) (*model.OrderDetail, error) {
	order, items, err := s.loadAuthorized(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return &model.OrderDetail{Order: *order, Items: items}, nil
}

// ListOrders returns the actor's own orders.
func (s *orderService) ListOrders(ctx context.Context, actor auth.Identity, filter model.OrderFilter) ([]model.Order, error) {
	if actor.UserID == "" {
		return nil, model.ErrUnauthenticated
	}
	filter.UserID = actor.UserID
	return s.list(ctx, filter)
}

// ListAllOrders returns orders across all users for an admin.
func (s *orderService) ListAllOrders(ctx context.Context, actor auth.Identity, filter model.OrderFilter) ([]model.Order, error) {
	if actor.UserID == "" {
		return nil, model.ErrUnauthenticated
	}
	if err := s.authz.RequireAdmin(ctx, actor.UserID); err != nil {
		return nil, err
	}
	return s.list(ctx, filter)
}

func (s *orderService) list(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, model.ErrInvalidInput.WithDetails(fmt.Sprintf("unknown status %q", filter.Status))
	}
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Limit <= 0 {
		filter.Limit = defaultOrderPageSize
	}
	if filter.Limit > maxOrderPageSize {
		filter.Limit = maxOrderPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", filter.UserID).Msg("failed to list orders")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// UpdateStatus applies an admin status transition.
func (s *orderService) UpdateStatus(ctx context.Context, actor auth.Identity, id uuid.UUID, update model.StatusUpdate) (*model.Order, error) {
	if actor.UserID == "" {
		return nil, model.ErrUnauthenticated
	}
	if err := s.authz.RequireAdmin(ctx, actor.UserID); err != nil {
		return nil, err
	}
	if !update.Status.Valid() {
		return nil, model.ErrInvalidInput.WithDetails(fmt.Sprintf("unknown status %q", update.Status))
	}
	if update.TrackingNumber != nil {
		tn := strings.TrimSpace(*update.TrackingNumber)
		if tn == "" {
			update.TrackingNumber = nil
		} else {
			update.TrackingNumber = &tn
		}
	}

	order, _, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	if !order.Status.CanTransitionTo(update.Status) {
		s.logger.Warn().
			Str("order_id", id.String()).
			Str("from", string(order.Status)).
			Str("to", string(update.Status)).
			Msg("rejected status transition")
		return nil, model.ErrInvalidTransition.
			WithOrder(id).
			WithDetails(fmt.Sprintf("%s -> %s", order.Status, update.Status))
	}

	now := s.now().UTC()
	change := model.StatusChange{
		OrderID:        id,
		ExpectedStatus: order.Status,
		Status:         update.Status,
		TrackingNumber: update.TrackingNumber,
		UpdatedAt:      now,
	}
	switch update.Status {
	case model.StatusShipped:
		change.ShippedAt = &now
	case model.StatusDelivered:
		change.DeliveredAt = &now
		if order.ShippedAt == nil {
			change.ShippedAt = &now
		}
	}

	applied, err := s.orderRepo.UpdateStatus(ctx, change)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to update order status")
		return nil, model.ErrPersistenceFailure.WithOrder(id).Wrap(err)
	}
	if !applied {
		return nil, model.ErrInvalidTransition.
			WithOrder(id).
			WithDetails("order status changed concurrently")
	}

	order.Status = change.Status
	order.UpdatedAt = now
	if change.TrackingNumber != nil {
		order.TrackingNumber = change.TrackingNumber
	}
	if order.ShippedAt == nil {
		order.ShippedAt = change.ShippedAt
	}
	if order.DeliveredAt == nil {
		order.DeliveredAt = change.DeliveredAt
	}

	s.logger.Info().
		Str("order_id", id.String()).
		Str("actor", actor.UserID).
		Str("from", string(change.ExpectedStatus)).
		Str("to", string(change.Status)).
		Msg("order status updated")

	if change.Status == model.StatusShipped {
		s.notify(ctx, id, model.NotificationShipped)
	}

	return order, nil
}

// ResendNotification queues an email for the owner or an admin. A denied
// request has no side effect.
func (s *orderService) ResendNotification(ctx context.Context, actor auth.Identity, id uuid.UUID, t model.NotificationType) error {
	if !t.Valid() {
		return model.ErrInvalidInput.WithDetails(fmt.Sprintf("unknown notification type %q", t))
	}
	if _, _, err := s.loadAuthorized(ctx, actor, id); err != nil {
		return err
	}

	if err := s.notifier.Notify(ctx, notification.NewEvent(id, t)); err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Str("type", string(t)).Msg("failed to queue notification")
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

// ApplyPaymentResult records the gateway outcome. Redelivery of the current
// status is a no-op.
func (s *orderService) ApplyPaymentResult(ctx context.Context, result *payment.PaymentResult) (*model.Order, error) {
	order, err := s.orderForPayment(ctx, result)
	if err != nil {
		return nil, err
	}

	log := s.logger.With().
		Str("order_id", order.ID.String()).
		Str("event_id", result.EventID).
		Str("payment_status", string(result.Status)).
		Logger()

	if order.PaymentStatus == result.Status {
		log.Debug().Msg("payment result already applied")
		return order, nil
	}
	if !order.PaymentStatus.CanTransitionTo(result.Status) {
		log.Warn().Str("current", string(order.PaymentStatus)).Msg("rejected payment transition")
		return nil, model.ErrInvalidTransition.
			WithOrder(order.ID).
			WithDetails(fmt.Sprintf("payment %s -> %s", order.PaymentStatus, result.Status))
	}

	update := model.PaymentUpdate{
		OrderID:         order.ID,
		ExpectedStatus:  order.PaymentStatus,
		Status:          result.Status,
		PaymentIntentID: result.PaymentIntentID,
		UpdatedAt:       s.now().UTC(),
	}
	if result.SessionID != "" {
		update.PaymentSessionID = &result.SessionID
	}

	applied, err := s.orderRepo.UpdatePayment(ctx, update)
	if err != nil {
		log.Error().Err(err).Msg("failed to update payment status")
		return nil, model.ErrPersistenceFailure.WithOrder(order.ID).Wrap(err)
	}
	if !applied {
		// Another delivery raced us; report whatever is stored now.
		current, _, err := s.orderRepo.GetByID(ctx, order.ID)
		if err != nil || current == nil {
			return nil, model.ErrPersistenceFailure.WithOrder(order.ID).Wrap(err)
		}
		if current.PaymentStatus == result.Status {
			return current, nil
		}
		return nil, model.ErrInvalidTransition.
			WithOrder(order.ID).
			WithDetails(fmt.Sprintf("payment %s -> %s", current.PaymentStatus, result.Status))
	}

	order.PaymentStatus = result.Status
	order.UpdatedAt = update.UpdatedAt
	if update.PaymentSessionID != nil {
		order.PaymentSessionID = update.PaymentSessionID
	}
	if update.PaymentIntentID != nil {
		order.PaymentIntentID = update.PaymentIntentID
	}

	log.Info().Msg("payment status updated")

	if result.Status == model.PaymentPaid {
		s.notify(ctx, order.ID, model.NotificationConfirmation)
	}
	return order, nil
}

func (s *orderService) orderForPayment(ctx context.Context, result *payment.PaymentResult) (*model.Order, error) {
	if result == nil {
		return nil, model.ErrInvalidInput.WithDetails("payment result is required")
	}

	var (
		order *model.Order
		err   error
	)
	if result.SessionID != "" {
		order, err = s.orderRepo.GetByPaymentSession(ctx, result.SessionID)
	}
	if err == nil && order == nil && result.OrderID != nil {
		order, _, err = s.orderRepo.GetByID(ctx, *result.OrderID)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", result.SessionID).Msg("failed to find order for payment")
		return nil, fmt.Errorf("failed to find order for payment: %w", err)
	}
	if order == nil {
		s.logger.Warn().Str("session_id", result.SessionID).Msg("payment result for unknown order")
		return nil, model.ErrOrderNotFound
	}
	if result.OrderID != nil && *result.OrderID != order.ID {
		s.logger.Error().
			Str("session_id", result.SessionID).
			Str("order_id", order.ID.String()).
			Str("event_order_id", result.OrderID.String()).
			Msg("payment session and order reference disagree")
		return nil, model.ErrInvalidInput.WithDetails("payment session does not belong to the referenced order")
	}
	return order, nil
}

// loadAuthorized loads an order for the actor. A missing order is reported as
// Unauthorized to non-admins so existence is not leaked.
func (s *orderService) loadAuthorized(ctx context.Context, actor auth.Identity, id uuid.UUID) (*model.Order, []model.OrderItem, error) {
	if actor.UserID == "" {
		return nil, nil, model.ErrUnauthenticated
	}

	order, items, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, nil, fmt.Errorf("failed to get order: %w", err)
	}

	if order == nil {
		if s.authz.IsAdmin(ctx, actor.UserID) {
			return nil, nil, model.ErrOrderNotFound
		}
		return nil, nil, model.ErrUnauthorized
	}

	if s.authz.Authorize(ctx, actor.UserID, order) != access.Allow {
		return nil, nil, model.ErrUnauthorized
	}
	if items == nil {
		items = []model.OrderItem{}
	}
	return order, items, nil
}

// notify publishes best-effort; failures are logged only.
func (s *orderService) notify(ctx context.Context, id uuid.UUID, t model.NotificationType) {
	if err := s.notifier.Notify(ctx, notification.NewEvent(id, t)); err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Str("type", string(t)).Msg("failed to queue notification")
	}
}
