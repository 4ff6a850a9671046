package notification

import (
	"context"
	"fmt"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderReader loads an order with its items. A missing order returns nil, nil, nil.
type OrderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error)
}

// Dispatcher turns notification events into customer emails.
type Dispatcher struct {
	orders OrderReader
	mailer Mailer
	logger zerolog.Logger
}

func NewDispatcher(orders OrderReader, mailer Mailer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		orders: orders,
		mailer: mailer,
		logger: logger.With().Str("component", "notification-dispatcher").Logger(),
	}
}

// Handle decodes one event body and sends the matching email. It has the
// MessageHandler signature so it can be passed straight to a consumer.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) error {
	evt, err := DecodeEvent(body)
	if err != nil {
		d.logger.Warn().Err(err).Msg("dropping malformed notification")
		return err
	}
	return d.Dispatch(ctx, evt)
}

func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) error {
	log := d.logger.With().
		Str("order_id", evt.OrderID.String()).
		Str("type", string(evt.Type)).
		Logger()

	order, items, err := d.orders.GetByID(ctx, evt.OrderID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load order")
		return fmt.Errorf("failed to load order %s: %w", evt.OrderID, err)
	}
	if order == nil {
		log.Warn().Msg("order not found, skipping notification")
		return nil
	}
	if order.ContactEmail == "" {
		log.Warn().Msg("order has no contact email, skipping notification")
		return nil
	}

	subject, body, err := renderEmail(evt.Type, order, items)
	if err != nil {
		log.Error().Err(err).Msg("failed to render email")
		return err
	}

	if err := d.mailer.Send(ctx, order.ContactEmail, subject, body); err != nil {
		log.Error().Err(err).Msg("failed to send email")
		return err
	}

	log.Info().Str("order_number", order.OrderNumber).Msg("notification email sent")
	return nil
}
