// Package notification publishes and delivers customer order emails.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/config"
	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event asks the notifier worker to email the customer about an order.
type Event struct {
	OrderID    uuid.UUID              `json:"order_id"`
	Type       model.NotificationType `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(orderID uuid.UUID, t model.NotificationType) Event {
	return Event{OrderID: orderID, Type: t, OccurredAt: time.Now().UTC()}
}

// Notifier publishes notification events. Publishing is best-effort.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
	Close() error
}

func encodeEvent(evt Event) ([]byte, error) {
	if !evt.Type.Valid() {
		return nil, fmt.Errorf("unsupported notification type %q", evt.Type)
	}
	return json.Marshal(evt)
}

// DecodeEvent parses a published event body.
func DecodeEvent(body []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("invalid notification event: %w", err)
	}
	if evt.OrderID == uuid.Nil {
		return Event{}, fmt.Errorf("notification event has no order id")
	}
	if !evt.Type.Valid() {
		return Event{}, fmt.Errorf("unsupported notification type %q", evt.Type)
	}
	return evt, nil
}

// LogNotifier only logs events. Used in development.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "log-notifier").Logger()}
}

func (n *LogNotifier) Notify(ctx context.Context, evt Event) error {
	if _, err := encodeEvent(evt); err != nil {
		return err
	}
	n.logger.Info().
		Str("order_id", evt.OrderID.String()).
		Str("type", string(evt.Type)).
		Msg("notification requested")
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// NewFromConfig builds the publisher for the configured backend.
func NewFromConfig(cfg config.NotifierConfig, logger zerolog.Logger) (Notifier, error) {
	switch cfg.Backend {
	case "", "log":
		return NewLogNotifier(logger), nil
	case "kafka":
		return NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger), nil
	case "rabbitmq":
		r, err := DialRabbit(cfg.RabbitURL, cfg.RabbitExchange, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown notifier backend %q", cfg.Backend)
	}
}
