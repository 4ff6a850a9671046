package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaNotifier publishes events to a topic keyed by order id, so events for
// one order stay on one partition.
type KafkaNotifier struct {
	writer messageWriter
	logger zerolog.Logger
}

func NewKafkaNotifier(brokers []string, topic string, logger zerolog.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaNotifier(writer, logger)
}

func newKafkaNotifier(w messageWriter, logger zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: w,
		logger: logger.With().Str("component", "kafka-notifier").Logger(),
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, evt Event) error {
	data, err := encodeEvent(evt)
	if err != nil {
		return err
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.OrderID.String()),
		Value: data,
		Time:  evt.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Debug().
		Str("order_id", evt.OrderID.String()).
		Str("type", string(evt.Type)).
		Msg("notification published")
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// MessageHandler processes one event body.
type MessageHandler func(ctx context.Context, body []byte) error

// KafkaConsumer reads events with a consumer group.
type KafkaConsumer struct {
	reader messageReader
	logger zerolog.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, logger zerolog.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newKafkaConsumer(reader, logger)
}

func newKafkaConsumer(r messageReader, logger zerolog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: r,
		logger: logger.With().Str("component", "kafka-consumer").Logger(),
	}
}

// Consume blocks until ctx is cancelled. Handler errors are logged and the
// message is committed anyway.
func (c *KafkaConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("failed to read message")
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			c.logger.Error().
				Err(err).
				Str("key", string(msg.Key)).
				Int64("offset", msg.Offset).
				Msg("failed to handle message")
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
