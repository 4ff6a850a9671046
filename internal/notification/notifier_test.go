package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/model"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

type fakeReader struct {
	msgs   []kafka.Message
	errs   []error
	cancel context.CancelFunc
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) Close() error { return nil }

type MockChannel struct {
	mock.Mock
	deliveries chan amqp.Delivery
}

func (m *MockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind).Error(0)
}

func (m *MockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	a := m.Called(name)
	return amqp.Queue{Name: name}, a.Error(0)
}

func (m *MockChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return m.Called(name, key, exchange).Error(0)
}

func (m *MockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	a := m.Called(queue, autoAck)
	return m.deliveries, a.Error(0)
}

func (m *MockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(ctx, exchange, key, msg).Error(0)
}

func (m *MockChannel) Close() error {
	return m.Called().Error(0)
}

func TestDecodeEvent(t *testing.T) {
	id := uuid.New()
	valid, _ := json.Marshal(Event{OrderID: id, Type: model.NotificationShipped, OccurredAt: time.Now()})

	evt, err := DecodeEvent(valid)
	require.NoError(t, err)
	assert.Equal(t, id, evt.OrderID)
	assert.Equal(t, model.NotificationShipped, evt.Type)

	_, err = DecodeEvent([]byte(`{bad`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"type":"shipped"}`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"order_id":"` + id.String() + `","type":"refund"}`))
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zerolog.Nop())

	assert.NoError(t, n.Notify(context.Background(), NewEvent(uuid.New(), model.NotificationConfirmation)))
	assert.Error(t, n.Notify(context.Background(), NewEvent(uuid.New(), "unknown")))
	assert.NoError(t, n.Close())
}

func TestNewFromConfig(t *testing.T) {
	n, err := NewFromConfig(config.NotifierConfig{Backend: "log"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, n)

	n, err = NewFromConfig(config.NotifierConfig{Backend: "kafka", KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "orders"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &KafkaNotifier{}, n)
	assert.NoError(t, n.Close())

	_, err = NewFromConfig(config.NotifierConfig{Backend: "sns"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown notifier backend")
}

func TestKafkaNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	evt := NewEvent(uuid.New(), model.NotificationConfirmation)

	w := new(MockWriter)
	w.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || string(msgs[0].Key) != evt.OrderID.String() {
			return false
		}
		decoded, err := DecodeEvent(msgs[0].Value)
		return err == nil && decoded.Type == model.NotificationConfirmation
	})).Return(nil).Once()
	w.On("Close").Return(nil)

	n := newKafkaNotifier(w, zerolog.Nop())

	require.NoError(t, n.Notify(ctx, evt))
	require.NoError(t, n.Close())
	w.AssertExpectations(t)
}

func TestKafkaNotifier_Notify_WriteError(t *testing.T) {
	ctx := context.Background()
	w := new(MockWriter)
	w.On("WriteMessages", ctx, mock.Anything).Return(errors.New("broker down"))

	err := newKafkaNotifier(w, zerolog.Nop()).Notify(ctx, NewEvent(uuid.New(), model.NotificationShipped))

	assert.ErrorContains(t, err, "broker down")
}

func TestKafkaConsumer_Consume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		errs: []error{errors.New("rebalance")},
		msgs: []kafka.Message{
			{Key: []byte("a"), Value: []byte("first")},
			{Key: []byte("b"), Value: []byte("second")},
		},
		cancel: cancel,
	}

	var seen []string
	c := newKafkaConsumer(reader, zerolog.Nop())
	err := c.Consume(ctx, func(ctx context.Context, body []byte) error {
		seen = append(seen, string(body))
		return errors.New("handler errors do not stop the loop")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first", "second"}, seen)
	assert.NoError(t, c.Close())
}

func TestRabbit_Notify(t *testing.T) {
	ctx := context.Background()
	evt := NewEvent(uuid.New(), model.NotificationShipped)

	ch := new(MockChannel)
	ch.On("ExchangeDeclare", "orders", "topic").Return(nil)
	ch.On("PublishWithContext", ctx, "orders", "order.notification.shipped", mock.MatchedBy(func(msg amqp.Publishing) bool {
		return msg.ContentType == "application/json" && msg.MessageId == evt.OrderID.String()
	})).Return(nil).Once()
	ch.On("Close").Return(nil)

	r, err := newRabbit(ch, "orders", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, r.Notify(ctx, evt))
	require.NoError(t, r.Close())
	ch.AssertExpectations(t)
}

func TestRabbit_ExchangeDeclareFailure(t *testing.T) {
	ch := new(MockChannel)
	ch.On("ExchangeDeclare", "orders", "topic").Return(errors.New("access refused"))

	r, err := newRabbit(ch, "orders", zerolog.Nop())

	assert.Nil(t, r)
	assert.ErrorContains(t, err, "access refused")
}

func TestRabbit_Consume(t *testing.T) {
	ctx := context.Background()
	ch := &MockChannel{deliveries: make(chan amqp.Delivery, 2)}
	ch.On("ExchangeDeclare", "orders", "topic").Return(nil)
	ch.On("QueueDeclare", "order-notifications").Return(nil)
	ch.On("QueueBind", "order-notifications", "order.notification.*", "orders").Return(nil)
	ch.On("Consume", "order-notifications", true).Return(nil)

	ch.deliveries <- amqp.Delivery{RoutingKey: "order.notification.confirmation", Body: []byte("one")}
	ch.deliveries <- amqp.Delivery{RoutingKey: "order.notification.shipped", Body: []byte("two")}
	close(ch.deliveries)

	r, err := newRabbit(ch, "orders", zerolog.Nop())
	require.NoError(t, err)

	var seen []string
	err = r.Consume(ctx, "order-notifications", func(ctx context.Context, body []byte) error {
		seen = append(seen, string(body))
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, seen)
	ch.AssertExpectations(t)
}
