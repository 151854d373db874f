package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"backoffice-service/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader hands out queued messages and then blocks until ctx ends
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func encode(t *testing.T, v interface{}) kafka.Message {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestPublishOrderEvent(t *testing.T) {
	orders, emails := &fakeWriter{}, &fakeWriter{}
	ep := NewEventPublisher(NewProducerWithWriter(orders, "order-events"), NewProducerWithWriter(emails, "email-notifications"))

	event := &models.OrderEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:     uuid.New(),
		Status:      models.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("25.01"),
	}
	require.NoError(t, ep.PublishOrderEvent(context.Background(), event))

	require.Len(t, orders.msgs, 1)
	assert.Empty(t, emails.msgs)
	assert.Equal(t, "order-"+event.OrderID.String(), string(orders.msgs[0].Key))

	var decoded models.OrderEvent
	require.NoError(t, json.Unmarshal(orders.msgs[0].Value, &decoded))
	assert.Equal(t, models.EventTypeOrderCreated, decoded.EventType)
	assert.True(t, event.TotalAmount.Equal(decoded.TotalAmount))
}

func TestPublishEmailFailure(t *testing.T) {
	emails := &fakeWriter{err: errors.New("broker down")}
	ep := NewEventPublisher(NewProducerWithWriter(&fakeWriter{}, "order-events"), NewProducerWithWriter(emails, "email-notifications"))

	err := ep.PublishEmail(context.Background(), &models.EmailMessage{To: "a@example.com"})
	assert.ErrorContains(t, err, "broker down")
}

func TestEventHandlerRoutes(t *testing.T) {
	h := NewEventHandler()
	var gotOrder *models.OrderEvent
	var gotEmail *models.EmailMessage
	h.OnOrderEvent(func(_ context.Context, e *models.OrderEvent) error {
		gotOrder = e
		return nil
	})
	h.OnEmailRequested(func(_ context.Context, m *models.EmailMessage) error {
		gotEmail = m
		return nil
	})

	ctx := context.Background()
	orderID := uuid.New()
	require.NoError(t, h.HandleMessage(ctx, encode(t, &models.OrderEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   orderID,
	})))
	require.NotNil(t, gotOrder)
	assert.Equal(t, orderID, gotOrder.OrderID)

	require.NoError(t, h.HandleMessage(ctx, encode(t, &models.EmailMessage{
		BaseEvent: models.NewBaseEvent(models.EventTypeEmailRequested),
		To:        "a@example.com",
	})))
	require.NotNil(t, gotEmail)
	assert.Equal(t, "a@example.com", gotEmail.To)

	assert.NoError(t, h.HandleMessage(ctx, encode(t, models.NewBaseEvent("SOMETHING_ELSE"))))
	assert.Error(t, h.HandleMessage(ctx, kafka.Message{Value: []byte("{")}))
}

func TestStartConsumingCommitsAndStops(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	c := NewConsumerWithReader(reader, "email-notifications")

	ctx, cancel := context.WithCancel(context.Background())
	var handled []int64
	done := make(chan error, 1)
	go func() {
		done <- c.StartConsuming(ctx, func(_ context.Context, msg kafka.Message) error {
			handled = append(handled, msg.Offset)
			if msg.Offset == 2 {
				return errors.New("poison message")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return reader.commits() == 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, []int64{1, 2, 3}, handled)
}
