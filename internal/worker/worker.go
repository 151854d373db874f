package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice-service/internal/broker"
	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// EmailSender delivers one email
type EmailSender interface {
	Send(ctx context.Context, msg *models.EmailMessage) error
}

// EmailQueue accepts emails for later delivery
type EmailQueue interface {
	PublishEmail(ctx context.Context, msg *models.EmailMessage) error
}

// EmailWorker delivers queued emails
type EmailWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	sender       EmailSender
	newBackOff   func() backoff.BackOff
	logger       *zap.Logger
}

// NewEmailWorker creates a new email worker
func NewEmailWorker(consumer *broker.Consumer, sender EmailSender) *EmailWorker {
	w := &EmailWorker{
		consumer: consumer,
		sender:   sender,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return backoff.WithMaxRetries(b, 2)
		},
		logger: util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnEmailRequested(w.deliver)
	return w
}

// Start starts the worker
func (w *EmailWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting email worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *EmailWorker) Stop() error {
	w.logger.Info("Stopping email worker")
	return w.consumer.Close()
}

// deliver sends msg, retrying transient SMTP failures
func (w *EmailWorker) deliver(ctx context.Context, msg *models.EmailMessage) error {
	if msg.To == "" {
		w.logger.Warn("Dropping email without recipient", zap.String("event_id", msg.EventID))
		return nil
	}

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := w.sender.Send(ctx, msg)
		if err != nil {
			w.logger.Warn("Email delivery failed",
				zap.String("event_id", msg.EventID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}, backoff.WithContext(w.newBackOff(), ctx))
	if err != nil {
		return fmt.Errorf("deliver email %s: %w", msg.EventID, err)
	}
	return nil
}

// OrderNotifier tells clients about their orders by email
type OrderNotifier struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	clients      store.ClientDirectory
	emails       EmailQueue
	logger       *zap.Logger
}

// NewOrderNotifier creates a new order notifier
func NewOrderNotifier(consumer *broker.Consumer, clients store.ClientDirectory, emails EmailQueue) *OrderNotifier {
	n := &OrderNotifier{
		consumer: consumer,
		clients:  clients,
		emails:   emails,
		logger:   util.GetLogger(),
	}

	n.eventHandler = broker.NewEventHandler()
	n.eventHandler.OnOrderEvent(n.HandleOrderEvent)
	return n
}

// Start starts the notifier
func (n *OrderNotifier) Start(ctx context.Context) error {
	n.logger.Info("Starting order notifier")
	return n.consumer.StartConsuming(ctx, n.eventHandler.HandleMessage)
}

// Stop stops the notifier
func (n *OrderNotifier) Stop() error {
	n.logger.Info("Stopping order notifier")
	return n.consumer.Close()
}

// HandleOrderEvent queues a notification for new orders and status changes.
// Clients without an email address are skipped.
func (n *OrderNotifier) HandleOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	var subject, body string
	switch event.EventType {
	case models.EventTypeOrderCreated:
		subject = "Order received"
		body = fmt.Sprintf("We received your order %s. Total: %s.\n", event.OrderID, event.TotalAmount.StringFixed(2))
	case models.EventTypeOrderStatusChanged:
		if event.Status == event.PreviousStatus {
			return nil
		}
		subject = fmt.Sprintf("Order %s", event.Status)
		body = fmt.Sprintf("Your order %s is now %s.\n", event.OrderID, event.Status)
	default:
		return nil
	}

	client, err := n.clients.GetClient(ctx, event.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load client %s: %w", event.ClientID, err)
	}
	if client.Email == "" {
		return nil
	}

	msg := &models.EmailMessage{
		BaseEvent: models.NewBaseEvent(models.EventTypeEmailRequested),
		To:        client.Email,
		Subject:   subject,
		Body:      fmt.Sprintf("Hello %s,\n\n%s", client.FullName, body),
	}
	if err := n.emails.PublishEmail(ctx, msg); err != nil {
		return fmt.Errorf("failed to queue order email: %w", err)
	}

	n.logger.Info("Order notification queued",
		zap.String("order_id", event.OrderID.String()),
		zap.String("event_type", event.EventType))
	return nil
}
