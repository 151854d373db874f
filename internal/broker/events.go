package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"backoffice-service/internal/models"
	"backoffice-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	orders *Producer
	emails *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(orders, emails *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, emails: emails}
}

// PublishOrderEvent publishes a committed order change keyed by order id
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.orders.PublishEvent(ctx, key, event)
}

// PublishEmail queues an email for the notification worker
func (ep *EventPublisher) PublishEmail(ctx context.Context, msg *models.EmailMessage) error {
	return ep.emails.PublishEvent(ctx, msg.To, msg)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderEvent     func(context.Context, *models.OrderEvent) error
	onEmailRequested func(context.Context, *models.EmailMessage) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderEvent registers a handler for every order event type
func (eh *EventHandler) OnOrderEvent(handler func(context.Context, *models.OrderEvent) error) {
	eh.onOrderEvent = handler
}

// OnEmailRequested registers a handler for EmailRequested events
func (eh *EventHandler) OnEmailRequested(handler func(context.Context, *models.EmailMessage) error) {
	eh.onEmailRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated,
		models.EventTypeOrderUpdated,
		models.EventTypeOrderStatusChanged,
		models.EventTypeOrderDeleted:
		if eh.onOrderEvent != nil {
			var event models.OrderEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
			}
			return eh.onOrderEvent(ctx, &event)
		}

	case models.EventTypeEmailRequested:
		if eh.onEmailRequested != nil {
			var email models.EmailMessage
			if err := json.Unmarshal(msg.Value, &email); err != nil {
				return fmt.Errorf("failed to unmarshal EmailRequested event: %w", err)
			}
			return eh.onEmailRequested(ctx, &email)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
