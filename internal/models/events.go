package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderUpdated       = "ORDER_UPDATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderDeleted       = "ORDER_DELETED"
	EventTypeEmailRequested     = "EMAIL_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// OrderEvent is published after an order transaction commits
type OrderEvent struct {
	BaseEvent
	OrderID        uuid.UUID       `json:"order_id"`
	ClientID       uuid.UUID       `json:"client_id"`
	Status         OrderStatus     `json:"status"`
	PreviousStatus OrderStatus     `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Items          []LineItem      `json:"items,omitempty"`
	StockReleased  bool            `json:"stock_released,omitempty"`
}

// EmailMessage asks the notification worker to deliver a plain text mail
type EmailMessage struct {
	BaseEvent
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
