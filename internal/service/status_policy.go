package service

import (
	"fmt"
	"strings"

	"backoffice-service/internal/models"
)

// StatusPolicy decides which order statuses and transitions are legal
type StatusPolicy interface {
	Name() string
	// AllowsInitial reports whether an order may be created in status s
	AllowsInitial(s models.OrderStatus) bool
	// AllowsTransition reports whether an order may move from one status to
	// another. Staying in the same status is always allowed.
	AllowsTransition(from, to models.OrderStatus) bool
	// Editable reports whether the line items of an order in status s may
	// be rewritten
	Editable(s models.OrderStatus) bool
}

// StrictPolicy enforces Pending -> Confirmed -> Delivered with Cancelled
// reachable from Pending or Confirmed. Delivered and Cancelled are terminal.
type StrictPolicy struct{}

var strictTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed: {models.OrderStatusDelivered, models.OrderStatusCancelled},
}

func (StrictPolicy) Name() string { return "strict" }

func (StrictPolicy) AllowsInitial(s models.OrderStatus) bool {
	return s == models.OrderStatusPending || s == models.OrderStatusConfirmed
}

func (StrictPolicy) AllowsTransition(from, to models.OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (StrictPolicy) Editable(s models.OrderStatus) bool {
	return s == models.OrderStatusPending || s == models.OrderStatusConfirmed
}

// PermissivePolicy accepts any known status at any time. Only delivered
// orders are frozen, since their stock has left the warehouse.
type PermissivePolicy struct{}

func (PermissivePolicy) Name() string { return "permissive" }

func (PermissivePolicy) AllowsInitial(models.OrderStatus) bool { return true }

func (PermissivePolicy) AllowsTransition(_, _ models.OrderStatus) bool { return true }

func (PermissivePolicy) Editable(s models.OrderStatus) bool {
	return s != models.OrderStatusDelivered
}

// PolicyByName returns the policy configured by ORDER_STATUS_POLICY
func PolicyByName(name string) (StatusPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "strict":
		return StrictPolicy{}, nil
	case "permissive":
		return PermissivePolicy{}, nil
	}
	return nil, fmt.Errorf("unknown order status policy %q", name)
}
