package store

import (
	"context"
	"time"

	"backoffice-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateOrder inserts a new order with its line items
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, client_id, items, delivery_date, payment_type, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.q.ExecContext(ctx, query,
		order.ID, order.ClientID, order.Items, order.DeliveryDate, order.PaymentType,
		order.Status, order.TotalAmount, order.CreatedAt, order.UpdatedAt)
	return translateError(err)
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := sqlx.GetContext(ctx, s.q, &order, "SELECT * FROM orders WHERE id = $1", id); err != nil {
		return nil, translateError(err)
	}
	return &order, nil
}

// LockOrder selects the order FOR UPDATE
func (s *Store) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := sqlx.GetContext(ctx, s.q, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, translateError(err)
	}
	return &order, nil
}

// ReplaceOrder rewrites an order in place
func (s *Store) ReplaceOrder(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders
		SET client_id = $1, items = $2, delivery_date = $3, payment_type = $4,
		    status = $5, total_amount = $6, updated_at = $7
		WHERE id = $8`

	res, err := s.q.ExecContext(ctx, query,
		order.ClientID, order.Items, order.DeliveryDate, order.PaymentType,
		order.Status, order.TotalAmount, order.UpdatedAt, order.ID)
	if err != nil {
		return translateError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, at time.Time) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order,
		"UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 RETURNING *",
		status, at, id)
	if err != nil {
		return nil, translateError(err)
	}
	return &order, nil
}

// DeleteOrder removes an order
func (s *Store) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "orders", id)
}

// ListOrders retrieves a page of orders, newest first
func (s *Store) ListOrders(ctx context.Context, f ListFilter) ([]models.Order, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, "SELECT COUNT(*) FROM orders"); err != nil {
		return nil, 0, translateError(err)
	}

	orders := []models.Order{}
	query, args := pageQuery("SELECT * FROM orders ORDER BY created_at DESC, id DESC", nil, f)
	if err := sqlx.SelectContext(ctx, s.q, &orders, query, args...); err != nil {
		return nil, 0, translateError(err)
	}
	return orders, total, nil
}

// OrderStats counts orders and sums their totals per status
func (s *Store) OrderStats(ctx context.Context) ([]StatusTotal, error) {
	stats := []StatusTotal{}
	err := sqlx.SelectContext(ctx, s.q, &stats, `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total_amount
		FROM orders
		GROUP BY status
		ORDER BY status`)
	return stats, translateError(err)
}
