package service

import (
	"context"
	"fmt"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderView is an order joined with client and product display fields
type OrderView struct {
	ID           uuid.UUID          `json:"id"`
	Client       ClientSummary      `json:"client"`
	Products     []LineItemView     `json:"products"`
	DeliveryDate string             `json:"deliveryDate"`
	PaymentType  models.PaymentType `json:"paymentType"`
	Status       models.OrderStatus `json:"status"`
	TotalAmount  decimal.Decimal    `json:"totalAmount"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// ClientSummary carries the client fields shown next to an order. Name and
// email are empty when the client has since been deleted.
type ClientSummary struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"fullName,omitempty"`
	Email    string    `json:"email,omitempty"`
}

// LineItemView is a stored line with the current product display fields.
// Price is the price captured when the order was placed.
type LineItemView struct {
	Product  ProductSummary  `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// ProductSummary is empty apart from the id once the product is deleted
type ProductSummary struct {
	ID    uuid.UUID        `json:"id"`
	Name  string           `json:"name,omitempty"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

// OrderPage is one page of orders, newest first
type OrderPage struct {
	Orders []OrderView `json:"orders"`
	PageInfo
}

// OrderStats summarizes the ledger. Revenue leaves out cancelled orders.
type OrderStats struct {
	TotalOrders     int                 `json:"totalOrders"`
	TotalRevenue    decimal.Decimal     `json:"totalRevenue"`
	StatusBreakdown []store.StatusTotal `json:"statusBreakdown"`
}

func buildOrderStats(totals []store.StatusTotal) *OrderStats {
	stats := &OrderStats{TotalRevenue: decimal.Zero, StatusBreakdown: totals}
	for _, st := range totals {
		stats.TotalOrders += st.Count
		if st.Status != models.OrderStatusCancelled {
			stats.TotalRevenue = stats.TotalRevenue.Add(st.TotalAmount)
		}
	}
	stats.TotalRevenue = stats.TotalRevenue.Round(2)
	return stats
}

// materialize joins orders with the clients and products they reference
// using one lookup per collection
func materialize(ctx context.Context, repo store.Repository, orders []models.Order) ([]OrderView, error) {
	clientSet := map[uuid.UUID]bool{}
	productSet := map[uuid.UUID]bool{}
	var clientIDs, prodIDs []uuid.UUID
	for _, o := range orders {
		if !clientSet[o.ClientID] {
			clientSet[o.ClientID] = true
			clientIDs = append(clientIDs, o.ClientID)
		}
		for _, it := range o.Items {
			if !productSet[it.ProductID] {
				productSet[it.ProductID] = true
				prodIDs = append(prodIDs, it.ProductID)
			}
		}
	}

	clients, err := repo.GetClientsByIDs(ctx, clientIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	products, err := repo.GetProductsByIDs(ctx, prodIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView(&o, clients, products))
	}
	return views, nil
}

func orderView(o *models.Order, clients map[uuid.UUID]*models.Client, products map[uuid.UUID]*models.Product) OrderView {
	v := OrderView{
		ID:           o.ID,
		Client:       ClientSummary{ID: o.ClientID},
		Products:     make([]LineItemView, 0, len(o.Items)),
		DeliveryDate: o.DeliveryDate.Format(dateLayout),
		PaymentType:  o.PaymentType,
		Status:       o.Status,
		TotalAmount:  o.TotalAmount,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	if c, ok := clients[o.ClientID]; ok {
		v.Client.FullName = c.FullName
		v.Client.Email = c.Email
	}
	for _, it := range o.Items {
		line := LineItemView{Product: ProductSummary{ID: it.ProductID}, Quantity: it.Quantity, Price: it.Price}
		if p, ok := products[it.ProductID]; ok {
			price := p.Price
			line.Product.Name = p.Name
			line.Product.Price = &price
		}
		v.Products = append(v.Products, line)
	}
	return v
}
