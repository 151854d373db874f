package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a catalog entry with its stock on hand
type Product struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Version   int64           `db:"version" json:"version"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// Client represents a customer that orders are billed to
type Client struct {
	ID           uuid.UUID `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"fullName"`
	Number       string    `db:"number" json:"number,omitempty"`
	Email        string    `db:"email" json:"email,omitempty"`
	FiscalNumber string    `db:"fiscal_number" json:"fiscalNumber"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// LineItem is one product line of an order. Price is the product price
// captured when the line was reserved.
type LineItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// LineItems is stored as a JSONB column on the order row
type LineItems []LineItem

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *LineItems) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("unsupported line items source %T", src)
	}
	return json.Unmarshal(data, l)
}

// Order represents a client order
type Order struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	ClientID     uuid.UUID       `db:"client_id" json:"clientId"`
	Items        LineItems       `db:"items" json:"products"`
	DeliveryDate time.Time       `db:"delivery_date" json:"deliveryDate"`
	PaymentType  PaymentType     `db:"payment_type" json:"paymentType"`
	Status       OrderStatus     `db:"status" json:"status"`
	TotalAmount  decimal.Decimal `db:"total_amount" json:"totalAmount"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append(LineItems(nil), o.Items...)
	return &c
}

// OrderStatus is the order lifecycle state
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// OrderStatuses lists every known status in lifecycle order
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus returns the status named by s
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, st := range OrderStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// PaymentType is the payment method tag of an order
type PaymentType string

// Payment types
const (
	PaymentCash         PaymentType = "Cash"
	PaymentCreditCard   PaymentType = "CreditCard"
	PaymentBankTransfer PaymentType = "BankTransfer"
)

// ParsePaymentType accepts the canonical tags and the spaced spellings
// older clients still send ("Credit Card", "Bank Transfer").
func ParsePaymentType(s string) (PaymentType, bool) {
	switch s {
	case "Cash":
		return PaymentCash, true
	case "CreditCard", "Credit Card":
		return PaymentCreditCard, true
	case "BankTransfer", "Bank Transfer":
		return PaymentBankTransfer, true
	}
	return "", false
}

// Role of a user account
type Role string

// Roles
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is an approved back-office account
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Surname      string    `db:"surname" json:"surname"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// AccountRequestStatus is the approval state of a sign-up request
type AccountRequestStatus string

// Account request statuses
const (
	AccountRequestPending  AccountRequestStatus = "pending"
	AccountRequestApproved AccountRequestStatus = "approved"
	AccountRequestRejected AccountRequestStatus = "rejected"
)

// AccountRequest is a sign-up waiting for admin approval
type AccountRequest struct {
	ID           uuid.UUID            `db:"id" json:"id"`
	Name         string               `db:"name" json:"name"`
	Surname      string               `db:"surname" json:"surname"`
	Email        string               `db:"email" json:"email"`
	PasswordHash string               `db:"password_hash" json:"-"`
	Status       AccountRequestStatus `db:"status" json:"status"`
	CreatedAt    time.Time            `db:"created_at" json:"createdAt"`
}
