package store

import (
	"context"
	"errors"
	"time"

	"backoffice-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrDuplicate         = errors.New("duplicate record")
	ErrInvalidSearch     = errors.New("invalid search pattern")
	ErrOutOfRange        = errors.New("value out of range")
)

// ListFilter pages through a collection. Search is a case-insensitive
// regular expression matched against the display name.
type ListFilter struct {
	Limit  int
	Offset int
	Search string
}

// StatusTotal aggregates orders sharing one status
type StatusTotal struct {
	Status      models.OrderStatus `db:"status" json:"status"`
	Count       int                `db:"count" json:"count"`
	TotalAmount decimal.Decimal    `db:"total_amount" json:"totalAmount"`
}

// InventoryStore holds products and their stock on hand
type InventoryStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	// LockProducts reads the products and holds them until the surrounding
	// transaction ends. Missing ids are absent from the result.
	LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	// AdjustQuantity adds delta to the stock on hand. It fails with
	// ErrInsufficientStock instead of letting the quantity go negative.
	AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ListProducts(ctx context.Context, f ListFilter) ([]models.Product, int, error)
}

// ClientDirectory holds clients
type ClientDirectory interface {
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	GetClientsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Client, error)
	CreateClient(ctx context.Context, c *models.Client) error
	UpdateClient(ctx context.Context, c *models.Client) error
	DeleteClient(ctx context.Context, id uuid.UUID) error
	ListClients(ctx context.Context, f ListFilter) ([]models.Client, int, error)
}

// OrderLedger holds orders with their embedded line items
type OrderLedger interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// LockOrder reads the order and holds it until the surrounding
	// transaction ends
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// ReplaceOrder overwrites everything but the id and creation time
	ReplaceOrder(ctx context.Context, o *models.Order) error
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, at time.Time) (*models.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	ListOrders(ctx context.Context, f ListFilter) ([]models.Order, int, error)
	OrderStats(ctx context.Context) ([]StatusTotal, error)
}

// AccountStore holds users and pending sign-up requests
type AccountStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	CreateAccountRequest(ctx context.Context, r *models.AccountRequest) error
	GetAccountRequest(ctx context.Context, id uuid.UUID) (*models.AccountRequest, error)
	GetAccountRequestByEmail(ctx context.Context, email string) (*models.AccountRequest, error)
	ListAccountRequests(ctx context.Context, status models.AccountRequestStatus) ([]models.AccountRequest, error)
	UpdateAccountRequestStatus(ctx context.Context, id uuid.UUID, status models.AccountRequestStatus) error
}

// Repository is the full persistence contract
type Repository interface {
	InventoryStore
	ClientDirectory
	OrderLedger
	AccountStore
}

// Database is a Repository that can run work atomically
type Database interface {
	Repository
	// WithTx runs fn against a transactional view of the repository. fn's
	// writes are committed together when it returns nil and discarded
	// otherwise.
	WithTx(ctx context.Context, fn func(repo Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}
