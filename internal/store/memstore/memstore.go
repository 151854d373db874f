// Package memstore is an in-process implementation of store.Database used by
// tests and by STORE_DRIVER=memory. A transaction holds the write lock for
// its whole duration and works on a copy of the data that replaces the live
// snapshot on commit.
package memstore

import (
	"context"
	"sync"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"

	"github.com/google/uuid"
)

// Store keeps every collection in memory
type Store struct {
	mu   sync.RWMutex
	data *dataset
}

var _ store.Database = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty store stamping records with now
func NewWithClock(now func() time.Time) *Store {
	return &Store{data: newDataset(now)}
}

// WithTx runs fn against a private copy of the data. The copy becomes the
// live data only if fn succeeds and ctx is still alive.
func (s *Store) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func (s *Store) read() (*dataset, func()) {
	s.mu.RLock()
	return s.data, s.mu.RUnlock
}

func (s *Store) write() (*dataset, func()) {
	s.mu.Lock()
	return s.data, s.mu.Unlock
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	d, done := s.read()
	defer done()
	return d.GetProduct(ctx, id)
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	d, done := s.read()
	defer done()
	return d.GetProductsByIDs(ctx, ids)
}

func (s *Store) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	d, done := s.read()
	defer done()
	return d.LockProducts(ctx, ids)
}

func (s *Store) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (*models.Product, error) {
	d, done := s.write()
	defer done()
	return d.AdjustQuantity(ctx, id, delta)
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	d, done := s.write()
	defer done()
	return d.CreateProduct(ctx, p)
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	d, done := s.write()
	defer done()
	return d.UpdateProduct(ctx, p)
}

func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	d, done := s.write()
	defer done()
	return d.DeleteProduct(ctx, id)
}

func (s *Store) ListProducts(ctx context.Context, f store.ListFilter) ([]models.Product, int, error) {
	d, done := s.read()
	defer done()
	return d.ListProducts(ctx, f)
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	d, done := s.read()
	defer done()
	return d.GetClient(ctx, id)
}

func (s *Store) GetClientsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Client, error) {
	d, done := s.read()
	defer done()
	return d.GetClientsByIDs(ctx, ids)
}

func (s *Store) CreateClient(ctx context.Context, c *models.Client) error {
	d, done := s.write()
	defer done()
	return d.CreateClient(ctx, c)
}

func (s *Store) UpdateClient(ctx context.Context, c *models.Client) error {
	d, done := s.write()
	defer done()
	return d.UpdateClient(ctx, c)
}

func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	d, done := s.write()
	defer done()
	return d.DeleteClient(ctx, id)
}

func (s *Store) ListClients(ctx context.Context, f store.ListFilter) ([]models.Client, int, error) {
	d, done := s.read()
	defer done()
	return d.ListClients(ctx, f)
}

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	d, done := s.write()
	defer done()
	return d.CreateOrder(ctx, o)
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	d, done := s.read()
	defer done()
	return d.GetOrder(ctx, id)
}

func (s *Store) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	d, done := s.read()
	defer done()
	return d.LockOrder(ctx, id)
}

func (s *Store) ReplaceOrder(ctx context.Context, o *models.Order) error {
	d, done := s.write()
	defer done()
	return d.ReplaceOrder(ctx, o)
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, at time.Time) (*models.Order, error) {
	d, done := s.write()
	defer done()
	return d.UpdateOrderStatus(ctx, id, status, at)
}

func (s *Store) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	d, done := s.write()
	defer done()
	return d.DeleteOrder(ctx, id)
}

func (s *Store) ListOrders(ctx context.Context, f store.ListFilter) ([]models.Order, int, error) {
	d, done := s.read()
	defer done()
	return d.ListOrders(ctx, f)
}

func (s *Store) OrderStats(ctx context.Context) ([]store.StatusTotal, error) {
	d, done := s.read()
	defer done()
	return d.OrderStats(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	d, done := s.write()
	defer done()
	return d.CreateUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	d, done := s.read()
	defer done()
	return d.GetUser(ctx, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	d, done := s.read()
	defer done()
	return d.GetUserByEmail(ctx, email)
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	d, done := s.read()
	defer done()
	return d.ListUsers(ctx)
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	d, done := s.write()
	defer done()
	return d.DeleteUser(ctx, id)
}

func (s *Store) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	d, done := s.write()
	defer done()
	return d.UpdateUserPassword(ctx, id, passwordHash)
}

func (s *Store) CreateAccountRequest(ctx context.Context, r *models.AccountRequest) error {
	d, done := s.write()
	defer done()
	return d.CreateAccountRequest(ctx, r)
}

func (s *Store) GetAccountRequest(ctx context.Context, id uuid.UUID) (*models.AccountRequest, error) {
	d, done := s.read()
	defer done()
	return d.GetAccountRequest(ctx, id)
}

func (s *Store) GetAccountRequestByEmail(ctx context.Context, email string) (*models.AccountRequest, error) {
	d, done := s.read()
	defer done()
	return d.GetAccountRequestByEmail(ctx, email)
}

func (s *Store) ListAccountRequests(ctx context.Context, status models.AccountRequestStatus) ([]models.AccountRequest, error) {
	d, done := s.read()
	defer done()
	return d.ListAccountRequests(ctx, status)
}

func (s *Store) UpdateAccountRequestStatus(ctx context.Context, id uuid.UUID, status models.AccountRequestStatus) error {
	d, done := s.write()
	defer done()
	return d.UpdateAccountRequestStatus(ctx, id, status)
}
