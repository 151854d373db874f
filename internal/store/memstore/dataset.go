package memstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"

	"github.com/google/uuid"
)

// dataset is one consistent snapshot of every collection. Its methods do no
// locking; Store serializes access to it.
type dataset struct {
	products map[uuid.UUID]models.Product
	clients  map[uuid.UUID]models.Client
	orders   map[uuid.UUID]models.Order
	users    map[uuid.UUID]models.User
	requests map[uuid.UUID]models.AccountRequest
	now      func() time.Time
}

func newDataset(now func() time.Time) *dataset {
	return &dataset{
		products: map[uuid.UUID]models.Product{},
		clients:  map[uuid.UUID]models.Client{},
		orders:   map[uuid.UUID]models.Order{},
		users:    map[uuid.UUID]models.User{},
		requests: map[uuid.UUID]models.AccountRequest{},
		now:      now,
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset(d.now)
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.clients {
		c.clients[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = *v.Clone()
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.requests {
		c.requests[k] = v
	}
	return c
}

func compileSearch(search string) (*regexp.Regexp, error) {
	if search == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + search)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern: %w", err)
	}
	return re, nil
}

func page[T any](items []T, f store.ListFilter) []T {
	if f.Limit <= 0 {
		return items
	}
	if f.Offset >= len(items) {
		return []T{}
	}
	end := f.Offset + f.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[f.Offset:end]
}

// products

func (d *dataset) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := d.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (d *dataset) GetProductsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	out := make(map[uuid.UUID]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := d.products[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (d *dataset) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	return d.GetProductsByIDs(ctx, ids)
}

func (d *dataset) AdjustQuantity(_ context.Context, id uuid.UUID, delta int) (*models.Product, error) {
	p, ok := d.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Quantity+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	p.Quantity += delta
	p.Version++
	p.UpdatedAt = d.now()
	d.products[id] = p
	return &p, nil
}

func (d *dataset) CreateProduct(_ context.Context, p *models.Product) error {
	if _, ok := d.products[p.ID]; ok {
		return store.ErrDuplicate
	}
	if p.Quantity < 0 {
		return store.ErrInsufficientStock
	}
	p.Version = 0
	p.CreatedAt = d.now()
	p.UpdatedAt = p.CreatedAt
	d.products[p.ID] = *p
	return nil
}

func (d *dataset) UpdateProduct(_ context.Context, p *models.Product) error {
	cur, ok := d.products[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	if p.Quantity < 0 {
		return store.ErrInsufficientStock
	}
	p.Version = cur.Version + 1
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = d.now()
	d.products[p.ID] = *p
	return nil
}

func (d *dataset) DeleteProduct(_ context.Context, id uuid.UUID) error {
	if _, ok := d.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.products, id)
	return nil
}

func (d *dataset) ListProducts(_ context.Context, f store.ListFilter) ([]models.Product, int, error) {
	re, err := compileSearch(f.Search)
	if err != nil {
		return nil, 0, err
	}
	list := []models.Product{}
	for _, p := range d.products {
		if re == nil || re.MatchString(p.Name) {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID.String() < list[j].ID.String()
	})
	return page(list, f), len(list), nil
}

// clients

func (d *dataset) GetClient(_ context.Context, id uuid.UUID) (*models.Client, error) {
	c, ok := d.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (d *dataset) GetClientsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Client, error) {
	out := make(map[uuid.UUID]*models.Client, len(ids))
	for _, id := range ids {
		if c, ok := d.clients[id]; ok {
			out[id] = &c
		}
	}
	return out, nil
}

func (d *dataset) CreateClient(_ context.Context, c *models.Client) error {
	if _, ok := d.clients[c.ID]; ok {
		return store.ErrDuplicate
	}
	c.CreatedAt = d.now()
	c.UpdatedAt = c.CreatedAt
	d.clients[c.ID] = *c
	return nil
}

func (d *dataset) UpdateClient(_ context.Context, c *models.Client) error {
	cur, ok := d.clients[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	c.CreatedAt = cur.CreatedAt
	c.UpdatedAt = d.now()
	d.clients[c.ID] = *c
	return nil
}

func (d *dataset) DeleteClient(_ context.Context, id uuid.UUID) error {
	if _, ok := d.clients[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.clients, id)
	return nil
}

func (d *dataset) ListClients(_ context.Context, f store.ListFilter) ([]models.Client, int, error) {
	re, err := compileSearch(f.Search)
	if err != nil {
		return nil, 0, err
	}
	list := []models.Client{}
	for _, c := range d.clients {
		if re == nil || re.MatchString(c.FullName) {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].FullName != list[j].FullName {
			return list[i].FullName < list[j].FullName
		}
		return list[i].ID.String() < list[j].ID.String()
	})
	return page(list, f), len(list), nil
}

// orders

func (d *dataset) CreateOrder(_ context.Context, o *models.Order) error {
	if _, ok := d.orders[o.ID]; ok {
		return store.ErrDuplicate
	}
	d.orders[o.ID] = *o.Clone()
	return nil
}

func (d *dataset) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o.Clone(), nil
}

func (d *dataset) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return d.GetOrder(ctx, id)
}

func (d *dataset) ReplaceOrder(_ context.Context, o *models.Order) error {
	cur, ok := d.orders[o.ID]
	if !ok {
		return store.ErrNotFound
	}
	next := o.Clone()
	next.CreatedAt = cur.CreatedAt
	d.orders[o.ID] = *next
	return nil
}

func (d *dataset) UpdateOrderStatus(_ context.Context, id uuid.UUID, status models.OrderStatus, at time.Time) (*models.Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = at
	d.orders[id] = o
	return o.Clone(), nil
}

func (d *dataset) DeleteOrder(_ context.Context, id uuid.UUID) error {
	if _, ok := d.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.orders, id)
	return nil
}

func (d *dataset) ListOrders(_ context.Context, f store.ListFilter) ([]models.Order, int, error) {
	list := make([]models.Order, 0, len(d.orders))
	for _, o := range d.orders {
		list = append(list, *o.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID.String() > list[j].ID.String()
	})
	return page(list, f), len(list), nil
}

func (d *dataset) OrderStats(_ context.Context) ([]store.StatusTotal, error) {
	byStatus := map[models.OrderStatus]*store.StatusTotal{}
	for _, o := range d.orders {
		st, ok := byStatus[o.Status]
		if !ok {
			st = &store.StatusTotal{Status: o.Status}
			byStatus[o.Status] = st
		}
		st.Count++
		st.TotalAmount = st.TotalAmount.Add(o.TotalAmount)
	}
	stats := make([]store.StatusTotal, 0, len(byStatus))
	for _, st := range byStatus {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Status < stats[j].Status })
	return stats, nil
}

// accounts

func (d *dataset) CreateUser(_ context.Context, u *models.User) error {
	u.Email = strings.ToLower(u.Email)
	for _, existing := range d.users {
		if existing.Email == u.Email {
			return store.ErrDuplicate
		}
	}
	u.CreatedAt = d.now()
	d.users[u.ID] = *u
	return nil
}

func (d *dataset) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (d *dataset) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	email = strings.ToLower(email)
	for _, u := range d.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (d *dataset) ListUsers(_ context.Context) ([]models.User, error) {
	list := make([]models.User, 0, len(d.users))
	for _, u := range d.users {
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (d *dataset) DeleteUser(_ context.Context, id uuid.UUID) error {
	if _, ok := d.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.users, id)
	return nil
}

func (d *dataset) UpdateUserPassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	u, ok := d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = passwordHash
	d.users[id] = u
	return nil
}

func (d *dataset) CreateAccountRequest(_ context.Context, r *models.AccountRequest) error {
	r.Email = strings.ToLower(r.Email)
	for _, existing := range d.requests {
		if existing.Email == r.Email {
			return store.ErrDuplicate
		}
	}
	r.CreatedAt = d.now()
	d.requests[r.ID] = *r
	return nil
}

func (d *dataset) GetAccountRequest(_ context.Context, id uuid.UUID) (*models.AccountRequest, error) {
	r, ok := d.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (d *dataset) GetAccountRequestByEmail(_ context.Context, email string) (*models.AccountRequest, error) {
	email = strings.ToLower(email)
	for _, r := range d.requests {
		if r.Email == email {
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (d *dataset) ListAccountRequests(_ context.Context, status models.AccountRequestStatus) ([]models.AccountRequest, error) {
	list := []models.AccountRequest{}
	for _, r := range d.requests {
		if status == "" || r.Status == status {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (d *dataset) UpdateAccountRequestStatus(_ context.Context, id uuid.UUID, status models.AccountRequestStatus) error {
	r, ok := d.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	d.requests[id] = r
	return nil
}
