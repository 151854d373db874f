package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const futureDate = "2026-03-20"

type fakeCache struct {
	mu      sync.Mutex
	values  map[string]string
	deletes int
	// beforeSet runs ahead of every SetJSON, outside the lock
	beforeSet func(key string)
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func (c *fakeCache) ClaimKey(_ context.Context, key, placeholder string, _ time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.values[key]; ok {
		return v, false, nil
	}
	c.values[key] = placeholder
	return "", true, nil
}

func (c *fakeCache) SetKey(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *fakeCache) GetJSON(_ context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(v), dst)
}

func (c *fakeCache) SetJSON(_ context.Context, key string, v interface{}, _ time.Duration) error {
	if c.beforeSet != nil {
		c.beforeSet(key)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = string(b)
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	c.deletes++
	return nil
}

func (c *fakeCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.OrderEvent
}

func (p *fakePublisher) PublishOrderEvent(_ context.Context, e *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	db     *memstore.Store
	cache  *fakeCache
	events *fakePublisher
	svc    *OrderService
	client *models.Client
}

func newFixture(t *testing.T, policy StatusPolicy) *fixture {
	t.Helper()
	f := &fixture{
		db:     memstore.NewWithClock(func() time.Time { return fixedNow }),
		cache:  newFakeCache(),
		events: &fakePublisher{},
	}
	f.svc = NewOrderService(f.db, f.cache, f.events, policy, OrderOptions{
		TxMaxAttempts:  3,
		TxTimeout:      time.Second,
		IdempotencyTTL: time.Hour,
		StatsCacheTTL:  time.Minute,
	}).WithClock(func() time.Time { return fixedNow })

	f.client = &models.Client{ID: uuid.New(), FullName: "Ana Silva", Email: "ana@example.com", FiscalNumber: "501234567"}
	require.NoError(t, f.db.CreateClient(context.Background(), f.client))
	return f
}

func (f *fixture) product(t *testing.T, name, price string, qty int) *models.Product {
	t.Helper()
	p := &models.Product{ID: uuid.New(), Name: name, Price: decimal.RequireFromString(price), Quantity: qty}
	require.NoError(t, f.db.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.db.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func (f *fixture) orderCount(t *testing.T) int {
	t.Helper()
	_, total, err := f.db.ListOrders(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	return total
}

func (f *fixture) request(lines ...LineItemRequest) *OrderRequest {
	return &OrderRequest{
		ClientID:     f.client.ID.String(),
		Products:     lines,
		DeliveryDate: futureDate,
		PaymentType:  "Cash",
	}
}

func line(p *models.Product, qty int) LineItemRequest {
	price := p.Price
	return LineItemRequest{ProductID: p.ID.String(), Quantity: qty, Price: &price}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func requireKind(t *testing.T, err error, kind Kind, code string) *Error {
	t.Helper()
	require.Error(t, err)
	svcErr := AsError(err)
	require.Equal(t, kind, svcErr.Kind, "unexpected error: %v", err)
	require.Equal(t, code, svcErr.Code, "unexpected error: %v", err)
	return svcErr
}
