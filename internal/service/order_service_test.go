package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderTotalsAndReservesStock(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	a := f.product(t, "Chair", "10.00", 5)
	b := f.product(t, "Lamp", "5.005", 3)

	view, created, err := f.svc.CreateOrder(ctx, f.request(line(a, 2), line(b, 1)), "")
	require.NoError(t, err)
	assert.True(t, created)

	// 10.00*2 + 5.005*1 = 25.005, rounded half away from zero
	assert.Equal(t, "25.01", view.TotalAmount.StringFixed(2))
	assert.Equal(t, models.OrderStatusPending, view.Status)
	assert.Equal(t, futureDate, view.DeliveryDate)
	assert.Equal(t, "Ana Silva", view.Client.FullName)
	require.Len(t, view.Products, 2)
	assert.Equal(t, "Chair", view.Products[0].Product.Name)
	assert.Equal(t, 2, view.Products[0].Quantity)

	assert.Equal(t, 3, f.stock(t, a.ID))
	assert.Equal(t, 2, f.stock(t, b.ID))
	assert.Equal(t, []string{models.EventTypeOrderCreated}, f.events.types())
}

func TestCreateOrderValidationOrder(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 5)

	tests := []struct {
		name   string
		mutate func(r *OrderRequest)
		kind   Kind
		code   string
	}{
		{"no line items", func(r *OrderRequest) { r.Products = nil }, KindValidation, CodeLineItemsRequired},
		{"empty line items beat bad client", func(r *OrderRequest) {
			r.Products = []LineItemRequest{}
			r.ClientID = ""
		}, KindValidation, CodeLineItemsRequired},
		{"missing client id", func(r *OrderRequest) { r.ClientID = "" }, KindValidation, CodeInvalidClientID},
		{"missing delivery date", func(r *OrderRequest) { r.DeliveryDate = "" }, KindValidation, CodeInvalidDeliveryDate},
		{"malformed delivery date", func(r *OrderRequest) { r.DeliveryDate = "20/03/2026" }, KindValidation, CodeInvalidDeliveryDate},
		{"unknown payment type", func(r *OrderRequest) { r.PaymentType = "Bitcoin" }, KindValidation, CodeInvalidPaymentType},
		{"unknown status", func(r *OrderRequest) { r.Status = "Shipped" }, KindValidation, CodeInvalidStatus},
		{"delivery date in the past", func(r *OrderRequest) { r.DeliveryDate = "2026-03-09" }, KindBusinessRule, CodeDeliveryDateInPast},
		{"unknown client", func(r *OrderRequest) { r.ClientID = uuid.NewString() }, KindNotFound, CodeClientNotFound},
		{"unknown client beats bad line", func(r *OrderRequest) {
			r.ClientID = uuid.NewString()
			r.Products[0].Quantity = 0
		}, KindNotFound, CodeClientNotFound},
		{"zero quantity", func(r *OrderRequest) { r.Products[0].Quantity = 0 }, KindValidation, CodeInvalidLineItem},
		{"negative price", func(r *OrderRequest) { r.Products[0].Price = dec("-1") }, KindValidation, CodeInvalidLineItem},
		{"malformed product id", func(r *OrderRequest) { r.Products[0].ProductID = "abc" }, KindValidation, CodeInvalidLineItem},
		{"unknown product", func(r *OrderRequest) { r.Products[0].ProductID = uuid.NewString() }, KindNotFound, CodeProductNotFound},
		{"too many units", func(r *OrderRequest) { r.Products[0].Quantity = 6 }, KindBusinessRule, CodeInsufficientStock},
		{"stock beats price", func(r *OrderRequest) {
			r.Products[0].Quantity = 6
			r.Products[0].Price = dec("99")
		}, KindBusinessRule, CodeInsufficientStock},
		{"price mismatch", func(r *OrderRequest) { r.Products[0].Price = dec("10.02") }, KindBusinessRule, CodePriceMismatch},
		{"quantity beyond column range", func(r *OrderRequest) { r.Products[0].Quantity = math.MaxInt32 + 1 }, KindValidation, CodeInvalidLineItem},
		{"huge repeated lines", func(r *OrderRequest) {
			r.Products = append(r.Products, line(p, math.MaxInt64), line(p, math.MaxInt64), line(p, 2))
		}, KindValidation, CodeInvalidLineItem},
		{"repeated lines past stock", func(r *OrderRequest) {
			r.Products = append(r.Products, line(p, 3), line(p, 2))
		}, KindBusinessRule, CodeInsufficientStock},
		{"largest quantity past stock", func(r *OrderRequest) {
			r.Products = append(r.Products, line(p, math.MaxInt32), line(p, math.MaxInt32))
		}, KindBusinessRule, CodeInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(line(p, 1))
			tt.mutate(req)
			_, _, err := f.svc.CreateOrder(ctx, req, "")
			requireKind(t, err, tt.kind, tt.code)
		})
	}

	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Equal(t, 0, f.orderCount(t))
	assert.Empty(t, f.events.types())
}

func TestCreateOrderErrorDetails(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	p := f.product(t, "Chair", "10.00", 2)

	_, _, err := f.svc.CreateOrder(context.Background(), f.request(line(p, 3)), "")
	svcErr := requireKind(t, err, KindBusinessRule, CodeInsufficientStock)
	assert.Equal(t, p.ID, svcErr.Details["productId"])
	assert.Equal(t, 2, svcErr.Details["available"])

	req := f.request(line(p, 1))
	req.Products[0].Price = dec("9.50")
	_, _, err = f.svc.CreateOrder(context.Background(), req, "")
	svcErr = requireKind(t, err, KindBusinessRule, CodePriceMismatch)
	assert.True(t, decimal.RequireFromString("10.00").Equal(svcErr.Details["expected"].(decimal.Decimal)))
	assert.True(t, decimal.RequireFromString("9.50").Equal(svcErr.Details["received"].(decimal.Decimal)))
}

func TestPriceTolerance(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 10)

	for _, submitted := range []string{"10.01", "9.99", "10.004"} {
		req := f.request(line(p, 1))
		req.Products[0].Price = dec(submitted)
		view, _, err := f.svc.CreateOrder(ctx, req, "")
		require.NoError(t, err, submitted)
		assert.True(t, p.Price.Equal(view.Products[0].Price), "stored price is the catalog price")
	}

	req := f.request(line(p, 1))
	req.Products[0].Price = dec("10.011")
	_, _, err := f.svc.CreateOrder(ctx, req, "")
	requireKind(t, err, KindBusinessRule, CodePriceMismatch)

	req = f.request(LineItemRequest{ProductID: p.ID.String(), Quantity: 1})
	_, _, err = f.svc.CreateOrder(ctx, req, "")
	assert.NoError(t, err, "a line without a price skips the comparison")
}

func TestCreateOrderNormalizesInput(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	p := f.product(t, "Chair", "10.00", 10)

	req := f.request(line(p, 1))
	req.PaymentType = "Credit Card"
	req.DeliveryDate = "2026-03-10T23:30:00Z"
	req.Status = "Confirmed"

	view, _, err := f.svc.CreateOrder(context.Background(), req, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCreditCard, view.PaymentType)
	assert.Equal(t, "2026-03-10", view.DeliveryDate, "today is not in the past")
	assert.Equal(t, models.OrderStatusConfirmed, view.Status)
}

func TestInitialStatusFollowsPolicy(t *testing.T) {
	strict := newFixture(t, StrictPolicy{})
	p := strict.product(t, "Chair", "10.00", 10)
	req := strict.request(line(p, 1))
	req.Status = "Delivered"
	_, _, err := strict.svc.CreateOrder(context.Background(), req, "")
	requireKind(t, err, KindBusinessRule, CodeInvalidTransition)

	permissive := newFixture(t, PermissivePolicy{})
	p = permissive.product(t, "Chair", "10.00", 10)
	req = permissive.request(line(p, 1))
	req.Status = "Delivered"
	view, _, err := permissive.svc.CreateOrder(context.Background(), req, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, view.Status)
}

func TestSecondOrderRejectedWithoutTouchingStock(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 5)
	req := f.request(line(p, 3))

	_, _, err := f.svc.CreateOrder(ctx, req, "")
	require.NoError(t, err)
	assert.Equal(t, 2, f.stock(t, p.ID))

	_, _, err = f.svc.CreateOrder(ctx, req, "")
	requireKind(t, err, KindBusinessRule, CodeInsufficientStock)
	assert.Equal(t, 2, f.stock(t, p.ID))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestDuplicateLinesShareStock(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	p := f.product(t, "Chair", "10.00", 5)

	_, _, err := f.svc.CreateOrder(context.Background(), f.request(line(p, 3), line(p, 3)), "")
	requireKind(t, err, KindBusinessRule, CodeInsufficientStock)
	assert.Equal(t, 5, f.stock(t, p.ID))

	view, _, err := f.svc.CreateOrder(context.Background(), f.request(line(p, 2), line(p, 3)), "")
	require.NoError(t, err)
	assert.Len(t, view.Products, 2)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestFailedSecondLineRollsBackFirst(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	a := f.product(t, "Chair", "10.00", 5)
	b := f.product(t, "Lamp", "20.00", 1)

	_, _, err := f.svc.CreateOrder(context.Background(), f.request(line(a, 2), line(b, 2)), "")
	requireKind(t, err, KindBusinessRule, CodeInsufficientStock)

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 1, f.stock(t, b.ID))
	assert.Equal(t, 0, f.orderCount(t))
}

func TestCreateThenDeleteRestoresStock(t *testing.T) {
	for _, status := range []string{"", "Confirmed", "Cancelled"} {
		t.Run("status "+status, func(t *testing.T) {
			f := newFixture(t, StrictPolicy{})
			ctx := context.Background()
			a := f.product(t, "Chair", "10.00", 7)
			b := f.product(t, "Lamp", "3.50", 4)

			view, _, err := f.svc.CreateOrder(ctx, f.request(line(a, 3), line(b, 4), line(a, 1)), "")
			require.NoError(t, err)
			if status == "Confirmed" || status == "Cancelled" {
				_, err = f.svc.UpdateOrderStatus(ctx, view.ID.String(), status)
				require.NoError(t, err)
			}

			require.NoError(t, f.svc.DeleteOrder(ctx, view.ID.String()))
			assert.Equal(t, 7, f.stock(t, a.ID))
			assert.Equal(t, 4, f.stock(t, b.ID))
			assert.Equal(t, 0, f.orderCount(t))
		})
	}
}

func TestDeleteDeliveredOrderKeepsStock(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 5)

	view, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 2)), "")
	require.NoError(t, err)
	_, err = f.svc.UpdateOrderStatus(ctx, view.ID.String(), "Confirmed")
	require.NoError(t, err)
	_, err = f.svc.UpdateOrderStatus(ctx, view.ID.String(), "Delivered")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteOrder(ctx, view.ID.String()))
	assert.Equal(t, 3, f.stock(t, p.ID))

	events := f.events.events
	last := events[len(events)-1]
	assert.Equal(t, models.EventTypeOrderDeleted, last.EventType)
	assert.False(t, last.StockReleased)
}

func TestDeleteUnknownOrder(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	err := f.svc.DeleteOrder(context.Background(), uuid.NewString())
	requireKind(t, err, KindNotFound, CodeOrderNotFound)

	err = f.svc.DeleteOrder(context.Background(), "not-an-id")
	requireKind(t, err, KindValidation, CodeValidation)
}

func TestDeleteSkipsRemovedProducts(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	a := f.product(t, "Chair", "10.00", 5)
	b := f.product(t, "Lamp", "3.00", 5)

	view, _, err := f.svc.CreateOrder(ctx, f.request(line(a, 1), line(b, 1)), "")
	require.NoError(t, err)
	require.NoError(t, f.db.DeleteProduct(ctx, b.ID))

	require.NoError(t, f.svc.DeleteOrder(ctx, view.ID.String()))
	assert.Equal(t, 5, f.stock(t, a.ID))
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 20)

	const workers = 40
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 3)), "")
			if err == nil {
				succeeded.Add(1)
				return
			}
			if IsKind(err, KindBusinessRule) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(6), succeeded.Load())
	assert.Equal(t, int32(workers-6), rejected.Load())
	assert.Equal(t, 2, f.stock(t, p.ID))
	assert.Equal(t, 6, f.orderCount(t))
}

func TestOrderKeepsPriceAfterCatalogChange(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 5)

	view, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 2)), "")
	require.NoError(t, err)

	p.Price = decimal.RequireFromString("12.50")
	require.NoError(t, f.db.UpdateProduct(ctx, p))

	got, err := f.svc.GetOrder(ctx, view.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "10.00", got.Products[0].Price.StringFixed(2))
	assert.Equal(t, "12.50", got.Products[0].Product.Price.StringFixed(2))
	assert.Equal(t, "20.00", got.TotalAmount.StringFixed(2))
}

func TestStrictStatusTransitions(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 50)

	newOrder := func() string {
		view, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 1)), "")
		require.NoError(t, err)
		return view.ID.String()
	}

	id := newOrder()
	for _, st := range []string{"Pending", "Confirmed", "Confirmed", "Delivered"} {
		view, err := f.svc.UpdateOrderStatus(ctx, id, st)
		require.NoError(t, err, st)
		assert.Equal(t, models.OrderStatus(st), view.Status)
	}
	for _, st := range []string{"Pending", "Confirmed", "Cancelled"} {
		_, err := f.svc.UpdateOrderStatus(ctx, id, st)
		requireKind(t, err, KindBusinessRule, CodeInvalidTransition)
	}

	id = newOrder()
	_, err := f.svc.UpdateOrderStatus(ctx, id, "Delivered")
	requireKind(t, err, KindBusinessRule, CodeInvalidTransition)
	_, err = f.svc.UpdateOrderStatus(ctx, id, "Cancelled")
	require.NoError(t, err)
	_, err = f.svc.UpdateOrderStatus(ctx, id, "Pending")
	requireKind(t, err, KindBusinessRule, CodeInvalidTransition)

	_, err = f.svc.UpdateOrderStatus(ctx, id, "Lost")
	requireKind(t, err, KindValidation, CodeInvalidStatus)
	_, err = f.svc.UpdateOrderStatus(ctx, uuid.NewString(), "Confirmed")
	requireKind(t, err, KindNotFound, CodeOrderNotFound)

	assert.Equal(t, 48, f.stock(t, p.ID), "status changes never touch stock")
}

func TestPermissiveStatusTransitions(t *testing.T) {
	f := newFixture(t, PermissivePolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 5)

	view, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 1)), "")
	require.NoError(t, err)

	for _, st := range []string{"Delivered", "Pending", "Cancelled", "Confirmed"} {
		got, err := f.svc.UpdateOrderStatus(ctx, view.ID.String(), st)
		require.NoError(t, err, st)
		assert.Equal(t, models.OrderStatus(st), got.Status)
	}
	assert.Equal(t, 4, f.stock(t, p.ID))
}

func TestUpdateOrderReplacesLineItems(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	a := f.product(t, "Chair", "10.00", 5)
	b := f.product(t, "Lamp", "4.00", 5)

	view, _, err := f.svc.CreateOrder(ctx, f.request(line(a, 5)), "")
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t, a.ID))

	// The released units of the old lines can be ordered again.
	req := f.request(line(a, 4), line(b, 2))
	req.PaymentType = "BankTransfer"
	updated, err := f.svc.UpdateOrder(ctx, view.ID.String(), req)
	require.NoError(t, err)

	assert.Equal(t, view.ID, updated.ID)
	assert.Equal(t, view.CreatedAt, updated.CreatedAt)
	assert.Equal(t, models.PaymentBankTransfer, updated.PaymentType)
	assert.Equal(t, "48.00", updated.TotalAmount.StringFixed(2))
	assert.Equal(t, 1, f.stock(t, a.ID))
	assert.Equal(t, 3, f.stock(t, b.ID))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestFailedUpdateLeavesOrderAndStock(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	a := f.product(t, "Chair", "10.00", 5)
	b := f.product(t, "Lamp", "4.00", 1)

	view, _, err := f.svc.CreateOrder(ctx, f.request(line(a, 2)), "")
	require.NoError(t, err)

	_, err = f.svc.UpdateOrder(ctx, view.ID.String(), f.request(line(a, 1), line(b, 2)))
	requireKind(t, err, KindBusinessRule, CodeInsufficientStock)

	assert.Equal(t, 3, f.stock(t, a.ID))
	assert.Equal(t, 1, f.stock(t, b.ID))
	got, err := f.svc.GetOrder(ctx, view.ID.String())
	require.NoError(t, err)
	require.Len(t, got.Products, 1)
	assert.Equal(t, 2, got.Products[0].Quantity)
}

func TestUpdateOrderRespectsPolicy(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 10)

	view, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 1)), "")
	require.NoError(t, err)

	req := f.request(line(p, 2))
	req.Status = "Delivered"
	_, err = f.svc.UpdateOrder(ctx, view.ID.String(), req)
	requireKind(t, err, KindBusinessRule, CodeInvalidTransition)

	_, err = f.svc.UpdateOrderStatus(ctx, view.ID.String(), "Cancelled")
	require.NoError(t, err)
	_, err = f.svc.UpdateOrder(ctx, view.ID.String(), f.request(line(p, 2)))
	requireKind(t, err, KindBusinessRule, CodeOrderNotEditable)
	assert.Equal(t, 9, f.stock(t, p.ID))

	_, err = f.svc.UpdateOrder(ctx, uuid.NewString(), f.request(line(p, 2)))
	requireKind(t, err, KindNotFound, CodeOrderNotFound)
}

// conflictingDB fails the first failures transactions with a lock conflict
type conflictingDB struct {
	store.Database
	failures atomic.Int32
	attempts atomic.Int32
}

func (c *conflictingDB) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	c.attempts.Add(1)
	if c.failures.Add(-1) >= 0 {
		return fmt.Errorf("%w: lock timeout", store.ErrConflict)
	}
	return c.Database.WithTx(ctx, fn)
}

func TestConflictsAreRetried(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	p := f.product(t, "Chair", "10.00", 5)

	db := &conflictingDB{Database: f.db}
	db.failures.Store(2)
	svc := NewOrderService(db, nil, nil, StrictPolicy{}, OrderOptions{TxMaxAttempts: 3}).
		WithClock(func() time.Time { return fixedNow })

	_, _, err := svc.CreateOrder(context.Background(), f.request(line(p, 1)), "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), db.attempts.Load())
	assert.Equal(t, 4, f.stock(t, p.ID))
}

func TestConflictsExhaustAttempts(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	p := f.product(t, "Chair", "10.00", 5)

	db := &conflictingDB{Database: f.db}
	db.failures.Store(10)
	svc := NewOrderService(db, nil, nil, StrictPolicy{}, OrderOptions{TxMaxAttempts: 3}).
		WithClock(func() time.Time { return fixedNow })

	_, _, err := svc.CreateOrder(context.Background(), f.request(line(p, 1)), "")
	requireKind(t, err, KindConflict, CodeConflict)
	assert.True(t, errors.Is(err, store.ErrConflict))
	assert.Equal(t, int32(3), db.attempts.Load())
	assert.Equal(t, 5, f.stock(t, p.ID))
}

func TestIdempotencyKeyReplaysOrder(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 5)

	first, created, err := f.svc.CreateOrder(ctx, f.request(line(p, 2)), "key-1")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.svc.CreateOrder(ctx, f.request(line(p, 2)), "key-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 3, f.stock(t, p.ID))
	assert.Equal(t, 1, f.orderCount(t))
}

func TestIdempotencyKeyFreedAfterFailure(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 1)

	_, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 2)), "key-2")
	requireKind(t, err, KindBusinessRule, CodeInsufficientStock)
	_, ok := f.cache.get("idempotency:order:key-2")
	assert.False(t, ok)

	_, created, err := f.svc.CreateOrder(ctx, f.request(line(p, 1)), "key-2")
	require.NoError(t, err)
	assert.True(t, created)
}

func TestIdempotencyKeyInFlight(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	p := f.product(t, "Chair", "10.00", 1)
	require.NoError(t, f.cache.SetKey(context.Background(), "idempotency:order:key-3", idempotencyPending, 0))

	_, _, err := f.svc.CreateOrder(context.Background(), f.request(line(p, 1)), "key-3")
	requireKind(t, err, KindConflict, CodeConflict)
	assert.Equal(t, 1, f.stock(t, p.ID))
}

func TestListOrdersPagination(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 50)

	tick := fixedNow
	f.svc.WithClock(func() time.Time {
		tick = tick.Add(1)
		return tick
	})

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		view, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 1)), "")
		require.NoError(t, err)
		ids = append(ids, view.ID)
	}

	page, err := f.svc.ListOrders(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, ids[4], page.Orders[0].ID, "newest first")
	assert.Equal(t, "Chair", page.Orders[0].Products[0].Product.Name)

	page, err = f.svc.ListOrders(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, ids[0], page.Orders[0].ID)

	page, err = f.svc.ListOrders(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)
}

func TestStatsExcludeCancelledRevenue(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 50)

	for i := 0; i < 3; i++ {
		_, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 1)), "")
		require.NoError(t, err)
	}
	view, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 4)), "")
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalOrders)
	assert.Equal(t, "70.00", stats.TotalRevenue.StringFixed(2))
	key, ok := f.svc.statsKey(ctx)
	require.True(t, ok)
	_, cached := f.cache.get(key)
	assert.True(t, cached)

	_, err = f.svc.UpdateOrderStatus(ctx, view.ID.String(), "Cancelled")
	require.NoError(t, err)
	key, _ = f.svc.statsKey(ctx)
	_, cached = f.cache.get(key)
	assert.False(t, cached, "order changes move the stats to a fresh key")

	stats, err = f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalOrders)
	assert.Equal(t, "30.00", stats.TotalRevenue.StringFixed(2))
	require.Len(t, stats.StatusBreakdown, 2)
}

func TestStatsComputedDuringAWriteAreNotServedAfterIt(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 50)

	view, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 4)), "")
	require.NoError(t, err)
	_, _, err = f.svc.CreateOrder(ctx, f.request(line(p, 3)), "")
	require.NoError(t, err)

	// the cancellation commits after the totals were read but before they
	// are cached
	var once sync.Once
	f.cache.beforeSet = func(key string) {
		if key == statsGenerationKey {
			return
		}
		once.Do(func() {
			_, err := f.svc.UpdateOrderStatus(ctx, view.ID.String(), "Cancelled")
			require.NoError(t, err)
		})
	}

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "70.00", stats.TotalRevenue.StringFixed(2))

	stats, err = f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "30.00", stats.TotalRevenue.StringFixed(2))
}

// overflowingStore fails every transaction the way Postgres does when a
// total does not fit its column
type overflowingStore struct {
	*memstore.Store
}

func (overflowingStore) WithTx(context.Context, func(store.Repository) error) error {
	return fmt.Errorf("%w: numeric field overflow", store.ErrOutOfRange)
}

func TestCreateOrderRejectsAmountsBeyondColumnRange(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	p := f.product(t, "Chair", "10.00", 5)
	svc := NewOrderService(overflowingStore{f.db}, nil, nil, StrictPolicy{}, OrderOptions{TxMaxAttempts: 3}).
		WithClock(func() time.Time { return fixedNow })

	_, _, err := svc.CreateOrder(context.Background(), f.request(line(p, 1)), "")
	requireKind(t, err, KindValidation, CodeInvalidLineItem)
	assert.Equal(t, 5, f.stock(t, p.ID))
}

func TestGetOrderShowsDeletedReferences(t *testing.T) {
	f := newFixture(t, StrictPolicy{})
	ctx := context.Background()
	p := f.product(t, "Chair", "10.00", 5)

	view, _, err := f.svc.CreateOrder(ctx, f.request(line(p, 1)), "")
	require.NoError(t, err)
	require.NoError(t, f.db.DeleteProduct(ctx, p.ID))
	require.NoError(t, f.db.DeleteClient(ctx, f.client.ID))

	got, err := f.svc.GetOrder(ctx, view.ID.String())
	require.NoError(t, err)
	assert.Equal(t, f.client.ID, got.Client.ID)
	assert.Empty(t, got.Client.FullName)
	assert.Equal(t, p.ID, got.Products[0].Product.ID)
	assert.Empty(t, got.Products[0].Product.Name)
	assert.Nil(t, got.Products[0].Product.Price)
}
