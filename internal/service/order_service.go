package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	statsCacheKey      = "orders:stats"
	statsGenerationKey = "orders:stats:generation"
	idempotencyPending = "pending"
	publishTimeout     = 5 * time.Second
)

// OrderCache is the shared cache behind idempotent creates and the stats
// summary. A nil cache disables both.
type OrderCache interface {
	// ClaimKey stores placeholder under key unless the key exists, in which
	// case it returns the stored value and claimed=false
	ClaimKey(ctx context.Context, key, placeholder string, ttl time.Duration) (existing string, claimed bool, err error)
	SetKey(ctx context.Context, key, value string, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// OrderEventPublisher receives an event for every committed order change
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
}

// OrderOptions tune the order service
type OrderOptions struct {
	TxMaxAttempts  int
	TxTimeout      time.Duration
	Location       *time.Location
	IdempotencyTTL time.Duration
	StatsCacheTTL  time.Duration
	Paging         Paging
}

// OrderService places, edits and removes orders. Every write runs the stock
// check and the stock adjustment inside one store transaction.
type OrderService struct {
	db     store.Database
	cache  OrderCache
	events OrderEventPublisher
	policy StatusPolicy
	opts   OrderOptions
	now    func() time.Time
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	db store.Database,
	cache OrderCache,
	events OrderEventPublisher,
	policy StatusPolicy,
	opts OrderOptions,
) *OrderService {
	if opts.TxMaxAttempts < 1 {
		opts.TxMaxAttempts = 1
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Paging.DefaultLimit == 0 {
		opts.Paging = DefaultPaging
	}
	if policy == nil {
		policy = StrictPolicy{}
	}
	return &OrderService{
		db:     db,
		cache:  cache,
		events: events,
		policy: policy,
		opts:   opts,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// WithClock replaces the time source
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}

func (s *OrderService) today() time.Time {
	return dateOf(s.now(), s.opts.Location)
}

// CreateOrder validates and places a new order. With a non-empty
// idempotencyKey a repeated call returns the order of the first call and
// created=false.
func (s *OrderService) CreateOrder(ctx context.Context, req *OrderRequest, idempotencyKey string) (view *OrderView, created bool, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if idempotencyKey != "" && s.cache != nil {
		key := "idempotency:order:" + idempotencyKey
		existing, claimed, cerr := s.cache.ClaimKey(ctx, key, idempotencyPending, s.opts.IdempotencyTTL)
		switch {
		case cerr != nil:
			s.logger.Warn("Idempotency check unavailable, creating without it",
				zap.String("idempotency_key", idempotencyKey), zap.Error(cerr))
		case !claimed:
			return s.replay(ctx, idempotencyKey, existing)
		default:
			defer func() {
				s.settleIdempotencyKey(ctx, key, view, err)
			}()
		}
	}

	hdr, err := validateHeader(req, s.today(), s.opts.Location, s.checkInitialStatus)
	if err != nil {
		return nil, false, s.reject(err)
	}
	if hdr.status == "" {
		hdr.status = models.OrderStatusPending
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:           uuid.New(),
		ClientID:     hdr.clientID,
		DeliveryDate: hdr.deliveryDate,
		PaymentType:  hdr.paymentType,
		Status:       hdr.status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var views []OrderView
	err = s.runTx(ctx, func(ctx context.Context, repo store.Repository) error {
		items, total, err := s.reserve(ctx, repo, hdr, req.Products)
		if err != nil {
			return err
		}
		order.Items = items
		order.TotalAmount = total

		if err := repo.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		views, err = materialize(ctx, repo, []models.Order{*order})
		return err
	})
	if err != nil {
		return nil, false, s.reject(err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("client_id", order.ClientID.String()),
		zap.String("total", order.TotalAmount.String()))

	s.afterCommit(ctx, models.EventTypeOrderCreated, order, "", false)
	return &views[0], true, nil
}

func (s *OrderService) replay(ctx context.Context, idempotencyKey, existing string) (*OrderView, bool, error) {
	if existing == idempotencyPending {
		return nil, false, s.reject(ConflictError(
			fmt.Errorf("idempotency key %q is still being processed", idempotencyKey)))
	}
	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", idempotencyKey),
		zap.String("order_id", existing))
	view, err := s.GetOrder(ctx, existing)
	if err != nil {
		return nil, false, err
	}
	return view, false, nil
}

// settleIdempotencyKey records the created order under key, or frees the key
// so that a failed request can be retried with it
func (s *OrderService) settleIdempotencyKey(ctx context.Context, key string, view *OrderView, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	var cerr error
	if err == nil && view != nil {
		cerr = s.cache.SetKey(ctx, key, view.ID.String(), s.opts.IdempotencyTTL)
	} else {
		cerr = s.cache.Delete(ctx, key)
	}
	if cerr != nil {
		s.logger.Warn("Failed to settle idempotency key", zap.String("key", key), zap.Error(cerr))
	}
}

// UpdateOrder releases the stock held by an order and places its new line
// items in the same transaction. The order keeps its id and creation time.
func (s *OrderService) UpdateOrder(ctx context.Context, id string, req *OrderRequest) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrder")
	defer span.End()

	orderID, err := parseOrderID(id)
	if err != nil {
		return nil, s.reject(err)
	}

	// A submitted status is checked against the stored one inside the
	// transaction.
	hdr, err := validateHeader(req, s.today(), s.opts.Location, func(models.OrderStatus) error { return nil })
	if err != nil {
		return nil, s.reject(err)
	}

	var (
		updated  *models.Order
		previous models.OrderStatus
		views    []OrderView
	)
	err = s.runTx(ctx, func(ctx context.Context, repo store.Repository) error {
		existing, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return orderLookupError(orderID, err)
		}
		previous = existing.Status

		if !s.policy.Editable(existing.Status) {
			return BusinessRuleError(CodeOrderNotEditable,
				"orders in status %s cannot be edited", existing.Status).
				With("status", existing.Status)
		}

		status := existing.Status
		if hdr.status != "" {
			if !s.policy.AllowsTransition(existing.Status, hdr.status) {
				return transitionError(existing.Status, hdr.status)
			}
			status = hdr.status
		}

		// Lock everything the update touches up front, in id order.
		lockIDs := make([]uuid.UUID, 0, len(existing.Items)+len(req.Products))
		for _, it := range existing.Items {
			lockIDs = append(lockIDs, it.ProductID)
		}
		for _, it := range req.Products {
			if pid, err := uuid.Parse(it.ProductID); err == nil {
				lockIDs = append(lockIDs, pid)
			}
		}
		if _, err := repo.LockProducts(ctx, lockIDs); err != nil {
			return fmt.Errorf("failed to lock products: %w", err)
		}

		if err := s.release(ctx, repo, existing); err != nil {
			return err
		}

		items, total, err := s.reserve(ctx, repo, hdr, req.Products)
		if err != nil {
			return err
		}

		updated = existing.Clone()
		updated.ClientID = hdr.clientID
		updated.Items = items
		updated.DeliveryDate = hdr.deliveryDate
		updated.PaymentType = hdr.paymentType
		updated.Status = status
		updated.TotalAmount = total
		updated.UpdatedAt = s.now().UTC()

		if err := repo.ReplaceOrder(ctx, updated); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}

		views, err = materialize(ctx, repo, []models.Order{*updated})
		return err
	})
	if err != nil {
		return nil, s.reject(err)
	}

	util.OrdersUpdatedTotal.Inc()
	s.logger.Info("Order updated",
		zap.String("order_id", updated.ID.String()),
		zap.String("total", updated.TotalAmount.String()))

	s.afterCommit(ctx, models.EventTypeOrderUpdated, updated, previous, false)
	return &views[0], nil
}

// UpdateOrderStatus moves an order to a new status. Stock is not touched.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id, status string) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	orderID, err := parseOrderID(id)
	if err != nil {
		return nil, s.reject(err)
	}
	next, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, s.reject(ValidationError(CodeInvalidStatus,
			"status must be one of Pending, Confirmed, Delivered, Cancelled").With("status", status))
	}

	var (
		updated  *models.Order
		previous models.OrderStatus
		views    []OrderView
	)
	err = s.runTx(ctx, func(ctx context.Context, repo store.Repository) error {
		existing, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return orderLookupError(orderID, err)
		}
		previous = existing.Status

		if !s.policy.AllowsTransition(existing.Status, next) {
			return transitionError(existing.Status, next)
		}

		updated, err = repo.UpdateOrderStatus(ctx, orderID, next, s.now().UTC())
		if err != nil {
			return orderLookupError(orderID, err)
		}

		views, err = materialize(ctx, repo, []models.Order{*updated})
		return err
	})
	if err != nil {
		return nil, s.reject(err)
	}

	util.OrderStatusChangesTotal.WithLabelValues(string(next)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(next)))

	s.afterCommit(ctx, models.EventTypeOrderStatusChanged, updated, previous, false)
	return &views[0], nil
}

// DeleteOrder removes an order and returns its stock unless it was
// delivered
func (s *OrderService) DeleteOrder(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder")
	defer span.End()

	orderID, err := parseOrderID(id)
	if err != nil {
		return s.reject(err)
	}

	var (
		deleted  *models.Order
		released bool
	)
	err = s.runTx(ctx, func(ctx context.Context, repo store.Repository) error {
		existing, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return orderLookupError(orderID, err)
		}
		deleted = existing

		released = existing.Status != models.OrderStatusDelivered
		if released {
			if err := s.release(ctx, repo, existing); err != nil {
				return err
			}
		}

		if err := repo.DeleteOrder(ctx, orderID); err != nil {
			return orderLookupError(orderID, err)
		}
		return nil
	})
	if err != nil {
		return s.reject(err)
	}

	util.OrdersDeletedTotal.Inc()
	s.logger.Info("Order deleted",
		zap.String("order_id", orderID.String()),
		zap.Bool("stock_released", released))

	s.afterCommit(ctx, models.EventTypeOrderDeleted, deleted, deleted.Status, released)
	return nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id string) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	orderID, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}

	order, err := s.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, orderLookupError(orderID, err)
	}

	views, err := materialize(ctx, s.db, []models.Order{*order})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListOrders returns one page of orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, page, limit int) (*OrderPage, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	page, limit, filter := s.opts.Paging.Normalize(page, limit, "")
	orders, total, err := s.db.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	views, err := materialize(ctx, s.db, orders)
	if err != nil {
		return nil, err
	}
	return &OrderPage{Orders: views, PageInfo: newPageInfo(total, page, limit)}, nil
}

// Stats summarizes order counts and revenue per status
func (s *OrderService) Stats(ctx context.Context) (*OrderStats, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Stats")
	defer span.End()

	// The key is read before the totals. A write committing in between
	// moves the generation on, so what is cached here is never read again.
	key, cacheable := s.statsKey(ctx)
	if cacheable {
		var cached OrderStats
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("Failed to read cached order stats", zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	totals, err := s.db.OrderStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute order stats: %w", err)
	}
	stats := buildOrderStats(totals)

	if cacheable {
		if err := s.cache.SetJSON(ctx, key, stats, s.opts.StatsCacheTTL); err != nil {
			s.logger.Warn("Failed to cache order stats", zap.Error(err))
		}
	}
	return stats, nil
}

// statsKey returns the cache key of the current stats generation. It reports
// false when there is no cache or the generation cannot be read.
func (s *OrderService) statsKey(ctx context.Context) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	generation := "0"
	if _, err := s.cache.GetJSON(ctx, statsGenerationKey, &generation); err != nil {
		s.logger.Warn("Failed to read order stats generation", zap.Error(err))
		return "", false
	}
	return statsCacheKey + ":" + generation, true
}

// reserve runs the stored-data checks for an order in order: client, line
// items, products, stock, prices. It then takes the stock and returns the
// priced lines.
func (s *OrderService) reserve(ctx context.Context, repo store.Repository, hdr *orderHeader, reqItems []LineItemRequest) (models.LineItems, decimal.Decimal, error) {
	if _, err := repo.GetClient(ctx, hdr.clientID); err != nil {
		return nil, decimal.Zero, clientLookupError(hdr.clientID, err)
	}

	lines, err := parseLineItems(reqItems)
	if err != nil {
		return nil, decimal.Zero, err
	}

	products, err := repo.LockProducts(ctx, productIDs(lines))
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to lock products: %w", err)
	}
	if err := checkProductsExist(lines, products); err != nil {
		return nil, decimal.Zero, err
	}
	if err := checkStock(lines, products); err != nil {
		return nil, decimal.Zero, err
	}
	if err := checkPrices(lines, products); err != nil {
		return nil, decimal.Zero, err
	}

	items, total := priceLines(lines, products)

	ids, deltas := quantityDeltas(items, -1)
	for _, id := range ids {
		if _, err := repo.AdjustQuantity(ctx, id, deltas[id]); err != nil {
			if errors.Is(err, store.ErrInsufficientStock) || errors.Is(err, store.ErrNotFound) {
				// The rows changed after they were checked.
				return nil, decimal.Zero, fmt.Errorf("%w: stock of product %s changed: %v", store.ErrConflict, id, err)
			}
			return nil, decimal.Zero, fmt.Errorf("failed to reserve stock: %w", err)
		}
		util.StockUnitsReservedTotal.Add(float64(-deltas[id]))
	}
	return items, total, nil
}

// release puts the stock held by order back. Products deleted since the
// order was placed are skipped.
func (s *OrderService) release(ctx context.Context, repo store.Repository, order *models.Order) error {
	ids, deltas := quantityDeltas(order.Items, 1)
	for _, id := range ids {
		if _, err := repo.AdjustQuantity(ctx, id, deltas[id]); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("Skipping stock release for deleted product",
					zap.String("order_id", order.ID.String()),
					zap.String("product_id", id.String()))
				continue
			}
			return fmt.Errorf("failed to release stock: %w", err)
		}
		util.StockUnitsReleasedTotal.Add(float64(deltas[id]))
	}
	return nil
}

// runTx runs fn in a store transaction bounded by TxTimeout. Conflicts are
// retried with exponential backoff up to TxMaxAttempts attempts and then
// surface as a ConflictError.
func (s *OrderService) runTx(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error {
	start := time.Now()
	defer func() {
		util.OrderTxLatency.Observe(time.Since(start).Seconds())
	}()

	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			util.OrderTxRetriesTotal.Inc()
		}

		txCtx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()

		err := s.db.WithTx(txCtx, func(repo store.Repository) error {
			return fn(txCtx, repo)
		})
		if err == nil {
			return nil
		}
		if s.retryable(ctx, err) {
			s.logger.Debug("Order transaction conflicted",
				zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.TxMaxAttempts-1)), ctx)

	err := backoff.Retry(op, policy)
	if err != nil && s.retryable(ctx, err) {
		return ConflictError(err)
	}
	if errors.Is(err, store.ErrOutOfRange) {
		return ValidationError(CodeInvalidLineItem, "order amounts exceed the supported range")
	}
	return err
}

// retryable reports whether err came from contention rather than from the
// request itself. A timed out attempt counts as contention while the caller
// is still waiting.
func (s *OrderService) retryable(parent context.Context, err error) bool {
	if errors.Is(err, store.ErrConflict) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}

// reject counts a failed operation by error code and passes err through
func (s *OrderService) reject(err error) error {
	svcErr := AsError(err)
	util.OrdersRejectedTotal.WithLabelValues(svcErr.Code).Inc()
	if svcErr.Kind == KindUnexpected || svcErr.Kind == KindConflict {
		s.logger.Warn("Order operation failed", zap.String("code", svcErr.Code), zap.Error(err))
	}
	return err
}

func (s *OrderService) checkInitialStatus(st models.OrderStatus) error {
	if !s.policy.AllowsInitial(st) {
		return BusinessRuleError(CodeInvalidTransition,
			"orders cannot be created in status %s", st).With("status", st)
	}
	return nil
}

// afterCommit publishes the order event and drops the cached stats. Failures
// are logged only; the order change is already durable.
func (s *OrderService) afterCommit(ctx context.Context, eventType string, order *models.Order, previous models.OrderStatus, released bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, statsGenerationKey, uuid.NewString(), 0); err != nil {
			s.logger.Warn("Failed to invalidate order stats", zap.Error(err))
		}
	}

	if s.events == nil {
		return
	}
	event := &models.OrderEvent{
		BaseEvent:      models.NewBaseEvent(eventType),
		OrderID:        order.ID,
		ClientID:       order.ClientID,
		Status:         order.Status,
		PreviousStatus: previous,
		TotalAmount:    order.TotalAmount,
		Items:          order.Items,
		StockReleased:  released,
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("event_type", eventType),
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}
}

func parseOrderID(id string) (uuid.UUID, error) {
	return parseEntityID("order", id)
}

func orderLookupError(id uuid.UUID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError(CodeOrderNotFound, "order %s not found", id).With("orderId", id)
	}
	return fmt.Errorf("failed to load order: %w", err)
}

func transitionError(from, to models.OrderStatus) error {
	return BusinessRuleError(CodeInvalidTransition, "cannot change order status from %s to %s", from, to).
		With("from", from).With("to", to)
}
