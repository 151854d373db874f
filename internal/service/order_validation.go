package service

import (
	"math"
	"sort"
	"strings"
	"time"

	"backoffice-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// priceTolerance absorbs rounding noise between the submitted and the
// catalog price. A difference of exactly one cent is still accepted.
var priceTolerance = decimal.New(1, -2)

const dateLayout = "2006-01-02"

// maxLineQuantity matches the INTEGER quantity columns
const maxLineQuantity = math.MaxInt32

// OrderRequest is the body of order create and update calls
type OrderRequest struct {
	ClientID     string            `json:"clientId"`
	Products     []LineItemRequest `json:"products"`
	DeliveryDate string            `json:"deliveryDate"`
	PaymentType  string            `json:"paymentType"`
	Status       string            `json:"status,omitempty"`
}

// LineItemRequest is one submitted order line. Price is the price the caller
// saw; it is only compared against the catalog, never stored.
type LineItemRequest struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// orderHeader holds the order level fields once they are known to be valid
type orderHeader struct {
	clientID     uuid.UUID
	deliveryDate time.Time
	paymentType  models.PaymentType
	status       models.OrderStatus
}

type lineInput struct {
	productID uuid.UUID
	quantity  int
	price     *decimal.Decimal
}

// validateHeader runs the input checks that need no stored data: line items
// present, order fields well formed, delivery date not in the past. A
// submitted status is passed to checkStatus.
func validateHeader(req *OrderRequest, today time.Time, loc *time.Location, checkStatus func(models.OrderStatus) error) (*orderHeader, error) {
	if len(req.Products) == 0 {
		return nil, ValidationError(CodeLineItemsRequired, "order must contain at least one product")
	}

	hdr := &orderHeader{}

	clientID, err := uuid.Parse(strings.TrimSpace(req.ClientID))
	if err != nil {
		return nil, ValidationError(CodeInvalidClientID, "clientId is required and must be a valid id")
	}
	hdr.clientID = clientID

	date, ok := parseDeliveryDate(req.DeliveryDate, loc)
	if !ok {
		return nil, ValidationError(CodeInvalidDeliveryDate, "deliveryDate is required and must be a date (YYYY-MM-DD)")
	}
	hdr.deliveryDate = date

	pt, ok := models.ParsePaymentType(strings.TrimSpace(req.PaymentType))
	if !ok {
		return nil, ValidationError(CodeInvalidPaymentType,
			"paymentType must be one of Cash, CreditCard, BankTransfer").
			With("paymentType", req.PaymentType)
	}
	hdr.paymentType = pt

	if req.Status != "" {
		st, ok := models.ParseOrderStatus(req.Status)
		if !ok {
			return nil, ValidationError(CodeInvalidStatus, "unknown order status %q", req.Status)
		}
		if err := checkStatus(st); err != nil {
			return nil, err
		}
		hdr.status = st
	}

	if date.Before(today) {
		return nil, BusinessRuleError(CodeDeliveryDateInPast, "deliveryDate cannot be in the past").
			With("deliveryDate", date.Format(dateLayout))
	}

	return hdr, nil
}

// parseDeliveryDate accepts a calendar date or a full timestamp. A timestamp
// is reduced to its calendar date in loc.
func parseDeliveryDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return dateOf(t, loc), true
	}
	return time.Time{}, false
}

// dateOf truncates t to midnight UTC of its calendar date in loc
func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseLineItems(items []LineItemRequest) ([]lineInput, error) {
	lines := make([]lineInput, 0, len(items))
	for i, item := range items {
		id, err := uuid.Parse(strings.TrimSpace(item.ProductID))
		if err != nil {
			return nil, ValidationError(CodeInvalidLineItem, "line item %d has an invalid productId", i).
				With("index", i)
		}
		if item.Quantity <= 0 {
			return nil, ValidationError(CodeInvalidLineItem, "line item %d must have a positive quantity", i).
				With("index", i).With("productId", id)
		}
		if item.Quantity > maxLineQuantity {
			return nil, ValidationError(CodeInvalidLineItem, "line item %d quantity exceeds %d", i, maxLineQuantity).
				With("index", i).With("productId", id)
		}
		if item.Price != nil && item.Price.IsNegative() {
			return nil, ValidationError(CodeInvalidLineItem, "line item %d must have a non-negative price", i).
				With("index", i).With("productId", id)
		}
		lines = append(lines, lineInput{productID: id, quantity: item.Quantity, price: item.Price})
	}
	return lines, nil
}

// productIDs returns the distinct product ids of lines in first-seen order
func productIDs(lines []lineInput) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if !seen[l.productID] {
			seen[l.productID] = true
			ids = append(ids, l.productID)
		}
	}
	return ids
}

func checkProductsExist(lines []lineInput, products map[uuid.UUID]*models.Product) error {
	for _, l := range lines {
		if _, ok := products[l.productID]; !ok {
			return NotFoundError(CodeProductNotFound, "product %s not found", l.productID).
				With("productId", l.productID)
		}
	}
	return nil
}

// checkStock compares the cumulative quantity requested per product with
// what is on hand, so repeated lines for one product cannot oversell it
func checkStock(lines []lineInput, products map[uuid.UUID]*models.Product) error {
	requested := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		p := products[l.productID]
		// compare against what is left before summing so the total never
		// grows past stock
		if l.quantity > p.Quantity-requested[l.productID] {
			return BusinessRuleError(CodeInsufficientStock,
				"insufficient stock for product %s: requested %d, available %d",
				p.Name, requested[l.productID]+l.quantity, p.Quantity).
				With("productId", p.ID).
				With("requested", requested[l.productID]+l.quantity).
				With("available", p.Quantity)
		}
		requested[l.productID] += l.quantity
	}
	return nil
}

func checkPrices(lines []lineInput, products map[uuid.UUID]*models.Product) error {
	for _, l := range lines {
		if l.price == nil {
			continue
		}
		p := products[l.productID]
		if p.Price.Sub(*l.price).Abs().GreaterThan(priceTolerance) {
			return BusinessRuleError(CodePriceMismatch,
				"price mismatch for product %s: expected %s, received %s",
				p.Name, p.Price.String(), l.price.String()).
				With("productId", p.ID).
				With("expected", p.Price).
				With("received", *l.price)
		}
	}
	return nil
}

// priceLines snapshots the catalog price into each line and totals the order.
// The total is rounded to cents half away from zero.
func priceLines(lines []lineInput, products map[uuid.UUID]*models.Product) (models.LineItems, decimal.Decimal) {
	items := make(models.LineItems, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		price := products[l.productID].Price
		items = append(items, models.LineItem{ProductID: l.productID, Quantity: l.quantity, Price: price})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(l.quantity))))
	}
	return items, total.Round(2)
}

// quantityDeltas sums quantities per product, multiplied by sign, and returns
// them in id order so that stock rows are always touched in the same order
func quantityDeltas(items models.LineItems, sign int) ([]uuid.UUID, map[uuid.UUID]int) {
	deltas := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		deltas[it.ProductID] += sign * it.Quantity
	}
	ids := make([]uuid.UUID, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, deltas
}
