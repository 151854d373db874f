package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductRequest is the body of a product create or update
type ProductRequest struct {
	Name     string           `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Quantity *int             `json:"quantity"`
}

// ProductPage is one page of products ordered by name
type ProductPage struct {
	Products []models.Product `json:"products"`
	PageInfo
}

// CatalogService manages products. Stock changes made here bypass the order
// engine and are meant for restocking and corrections.
type CatalogService struct {
	repo   store.InventoryStore
	paging Paging
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo store.InventoryStore, paging Paging) *CatalogService {
	if paging.DefaultLimit == 0 {
		paging = DefaultPaging
	}
	return &CatalogService{repo: repo, paging: paging, logger: util.GetLogger()}
}

// CreateProduct adds a product to the catalog
func (s *CatalogService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	p, err := validateProduct(req)
	if err != nil {
		return nil, err
	}
	p.ID = uuid.New()

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created", zap.String("product_id", p.ID.String()), zap.String("name", p.Name))
	return p, nil
}

// GetProduct retrieves a product by ID
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	productID, err := parseEntityID("product", id)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, productLookupError(productID, err)
	}
	return p, nil
}

// UpdateProduct replaces the name, price and stock of a product
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, req *ProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	productID, err := parseEntityID("product", id)
	if err != nil {
		return nil, err
	}
	p, err := validateProduct(req)
	if err != nil {
		return nil, err
	}
	p.ID = productID

	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, productLookupError(productID, err)
	}

	s.logger.Info("Product updated",
		zap.String("product_id", p.ID.String()),
		zap.String("price", p.Price.String()),
		zap.Int("quantity", p.Quantity))
	return p, nil
}

// DeleteProduct removes a product. Orders that reference it keep their
// captured lines.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct")
	defer span.End()

	productID, err := parseEntityID("product", id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		return productLookupError(productID, err)
	}

	s.logger.Info("Product deleted", zap.String("product_id", productID.String()))
	return nil
}

// ListProducts returns one page of products whose name matches search
func (s *CatalogService) ListProducts(ctx context.Context, page, limit int, search string) (*ProductPage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	if err := checkSearch(search); err != nil {
		return nil, err
	}
	page, limit, filter := s.paging.Normalize(page, limit, search)
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, searchError("products", search, err)
	}
	return &ProductPage{Products: products, PageInfo: newPageInfo(total, page, limit)}, nil
}

func validateProduct(req *ProductRequest) (*models.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ValidationError(CodeValidation, "name is required")
	}
	if req.Price == nil || req.Price.IsNegative() {
		return nil, ValidationError(CodeValidation, "price must be a non-negative number")
	}
	// stock is replaced wholesale, so a missing quantity is an error rather
	// than zero
	if req.Quantity == nil {
		return nil, ValidationError(CodeValidation, "quantity is required")
	}
	if *req.Quantity < 0 || *req.Quantity > maxLineQuantity {
		return nil, ValidationError(CodeValidation, "quantity must be between 0 and %d", maxLineQuantity)
	}
	return &models.Product{Name: name, Price: *req.Price, Quantity: *req.Quantity}, nil
}

func productLookupError(id uuid.UUID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError(CodeProductNotFound, "product %s not found", id).With("productId", id)
	}
	return fmt.Errorf("failed to load product: %w", err)
}

// checkSearch rejects search patterns that are not valid regular expressions
func checkSearch(search string) error {
	if search == "" {
		return nil
	}
	if _, err := regexp.Compile(search); err != nil {
		return ValidationError(CodeInvalidSearch, "search is not a valid regular expression").
			With("search", search)
	}
	return nil
}

// searchError turns a pattern the database refused into a validation error.
// Go and Postgres regular expressions differ, so checkSearch cannot catch
// every such pattern up front.
func searchError(collection, search string, err error) error {
	if errors.Is(err, store.ErrInvalidSearch) {
		return ValidationError(CodeInvalidSearch, "search is not a valid regular expression").
			With("search", search)
	}
	return fmt.Errorf("failed to list %s: %w", collection, err)
}

func parseEntityID(entity, id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ValidationError(CodeValidation, "invalid %s id %q", entity, id)
	}
	return parsed, nil
}
