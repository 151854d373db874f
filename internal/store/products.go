package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"backoffice-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, translateError(err)
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", uuidStrings(ids))
	if err != nil {
		return nil, err
	}
	query = s.q.Rebind(query)

	var products []models.Product
	if err := sqlx.SelectContext(ctx, s.q, &products, query, args...); err != nil {
		return nil, translateError(err)
	}
	return productMap(products), nil
}

// LockProducts selects the products FOR UPDATE in id order so that
// concurrent transactions touching overlapping products queue up instead of
// deadlocking
func (s *Store) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*models.Product{}, nil
	}

	keys := uuidStrings(ids)
	sort.Strings(keys)

	var products []models.Product
	err := sqlx.SelectContext(ctx, s.q, &products,
		"SELECT * FROM products WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE", pq.Array(keys))
	if err != nil {
		return nil, translateError(err)
	}
	return productMap(products), nil
}

// AdjustQuantity applies a conditional stock delta
func (s *Store) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product, `
		UPDATE products
		SET quantity = quantity + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND quantity + $1 >= 0
		RETURNING *`, delta, id)
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, translateError(err)
	}

	var exists bool
	if err := sqlx.GetContext(ctx, s.q, &exists,
		"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", id); err != nil {
		return nil, translateError(err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrInsufficientStock
}

// CreateProduct inserts a new product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, name, price, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING version, created_at, updated_at`

	row := s.q.QueryRowxContext(ctx, query, p.ID, p.Name, p.Price, p.Quantity)
	return translateError(row.Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt))
}

// UpdateProduct overwrites name, price and quantity
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, price = $2, quantity = $3, version = version + 1, updated_at = NOW()
		WHERE id = $4
		RETURNING version, created_at, updated_at`

	row := s.q.QueryRowxContext(ctx, query, p.Name, p.Price, p.Quantity, p.ID)
	return translateError(row.Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt))
}

// DeleteProduct removes a product
func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "products", id)
}

// ListProducts pages through products ordered by name
func (s *Store) ListProducts(ctx context.Context, f ListFilter) ([]models.Product, int, error) {
	where, args := searchClause("name", f.Search)

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, "SELECT COUNT(*) FROM products"+where, args...); err != nil {
		return nil, 0, translateError(err)
	}

	products := []models.Product{}
	query, args := pageQuery("SELECT * FROM products"+where+" ORDER BY name, id", args, f)
	if err := sqlx.SelectContext(ctx, s.q, &products, query, args...); err != nil {
		return nil, 0, translateError(err)
	}
	return products, total, nil
}

func productMap(products []models.Product) map[uuid.UUID]*models.Product {
	m := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		m[products[i].ID] = &products[i]
	}
	return m
}
