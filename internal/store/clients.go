package store

import (
	"context"

	"backoffice-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	err := sqlx.GetContext(ctx, s.q, &client, "SELECT * FROM clients WHERE id = $1", id)
	if err != nil {
		return nil, translateError(err)
	}
	return &client, nil
}

// GetClientsByIDs retrieves multiple clients by IDs
func (s *Store) GetClientsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Client, error) {
	clients := map[uuid.UUID]*models.Client{}
	if len(ids) == 0 {
		return clients, nil
	}

	query, args, err := sqlx.In("SELECT * FROM clients WHERE id IN (?)", uuidStrings(ids))
	if err != nil {
		return nil, err
	}

	var list []models.Client
	if err := sqlx.SelectContext(ctx, s.q, &list, s.q.Rebind(query), args...); err != nil {
		return nil, translateError(err)
	}
	for i := range list {
		clients[list[i].ID] = &list[i]
	}
	return clients, nil
}

// CreateClient inserts a new client
func (s *Store) CreateClient(ctx context.Context, c *models.Client) error {
	query := `
		INSERT INTO clients (id, full_name, number, email, fiscal_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	row := s.q.QueryRowxContext(ctx, query, c.ID, c.FullName, c.Number, c.Email, c.FiscalNumber)
	return translateError(row.Scan(&c.CreatedAt, &c.UpdatedAt))
}

// UpdateClient overwrites the client's fields
func (s *Store) UpdateClient(ctx context.Context, c *models.Client) error {
	query := `
		UPDATE clients
		SET full_name = $1, number = $2, email = $3, fiscal_number = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING created_at, updated_at`

	row := s.q.QueryRowxContext(ctx, query, c.FullName, c.Number, c.Email, c.FiscalNumber, c.ID)
	return translateError(row.Scan(&c.CreatedAt, &c.UpdatedAt))
}

// DeleteClient removes a client
func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "clients", id)
}

// ListClients pages through clients ordered by name
func (s *Store) ListClients(ctx context.Context, f ListFilter) ([]models.Client, int, error) {
	where, args := searchClause("full_name", f.Search)

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, "SELECT COUNT(*) FROM clients"+where, args...); err != nil {
		return nil, 0, translateError(err)
	}

	clients := []models.Client{}
	query, args := pageQuery("SELECT * FROM clients"+where+" ORDER BY full_name, id", args, f)
	if err := sqlx.SelectContext(ctx, s.q, &clients, query, args...); err != nil {
		return nil, 0, translateError(err)
	}
	return clients, total, nil
}
