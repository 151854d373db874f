package store

import (
	"context"
	"strings"

	"backoffice-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateUser inserts an approved account
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, name, surname, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	row := s.q.QueryRowxContext(ctx, query,
		u.ID, u.Name, u.Surname, strings.ToLower(u.Email), u.PasswordHash, u.Role)
	return translateError(row.Scan(&u.CreatedAt))
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := sqlx.GetContext(ctx, s.q, &u, "SELECT * FROM users WHERE id = $1", id); err != nil {
		return nil, translateError(err)
	}
	return &u, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, s.q, &u, "SELECT * FROM users WHERE email = $1", strings.ToLower(email))
	if err != nil {
		return nil, translateError(err)
	}
	return &u, nil
}

// ListUsers retrieves all users
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := sqlx.SelectContext(ctx, s.q, &users, "SELECT * FROM users ORDER BY created_at")
	return users, translateError(err)
}

// DeleteUser removes a user
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "users", id)
}

// UpdateUserPassword replaces a user's password hash
func (s *Store) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res, err := s.q.ExecContext(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", passwordHash, id)
	if err != nil {
		return translateError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAccountRequest inserts a pending sign-up
func (s *Store) CreateAccountRequest(ctx context.Context, r *models.AccountRequest) error {
	query := `
		INSERT INTO account_requests (id, name, surname, email, password_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	row := s.q.QueryRowxContext(ctx, query,
		r.ID, r.Name, r.Surname, strings.ToLower(r.Email), r.PasswordHash, r.Status)
	return translateError(row.Scan(&r.CreatedAt))
}

// GetAccountRequest retrieves a sign-up request by ID
func (s *Store) GetAccountRequest(ctx context.Context, id uuid.UUID) (*models.AccountRequest, error) {
	var r models.AccountRequest
	if err := sqlx.GetContext(ctx, s.q, &r, "SELECT * FROM account_requests WHERE id = $1", id); err != nil {
		return nil, translateError(err)
	}
	return &r, nil
}

// GetAccountRequestByEmail retrieves a sign-up request by email
func (s *Store) GetAccountRequestByEmail(ctx context.Context, email string) (*models.AccountRequest, error) {
	var r models.AccountRequest
	err := sqlx.GetContext(ctx, s.q, &r,
		"SELECT * FROM account_requests WHERE email = $1", strings.ToLower(email))
	if err != nil {
		return nil, translateError(err)
	}
	return &r, nil
}

// ListAccountRequests retrieves sign-up requests, optionally filtered by status
func (s *Store) ListAccountRequests(ctx context.Context, status models.AccountRequestStatus) ([]models.AccountRequest, error) {
	requests := []models.AccountRequest{}
	var err error
	if status == "" {
		err = sqlx.SelectContext(ctx, s.q, &requests,
			"SELECT * FROM account_requests ORDER BY created_at DESC")
	} else {
		err = sqlx.SelectContext(ctx, s.q, &requests,
			"SELECT * FROM account_requests WHERE status = $1 ORDER BY created_at DESC", status)
	}
	return requests, translateError(err)
}

// UpdateAccountRequestStatus marks a sign-up request approved or rejected
func (s *Store) UpdateAccountRequestStatus(ctx context.Context, id uuid.UUID, status models.AccountRequestStatus) error {
	res, err := s.q.ExecContext(ctx, "UPDATE account_requests SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return translateError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
