package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"backoffice-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// Store is the Postgres implementation of Database
type Store struct {
	db          *sqlx.DB
	q           sqlx.ExtContext
	inTx        bool
	lockTimeout time.Duration
}

// Options tune connection setup
type Options struct {
	// ConnectTimeout bounds the initial connect retry loop. Zero retries
	// until ctx is done.
	ConnectTimeout time.Duration
	// LockTimeout bounds how long a transaction waits for a row lock
	LockTimeout time.Duration
}

// NewStore connects to Postgres, retrying with exponential backoff while the
// database is not reachable yet
func NewStore(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	logger := util.GetLogger()

	var db *sqlx.DB
	connect := func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, "postgres", databaseURL)
		if err != nil {
			logger.Warn("Database not reachable, retrying", zap.Error(err))
			return err
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = opts.ConnectTimeout
	if err := backoff.Retry(connect, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db, q: db, lockTimeout: opts.LockTimeout}, nil
}

// NewFromDB wraps an existing connection pool
func NewFromDB(db *sqlx.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, q: db, lockTimeout: lockTimeout}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a READ COMMITTED transaction. Products read through
// LockProducts stay row-locked until commit or rollback.
func (s *Store) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translateError(err)
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return translateError(err)
		}
	}

	if err := fn(&Store{db: s.db, q: tx, inTx: true, lockTimeout: s.lockTimeout}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return translateError(err)
	}
	return nil
}

// Postgres error codes the store translates into sentinels
const (
	codeUniqueViolation      = "23505"
	codeInvalidRegex         = "2201B"
	codeNumericOutOfRange    = "22003"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		case codeInvalidRegex:
			return fmt.Errorf("%w: %s", ErrInvalidSearch, pqErr.Message)
		case codeNumericOutOfRange:
			return fmt.Errorf("%w: %s", ErrOutOfRange, pqErr.Message)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case codeCheckViolation:
			if pqErr.Constraint == "products_quantity_check" {
				return ErrInsufficientStock
			}
		}
	}
	return err
}
