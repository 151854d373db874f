package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// searchClause matches column case-insensitively against a POSIX regex
func searchClause(column, search string) (string, []interface{}) {
	if search == "" {
		return "", nil
	}
	return fmt.Sprintf(" WHERE %s ~* $1", column), []interface{}{search}
}

func pageQuery(query string, args []interface{}, f ListFilter) (string, []interface{}) {
	if f.Limit <= 0 {
		return query, args
	}
	n := len(args)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	return query, append(args, f.Limit, f.Offset)
}

func (s *Store) deleteByID(ctx context.Context, table string, id uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
