package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/beacon/internal/queryir"
	"github.com/roach88/beacon/internal/querysql"
)

// exec compiles and executes a write statement.
// Must be called from the store's serial queue.
func (s *SQLiteStore) exec(ctx context.Context, op string, q queryir.Query) (sql.Result, error) {
	query, params, err := querysql.Compile(q)
	if err != nil {
		return nil, execError(op, fmt.Errorf("compile: %w", err))
	}

	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, execError(op, err)
	}
	return res, nil
}

// selectRows compiles a select and decodes each row with scan.
// Rows that fail to decode are logged and skipped so one corrupt row cannot
// block every other row. Must be called from the store's serial queue.
func selectRows[T any](ctx context.Context, s *SQLiteStore, op string, q queryir.Select, scan func(*sql.Rows) (T, error)) ([]T, error) {
	query, params, err := querysql.Compile(q)
	if err != nil {
		return nil, execError(op, fmt.Errorf("compile: %w", err))
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, execError(op, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			if IsParseError(err) {
				s.logger.Warn("skipping unreadable row", "op", op, "error", err)
				continue
			}
			return nil, err
		}
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, execError(op, err)
	}
	return out, nil
}

// checkAffected maps zero affected rows to ErrNotFound.
func checkAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return execError(op, err)
	}
	if n == 0 {
		return execError(op, ErrNotFound)
	}
	return nil
}
