package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// GetMeta returns the value stored under key and whether it was present.
func GetMeta(ctx context.Context, q Executor, key string) (string, bool, error) {
	var v sql.NullString
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return v.String, v.Valid, nil
}

// SetMeta stores value under key, replacing any previous value.
func SetMeta(ctx context.Context, q Executor, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("meta key must be non-empty")
	}
	if _, err := q.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// DeleteMeta removes the given keys.
func DeleteMeta(ctx context.Context, q Executor, keys ...string) error {
	for _, k := range keys {
		if _, err := q.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, k); err != nil {
			return fmt.Errorf("delete meta %s: %w", k, err)
		}
	}
	return nil
}
