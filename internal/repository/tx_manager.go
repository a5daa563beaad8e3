package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

// TxManager runs booking units of work inside a transaction guarded by advisory locks.
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager constructs the manager.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// InTx opens a transaction, takes a transaction-scoped advisory lock per key (sorted, deduplicated so
// concurrent callers always lock in the same order), runs fn and commits.
func (m *TxManager) InTx(ctx context.Context, lockKeys []string, fn func(exec sqlx.ExtContext) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, key := range normaliseLockKeys(lockKeys) {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
	}

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit booking transaction: %w", err)
	}
	return nil
}

func normaliseLockKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// executor falls back to the pooled connection when no transaction is supplied.
func executor(db *sqlx.DB, exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return db
}
