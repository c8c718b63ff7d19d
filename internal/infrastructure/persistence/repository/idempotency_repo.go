package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/teamspace/expense-ledger/internal/application/port"
)

// IdempotencyRepository implements port.IdempotencyStore on SQLite. The
// (workspace_id, key) primary key plus INSERT OR IGNORE makes the first
// binding win; bindings never expire.
type IdempotencyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdempotencyRepository creates a new SQLite idempotency store
func NewIdempotencyRepository(db *sql.DB, logger *zap.Logger) *IdempotencyRepository {
	return &IdempotencyRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the expense id bound to (workspaceID, key)
func (r *IdempotencyRepository) Get(ctx context.Context, workspaceID, key string) (string, bool, error) {
	var expenseID string
	err := r.db.QueryRowContext(ctx,
		"SELECT expense_id FROM idempotency_keys WHERE workspace_id = ? AND key = ?",
		workspaceID, key).Scan(&expenseID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		r.logger.Error("Failed to look up idempotency key",
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
		return "", false, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return expenseID, true, nil
}

// Set binds (workspaceID, key) to an expense id
func (r *IdempotencyRepository) Set(ctx context.Context, workspaceID, key, expenseID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO idempotency_keys (workspace_id, key, expense_id) VALUES (?, ?, ?)",
		workspaceID, key, expenseID)
	if err != nil {
		r.logger.Error("Failed to bind idempotency key",
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
		return fmt.Errorf("failed to bind idempotency key: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.IdempotencyStore = (*IdempotencyRepository)(nil)
