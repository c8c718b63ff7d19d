// Package repository provides SQLite-backed implementations of the
// persistence ports for deployments that need a durable store.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teamspace/expense-ledger/internal/application/port"
	"github.com/teamspace/expense-ledger/internal/domain/entity"
)

const expenseColumns = `id, project_id, workspace_id, date, amount, currency, category,
	description, vendor, payment_method, tax_amount, task_id, status,
	created_by, created_at, updated_at`

// ExpenseRepository implements port.ExpenseRepository on SQLite
type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new SQLite expense repository
func NewExpenseRepository(db *sql.DB, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new expense and its attachments
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO expenses (` + expenseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		expense.ID,
		expense.ProjectID,
		expense.WorkspaceID,
		expense.Date,
		expense.Amount,
		expense.Currency,
		expense.Category,
		expense.Description,
		expense.Vendor,
		expense.PaymentMethod,
		expense.TaxAmount,
		expense.TaskID,
		string(expense.Status),
		expense.CreatedBy,
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expense",
			zap.String("expense_id", expense.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	if err := r.replaceAttachments(ctx, tx, expense.ID, expense.Attachments); err != nil {
		return err
	}

	return tx.Commit()
}

// FindByID retrieves an expense by id, nil when absent
func (r *ExpenseRepository) FindByID(ctx context.Context, id string) (*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

	expense, err := scanExpense(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expense by ID",
			zap.String("expense_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	if err := r.loadAttachments(ctx, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

// List returns expenses matching the filter in insertion order
func (r *ExpenseRepository) List(ctx context.Context, filter port.ExpenseFilter) ([]*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses`
	where, args := buildWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY rowid"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	expenses, err := scanExpenses(rows)
	if err != nil {
		return nil, err
	}
	for _, expense := range expenses {
		if err := r.loadAttachments(ctx, expense); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

// Update merges the patch into the stored expense and returns the
// post-mutation copy, nil when the id is absent
func (r *ExpenseRepository) Update(ctx context.Context, id string, patch port.ExpensePatch) (*entity.Expense, error) {
	sets := make([]string, 0, 10)
	args := make([]any, 0, 11)

	appendSet := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *value)
		}
	}
	appendSet("date", patch.Date)
	appendSet("amount", patch.Amount)
	appendSet("currency", patch.Currency)
	appendSet("category", patch.Category)
	appendSet("description", patch.Description)
	appendSet("vendor", patch.Vendor)
	appendSet("payment_method", patch.PaymentMethod)
	appendSet("tax_amount", patch.TaxAmount)
	appendSet("task_id", patch.TaskID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(sets) > 0 || patch.Attachments != nil {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().UTC())
		args = append(args, id)

		query := "UPDATE expenses SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.Error("Failed to update expense",
				zap.String("expense_id", id),
				zap.Error(err))
			return nil, fmt.Errorf("failed to update expense: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected == 0 {
			return nil, nil
		}
	}

	if patch.Attachments != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM expense_attachments WHERE expense_id = ?", id); err != nil {
			return nil, fmt.Errorf("failed to clear attachments: %w", err)
		}
		if err := r.replaceAttachments(ctx, tx, id, patch.Attachments); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}

	return r.FindByID(ctx, id)
}

// UpdateStatus sets status and refreshes updatedAt, returning the
// post-mutation copy, nil when the id is absent
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, id string, status entity.Status) (*entity.Expense, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE expenses SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update expense status",
			zap.String("expense_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	return r.FindByID(ctx, id)
}

func (r *ExpenseRepository) replaceAttachments(ctx context.Context, tx *sql.Tx, expenseID string, attachments []entity.Attachment) error {
	for i, att := range attachments {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO expense_attachments (expense_id, position, filename, url) VALUES (?, ?, ?, ?)",
			expenseID, i, att.Filename, att.URL)
		if err != nil {
			r.logger.Error("Failed to insert attachment",
				zap.String("expense_id", expenseID),
				zap.Error(err))
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
	}
	return nil
}

func (r *ExpenseRepository) loadAttachments(ctx context.Context, expense *entity.Expense) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT filename, url FROM expense_attachments WHERE expense_id = ? ORDER BY position",
		expense.ID)
	if err != nil {
		return fmt.Errorf("failed to load attachments: %w", err)
	}
	defer rows.Close()

	expense.Attachments = []entity.Attachment{}
	for rows.Next() {
		var att entity.Attachment
		if err := rows.Scan(&att.Filename, &att.URL); err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		expense.Attachments = append(expense.Attachments, att)
	}
	return rows.Err()
}

func buildWhere(filter port.ExpenseFilter) (string, []any) {
	clauses := make([]string, 0, 7)
	args := make([]any, 0, 8)

	if filter.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id = ?")
		args = append(args, filter.WorkspaceID)
	}
	if filter.ProjectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		clauses = append(clauses, "category = ? COLLATE NOCASE")
		args = append(args, filter.Category)
	}
	if filter.DateFrom != "" {
		clauses = append(clauses, "date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		clauses = append(clauses, "date <= ?")
		args = append(args, filter.DateTo)
	}
	if filter.Search != "" {
		// LIKE is case-insensitive for ASCII in SQLite by default.
		clauses = append(clauses,
			"(vendor LIKE ? ESCAPE '\\' OR description LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(filter.Search) + "%"
		args = append(args, pattern, pattern)
	}

	return strings.Join(clauses, " AND "), args
}

// escapeLike neutralizes LIKE metacharacters in a user-supplied search
// term so "100%" matches the literal text and not every row.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpenseFields(row rowScanner, expense *entity.Expense) error {
	var status string
	err := row.Scan(
		&expense.ID,
		&expense.ProjectID,
		&expense.WorkspaceID,
		&expense.Date,
		&expense.Amount,
		&expense.Currency,
		&expense.Category,
		&expense.Description,
		&expense.Vendor,
		&expense.PaymentMethod,
		&expense.TaxAmount,
		&expense.TaskID,
		&status,
		&expense.CreatedBy,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	if err != nil {
		return err
	}
	expense.Status = entity.Status(status)
	return nil
}

func scanExpense(row *sql.Row) (*entity.Expense, error) {
	var expense entity.Expense
	if err := scanExpenseFields(row, &expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

func scanExpenses(rows *sql.Rows) ([]*entity.Expense, error) {
	var expenses []*entity.Expense
	for rows.Next() {
		var expense entity.Expense
		if err := scanExpenseFields(rows, &expense); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, &expense)
	}
	return expenses, rows.Err()
}

// Verify interface compliance
var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
