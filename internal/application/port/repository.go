// Package port defines the interfaces the expense service depends on.
// Implementations live under internal/infrastructure.
package port

import (
	"context"
	"time"

	"github.com/teamspace/expense-ledger/internal/domain/entity"
)

// ExpenseFilter narrows listing and aggregation queries. Zero values
// mean "no constraint". Date bounds are inclusive YYYY-MM-DD strings.
type ExpenseFilter struct {
	WorkspaceID string
	ProjectID   string
	Status      entity.Status
	Category    string
	DateFrom    string
	DateTo      string
	// Search matches case-insensitively against vendor and description.
	Search string
}

// ExpensePatch carries a partial update. Nil pointers are no-ops; a
// pointer to the empty string clears an optional field.
type ExpensePatch struct {
	Date          *string
	Amount        *string
	Currency      *string
	Category      *string
	Description   *string
	Vendor        *string
	PaymentMethod *string
	TaxAmount     *string
	TaskID        *string
	Attachments   []entity.Attachment // nil leaves attachments untouched
}

// CategoryTotal is one aggregation row. TotalCents is an exact integer
// minor-unit sum; ordering of rows is a presentation concern.
type CategoryTotal struct {
	Category   string `json:"category"`
	TotalCents int64  `json:"total_cents"`
}

// ExpenseRepository defines persistence operations for Expense.
// All reads and mutation results are value copies; implementations never
// leak references to canonical state. Absent ids yield nil, not an error.
type ExpenseRepository interface {
	// Create persists a fully-formed expense
	Create(ctx context.Context, expense *entity.Expense) error

	// FindByID retrieves an expense by id, nil when absent
	FindByID(ctx context.Context, id string) (*entity.Expense, error)

	// List returns expenses matching the filter in insertion order
	List(ctx context.Context, filter ExpenseFilter) ([]*entity.Expense, error)

	// Update merges the patch into the stored expense and returns the
	// post-mutation copy, nil when the id is absent
	Update(ctx context.Context, id string, patch ExpensePatch) (*entity.Expense, error)

	// UpdateStatus sets status and refreshes updatedAt, returning the
	// post-mutation copy, nil when the id is absent
	UpdateStatus(ctx context.Context, id string, status entity.Status) (*entity.Expense, error)
}

// IdempotencyStore maps caller-supplied idempotency keys to expense ids,
// scoped per workspace. Bindings are permanent: a financial creation
// request must never silently re-execute, however late the retry.
type IdempotencyStore interface {
	// Get returns the expense id bound to (workspaceID, key)
	Get(ctx context.Context, workspaceID, key string) (string, bool, error)

	// Set binds (workspaceID, key) to an expense id
	Set(ctx context.Context, workspaceID, key, expenseID string) error
}

// AggregateCache memoizes aggregation results for a short TTL. Entries
// expire lazily; the cache is an optimization only and correctness must
// not depend on it.
type AggregateCache interface {
	Get(key string) ([]CategoryTotal, bool)
	Set(key string, rows []CategoryTotal, ttl time.Duration)
}
