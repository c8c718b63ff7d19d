// Package memory provides the reference in-memory implementations of
// the persistence ports. Tests and single-process deployments use these;
// the sqlite package provides the durable alternative.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/teamspace/expense-ledger/internal/application/port"
	"github.com/teamspace/expense-ledger/internal/domain/entity"
)

// ExpenseRepository keeps canonical expenses in insertion order behind a
// RWMutex. Every value crossing the boundary is cloned, in and out.
type ExpenseRepository struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]*entity.Expense
}

// NewExpenseRepository creates an empty in-memory expense repository
func NewExpenseRepository() *ExpenseRepository {
	return &ExpenseRepository{
		byID: make(map[string]*entity.Expense),
	}
}

// Create persists a fully-formed expense
func (r *ExpenseRepository) Create(_ context.Context, expense *entity.Expense) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[expense.ID] = expense.Clone()
	r.order = append(r.order, expense.ID)
	return nil
}

// FindByID returns a copy of the expense, nil when absent
func (r *ExpenseRepository) FindByID(_ context.Context, id string) (*entity.Expense, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byID[id].Clone(), nil
}

// List returns copies of matching expenses in insertion order
func (r *ExpenseRepository) List(_ context.Context, filter port.ExpenseFilter) ([]*entity.Expense, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entity.Expense, 0, len(r.order))
	for _, id := range r.order {
		expense := r.byID[id]
		if matches(expense, filter) {
			result = append(result, expense.Clone())
		}
	}
	return result, nil
}

// Update merges the patch into the stored expense. Nil pointers are
// no-ops; a pointer to the empty string clears the optional field.
func (r *ExpenseRepository) Update(_ context.Context, id string, patch port.ExpensePatch) (*entity.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return nil, nil
	}

	// Mutate a copy and publish it whole, so concurrent readers never
	// observe a half-applied patch.
	next := current.Clone()
	applyPatch(next, patch)
	next.UpdatedAt = time.Now().UTC()
	r.byID[id] = next

	return next.Clone(), nil
}

// UpdateStatus sets the status and refreshes updatedAt only
func (r *ExpenseRepository) UpdateStatus(_ context.Context, id string, status entity.Status) (*entity.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return nil, nil
	}

	next := current.Clone()
	next.Status = status
	next.UpdatedAt = time.Now().UTC()
	r.byID[id] = next

	return next.Clone(), nil
}

func applyPatch(e *entity.Expense, patch port.ExpensePatch) {
	if patch.Date != nil {
		e.Date = *patch.Date
	}
	if patch.Amount != nil {
		e.Amount = *patch.Amount
	}
	if patch.Currency != nil {
		e.Currency = *patch.Currency
	}
	if patch.Category != nil {
		e.Category = *patch.Category
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Vendor != nil {
		e.Vendor = *patch.Vendor
	}
	if patch.PaymentMethod != nil {
		e.PaymentMethod = *patch.PaymentMethod
	}
	if patch.TaxAmount != nil {
		e.TaxAmount = *patch.TaxAmount
	}
	if patch.TaskID != nil {
		e.TaskID = *patch.TaskID
	}
	if patch.Attachments != nil {
		e.Attachments = append([]entity.Attachment{}, patch.Attachments...)
	}
}

func matches(e *entity.Expense, filter port.ExpenseFilter) bool {
	if filter.WorkspaceID != "" && e.WorkspaceID != filter.WorkspaceID {
		return false
	}
	if filter.ProjectID != "" && e.ProjectID != filter.ProjectID {
		return false
	}
	if filter.Status != "" && e.Status != filter.Status {
		return false
	}
	if filter.Category != "" && !strings.EqualFold(e.Category, filter.Category) {
		return false
	}
	// Dates are normalized YYYY-MM-DD strings, so lexicographic compare
	// is chronological compare.
	if filter.DateFrom != "" && e.Date < filter.DateFrom {
		return false
	}
	if filter.DateTo != "" && e.Date > filter.DateTo {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		haystack := strings.ToLower(e.Vendor + " " + e.Description)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

// Verify interface compliance
var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
