// Package service orchestrates the expense ledger: validation,
// idempotent creation, status transitions, and filtered listings over
// the repository ports.
package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamspace/expense-ledger/internal/application/port"
	"github.com/teamspace/expense-ledger/internal/domain/entity"
	"github.com/teamspace/expense-ledger/internal/domain/money"
)

// CreateInput is the raw creation request built by the caller.
type CreateInput struct {
	ProjectID     string              `json:"project_id"`
	WorkspaceID   string              `json:"workspace_id"`
	Date          string              `json:"date"`
	Amount        string              `json:"amount"`
	Currency      string              `json:"currency"`
	Category      string              `json:"category"`
	Description   string              `json:"description"`
	Vendor        string              `json:"vendor"`
	PaymentMethod string              `json:"payment_method"`
	TaxAmount     string              `json:"tax_amount"`
	TaskID        string              `json:"task_id"`
	Status        string              `json:"status"`
	Attachments   []entity.Attachment `json:"attachments"`
}

// Options tunes service behavior. Zero values fall back to defaults.
type Options struct {
	DefaultCurrency string
	CacheTTL        time.Duration
	MaxPageSize     int
}

const (
	defaultCacheTTL    = 30 * time.Second
	defaultMaxPageSize = 100
)

// ExpenseService exposes the ledger operations. A single mutex guards
// the check-then-act sections (idempotent create, status transition) so
// concurrent callers linearize; reads go straight to the repository.
type ExpenseService struct {
	repo    port.ExpenseRepository
	idem    port.IdempotencyStore
	cache   port.AggregateCache
	budgets port.BudgetFinder
	audit   port.AuditLog
	logger  *zap.Logger

	defaultCurrency string
	cacheTTL        time.Duration
	maxPageSize     int

	mu sync.Mutex
}

// NewExpenseService creates a new ExpenseService. budgets and audit may
// be nil when the caller has no budget constraints or audit sink.
func NewExpenseService(
	repo port.ExpenseRepository,
	idem port.IdempotencyStore,
	cache port.AggregateCache,
	budgets port.BudgetFinder,
	audit port.AuditLog,
	logger *zap.Logger,
	opts Options,
) *ExpenseService {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = entity.DefaultCurrency
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = defaultMaxPageSize
	}
	return &ExpenseService{
		repo:            repo,
		idem:            idem,
		cache:           cache,
		budgets:         budgets,
		audit:           audit,
		logger:          logger,
		defaultCurrency: opts.DefaultCurrency,
		cacheTTL:        opts.CacheTTL,
		maxPageSize:     opts.MaxPageSize,
	}
}

// Create validates input and persists a new expense. When idemKey is
// non-empty and already bound for the workspace, the original expense is
// returned unchanged and nothing is written.
func (s *ExpenseService) Create(ctx context.Context, input CreateInput, actorID, idemKey string) (*entity.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idemKey != "" {
		id, bound, err := s.idem.Get(ctx, input.WorkspaceID, idemKey)
		if err != nil {
			return nil, fmt.Errorf("%w: idempotency lookup: %v", entity.ErrInternal, err)
		}
		if bound {
			existing, err := s.repo.FindByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("%w: load expense for idempotency key: %v", entity.ErrInternal, err)
			}
			if existing == nil {
				return nil, fmt.Errorf("%w: idempotency key bound to missing expense %s", entity.ErrInternal, id)
			}
			s.logger.Info("Idempotency key already bound, returning existing expense",
				zap.String("workspace_id", input.WorkspaceID),
				zap.String("expense_id", existing.ID))
			return existing, nil
		}
	}

	cents, err := money.ParseAmount(input.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", input.Amount, money.ErrInvalidAmount)
	}
	if cents <= 0 {
		return nil, fmt.Errorf("amount %q: %w", input.Amount, entity.ErrAmountNotPositive)
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !entity.ValidCurrency(currency) {
		return nil, fmt.Errorf("currency %q: %w", input.Currency, entity.ErrInvalidCurrency)
	}

	date, ok := entity.ParseDate(input.Date)
	if !ok {
		return nil, fmt.Errorf("date %q: %w", input.Date, entity.ErrInvalidDate)
	}

	status := entity.StatusDraft
	if strings.TrimSpace(input.Status) != "" {
		status, ok = entity.ParseStatus(input.Status)
		if !ok {
			return nil, fmt.Errorf("status %q: %w", input.Status, entity.ErrInvalidStatus)
		}
	}

	tax := ""
	if strings.TrimSpace(input.TaxAmount) != "" {
		taxCents, err := money.ParseAmount(input.TaxAmount)
		if err != nil {
			return nil, fmt.Errorf("tax amount %q: %w", input.TaxAmount, entity.ErrInvalidTax)
		}
		tax = money.FormatAmount(taxCents)
	}

	if s.budgets != nil {
		budget, err := s.budgets.FindBudget(ctx, input.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("%w: budget lookup for project %s: %v", entity.ErrInternal, input.ProjectID, err)
		}
		if budget != nil && budget.Currency != "" && budget.Currency != currency {
			return nil, fmt.Errorf("expense currency %s, budget currency %s: %w",
				currency, budget.Currency, entity.ErrBudgetCurrencyMismatch)
		}
	}

	category := strings.TrimSpace(input.Category)
	if category == "" {
		category = entity.DefaultCategory
	}

	now := time.Now().UTC()
	expense := &entity.Expense{
		ID:            uuid.NewString(),
		ProjectID:     input.ProjectID,
		WorkspaceID:   input.WorkspaceID,
		Date:          date,
		Amount:        money.FormatAmount(cents),
		Currency:      currency,
		Category:      category,
		Description:   input.Description,
		Vendor:        input.Vendor,
		PaymentMethod: input.PaymentMethod,
		TaxAmount:     tax,
		TaskID:        input.TaskID,
		Status:        status,
		CreatedBy:     actorID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Attachments:   append([]entity.Attachment{}, input.Attachments...),
	}

	if err := s.repo.Create(ctx, expense); err != nil {
		return nil, fmt.Errorf("%w: create expense: %v", entity.ErrInternal, err)
	}

	if idemKey != "" {
		if err := s.idem.Set(ctx, input.WorkspaceID, idemKey, expense.ID); err != nil {
			// The expense exists but the key binding failed; surface as
			// internal so the caller does not retry blindly.
			return nil, fmt.Errorf("%w: bind idempotency key: %v", entity.ErrInternal, err)
		}
	}

	s.notifyAudit(ctx, port.AuditEvent{
		Action:      "expense.created",
		ExpenseID:   expense.ID,
		WorkspaceID: expense.WorkspaceID,
		ProjectID:   expense.ProjectID,
		ActorID:     actorID,
		Detail:      fmt.Sprintf("amount=%s %s category=%s", expense.Amount, expense.Currency, expense.Category),
		OccurredAt:  now,
	})

	return expense.Clone(), nil
}

// Transition moves an expense to the immediate successor status. It
// fails with ErrExpenseNotFound for unknown ids and
// ErrInvalidStatusTransition for any skip, backward move, or move out of
// the terminal state.
func (s *ExpenseService) Transition(ctx context.Context, id string, next entity.Status) (*entity.Expense, error) {
	if !next.IsValid() {
		return nil, fmt.Errorf("status %q: %w", next, entity.ErrInvalidStatus)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load expense %s: %v", entity.ErrInternal, id, err)
	}
	if current == nil {
		return nil, fmt.Errorf("expense %s: %w", id, entity.ErrExpenseNotFound)
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%s -> %s: %w", current.Status, next, entity.ErrInvalidStatusTransition)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, next)
	if err != nil {
		return nil, fmt.Errorf("%w: update status of %s: %v", entity.ErrInternal, id, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("expense %s: %w", id, entity.ErrExpenseNotFound)
	}

	s.notifyAudit(ctx, port.AuditEvent{
		Action:      "expense.status_changed",
		ExpenseID:   updated.ID,
		WorkspaceID: updated.WorkspaceID,
		ProjectID:   updated.ProjectID,
		Detail:      fmt.Sprintf("%s -> %s", current.Status, next),
		OccurredAt:  time.Now().UTC(),
	})

	return updated, nil
}

// FindByID returns a value copy of the expense or ErrExpenseNotFound.
func (s *ExpenseService) FindByID(ctx context.Context, id string) (*entity.Expense, error) {
	expense, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load expense %s: %v", entity.ErrInternal, id, err)
	}
	if expense == nil {
		return nil, fmt.Errorf("expense %s: %w", id, entity.ErrExpenseNotFound)
	}
	return expense, nil
}

// Update merges a partial patch into an expense. Patched amount,
// currency, date, and tax values pass the same validation as creation.
func (s *ExpenseService) Update(ctx context.Context, id string, patch port.ExpensePatch) (*entity.Expense, error) {
	if patch.Amount != nil {
		cents, err := money.ParseAmount(*patch.Amount)
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", *patch.Amount, money.ErrInvalidAmount)
		}
		if cents <= 0 {
			return nil, fmt.Errorf("amount %q: %w", *patch.Amount, entity.ErrAmountNotPositive)
		}
		canonical := money.FormatAmount(cents)
		patch.Amount = &canonical
	}
	if patch.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*patch.Currency))
		if !entity.ValidCurrency(currency) {
			return nil, fmt.Errorf("currency %q: %w", *patch.Currency, entity.ErrInvalidCurrency)
		}
		patch.Currency = &currency
	}
	if patch.Date != nil {
		date, ok := entity.ParseDate(*patch.Date)
		if !ok {
			return nil, fmt.Errorf("date %q: %w", *patch.Date, entity.ErrInvalidDate)
		}
		patch.Date = &date
	}
	if patch.TaxAmount != nil && *patch.TaxAmount != "" {
		taxCents, err := money.ParseAmount(*patch.TaxAmount)
		if err != nil {
			return nil, fmt.Errorf("tax amount %q: %w", *patch.TaxAmount, entity.ErrInvalidTax)
		}
		canonical := money.FormatAmount(taxCents)
		patch.TaxAmount = &canonical
	}
	if patch.Category != nil && strings.TrimSpace(*patch.Category) == "" {
		category := entity.DefaultCategory
		patch.Category = &category
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: update expense %s: %v", entity.ErrInternal, id, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("expense %s: %w", id, entity.ErrExpenseNotFound)
	}

	s.notifyAudit(ctx, port.AuditEvent{
		Action:      "expense.updated",
		ExpenseID:   updated.ID,
		WorkspaceID: updated.WorkspaceID,
		ProjectID:   updated.ProjectID,
		OccurredAt:  time.Now().UTC(),
	})

	return updated, nil
}

// List returns the filtered expenses in insertion order, sliced by page.
// pageSize is clamped to [1, MaxPageSize]; page below 1 is clamped to 1.
// The second return value is the total match count before paging.
func (s *ExpenseService) List(ctx context.Context, filter port.ExpenseFilter, page, pageSize int) ([]*entity.Expense, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}

	matches, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list expenses: %v", entity.ErrInternal, err)
	}

	total := len(matches)
	start := (page - 1) * pageSize
	if start >= total {
		return []*entity.Expense{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

// AggregateByCategory sums amounts per lowercased category in integer
// cents, optionally restricted to a status allow-list. Results may be
// served from the short-TTL cache for an identical filter signature; row
// order is unspecified.
func (s *ExpenseService) AggregateByCategory(ctx context.Context, filter port.ExpenseFilter, statuses []entity.Status) ([]port.CategoryTotal, error) {
	key := aggregateKey(filter, statuses)
	if s.cache != nil {
		if rows, ok := s.cache.Get(key); ok {
			return rows, nil
		}
	}

	matches, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate expenses: %v", entity.ErrInternal, err)
	}

	var allowed map[entity.Status]bool
	if len(statuses) > 0 {
		allowed = make(map[entity.Status]bool, len(statuses))
		for _, st := range statuses {
			allowed[st] = true
		}
	}

	totals := make(map[string]int64)
	for _, expense := range matches {
		if allowed != nil && !allowed[expense.Status] {
			continue
		}
		cents, err := money.ParseAmount(expense.Amount)
		if err != nil {
			// Legacy rows may carry unparseable amounts; they are
			// displayed but never aggregated.
			s.logger.Warn("Skipping expense with unparseable amount",
				zap.String("expense_id", expense.ID),
				zap.String("amount", expense.Amount))
			continue
		}
		totals[strings.ToLower(expense.Category)] += cents
	}

	rows := make([]port.CategoryTotal, 0, len(totals))
	for category, cents := range totals {
		rows = append(rows, port.CategoryTotal{Category: category, TotalCents: cents})
	}

	if s.cache != nil {
		s.cache.Set(key, rows, s.cacheTTL)
	}
	return rows, nil
}

// aggregateKey builds a deterministic cache key for a filter signature.
// Fields are quoted so separator bytes inside free-text filters cannot
// make two different signatures collide.
func aggregateKey(filter port.ExpenseFilter, statuses []entity.Status) string {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	sort.Strings(names)

	fields := []string{
		"agg",
		filter.WorkspaceID,
		filter.ProjectID,
		string(filter.Status),
		strings.ToLower(filter.Category),
		filter.DateFrom,
		filter.DateTo,
		strings.ToLower(filter.Search),
		strings.Join(names, ","),
	}
	for i, f := range fields {
		fields[i] = strconv.Quote(f)
	}
	return strings.Join(fields, "|")
}

func (s *ExpenseService) notifyAudit(ctx context.Context, event port.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("Audit log notification failed",
			zap.String("action", event.Action),
			zap.String("expense_id", event.ExpenseID),
			zap.Error(err))
	}
}
