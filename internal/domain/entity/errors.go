package entity

import "errors"

// Validation and consistency failures surfaced by the ledger. All are
// detected before any write; callers classify with errors.Is and map
// them to user-facing responses.
var (
	// ErrInvalidCurrency is returned when a currency code does not match ^[A-Z]{3}$
	ErrInvalidCurrency = errors.New("invalid currency code")

	// ErrInvalidDate is returned when an expense date cannot be parsed
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidStatus is returned when a supplied status is not a known lifecycle state
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTax is returned when a tax amount is not a well-formed non-negative decimal
	ErrInvalidTax = errors.New("invalid tax amount")

	// ErrAmountNotPositive is returned when a creation amount is zero or negative
	ErrAmountNotPositive = errors.New("amount must be positive")

	// ErrBudgetCurrencyMismatch is returned when the expense currency
	// differs from the owning project's budget currency
	ErrBudgetCurrencyMismatch = errors.New("expense currency does not match project budget currency")

	// ErrInvalidStatusTransition is returned on an illegal state-machine move
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrExpenseNotFound is returned when the referenced expense id does not exist
	ErrExpenseNotFound = errors.New("expense not found")

	// ErrInternal wraps unexpected storage or infrastructure failures
	ErrInternal = errors.New("internal error")
)
