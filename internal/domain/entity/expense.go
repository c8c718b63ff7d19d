// Package entity defines the expense ledger's domain types: the Expense
// record, its status lifecycle, and normalization of untrusted input.
package entity

import "time"

// DefaultCategory is assigned when a record carries no category label.
const DefaultCategory = "Uncategorized"

// Attachment is a file reference carried by an expense. Order is
// preserved for display.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Expense is the canonical ledger record. Amounts are decimal strings in
// canonical two-fraction-digit form; arithmetic uses the money package.
type Expense struct {
	ID            string       `json:"id"`
	ProjectID     string       `json:"project_id"`
	WorkspaceID   string       `json:"workspace_id"`
	Date          string       `json:"date"` // YYYY-MM-DD
	Amount        string       `json:"amount"`
	Currency      string       `json:"currency"`
	Category      string       `json:"category"`
	Description   string       `json:"description,omitempty"`
	Vendor        string       `json:"vendor,omitempty"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	TaxAmount     string       `json:"tax_amount,omitempty"`
	TaskID        string       `json:"task_id,omitempty"`
	Status        Status       `json:"status"`
	CreatedBy     string       `json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Attachments   []Attachment `json:"attachments"`
}

// Clone returns a deep copy. Repositories hand out clones so callers can
// never mutate canonical state through a shared slice.
func (e *Expense) Clone() *Expense {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Attachments != nil {
		cp.Attachments = make([]Attachment, len(e.Attachments))
		copy(cp.Attachments, e.Attachments)
	}
	return &cp
}
