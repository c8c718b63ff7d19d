package entity

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teamspace/expense-ledger/internal/domain/money"
)

// DefaultCurrency is the fallback for absent or malformed currency codes.
const DefaultCurrency = "RUB"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidCurrency reports whether code is a 3-letter uppercase currency code.
func ValidCurrency(code string) bool {
	return currencyPattern.MatchString(code)
}

// dateLayouts are tried in order when coercing date-like strings.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02.01.2006",
}

// ParseDate normalizes a date-like string to YYYY-MM-DD. ok is false
// when no known layout matches.
func ParseDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// Normalize adapts a loosely-shaped record (legacy rows, untyped JSON)
// into an Expense. It never fails: malformed fields degrade to defaults
// so stored data can always be displayed. Strict validation belongs to
// the creation path, not here.
func Normalize(raw map[string]any) *Expense {
	now := time.Now().UTC()

	e := &Expense{
		ID:            stringField(raw, "id"),
		ProjectID:     stringField(raw, "projectId", "project_id"),
		WorkspaceID:   stringField(raw, "workspaceId", "workspace_id"),
		Description:   stringField(raw, "description"),
		Vendor:        stringField(raw, "vendor"),
		PaymentMethod: stringField(raw, "paymentMethod", "payment_method"),
		TaskID:        stringField(raw, "taskId", "task_id"),
		CreatedBy:     stringField(raw, "createdBy", "created_by"),
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ProjectID == "" {
		e.ProjectID = uuid.NewString()
	}
	if e.WorkspaceID == "" {
		e.WorkspaceID = uuid.NewString()
	}

	if d, ok := ParseDate(stringField(raw, "date")); ok {
		e.Date = d
	} else {
		e.Date = now.Format("2006-01-02")
	}
	e.CreatedAt = timeField(raw, now, "createdAt", "created_at")
	e.UpdatedAt = timeField(raw, now, "updatedAt", "updated_at")

	e.Amount = stringField(raw, "amount")
	if canonical, err := money.Canonicalize(e.Amount); err == nil {
		e.Amount = canonical
	}
	if tax := stringField(raw, "taxAmount", "tax_amount"); tax != "" {
		e.TaxAmount = tax
		if canonical, err := money.Canonicalize(tax); err == nil {
			e.TaxAmount = canonical
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(stringField(raw, "currency")))
	if ValidCurrency(currency) {
		e.Currency = currency
	} else {
		e.Currency = DefaultCurrency
	}

	if category := strings.TrimSpace(stringField(raw, "category")); category != "" {
		e.Category = category
	} else {
		e.Category = DefaultCategory
	}

	if status, ok := ParseStatus(stringField(raw, "status")); ok {
		e.Status = status
	} else {
		e.Status = StatusDraft
	}

	e.Attachments = normalizeAttachments(raw["attachments"])
	return e
}

func normalizeAttachments(raw any) []Attachment {
	items, ok := raw.([]any)
	if !ok {
		return []Attachment{}
	}
	out := make([]Attachment, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		url := strings.TrimSpace(asString(entry["url"]))
		if url == "" {
			continue
		}
		filename := strings.TrimSpace(asString(entry["filename"]))
		if filename == "" {
			filename = "attachment"
		}
		out = append(out, Attachment{Filename: filename, URL: url})
	}
	return out
}

// stringField returns the first present key rendered as a string.
func stringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return asString(v)
		}
	}
	return ""
}

func timeField(raw map[string]any, fallback time.Time, keys ...string) time.Time {
	s := strings.TrimSpace(stringField(raw, keys...))
	if s == "" {
		return fallback
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64:
		// JSON numbers decode as float64; render without exponent.
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", s), "0"), ".")
	case int, int64:
		return fmt.Sprintf("%d", s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
