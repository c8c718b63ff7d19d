package port

import (
	"context"
	"time"
)

// Budget is the slice of project budget data the ledger consults: a
// project may pin its budget to a fixed currency.
type Budget struct {
	Currency string
}

// BudgetFinder looks up a project's budget. A nil budget means the
// project imposes no currency constraint.
type BudgetFinder interface {
	FindBudget(ctx context.Context, projectID string) (*Budget, error)
}

// Role is a project-level access role resolved by an external service.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// RoleResolver resolves a user's role on a project. The ledger service
// never calls this; the API layer uses it to post-filter listings.
type RoleResolver interface {
	ProjectRole(ctx context.Context, projectID, userID string) (Role, error)
}

// AuditEvent describes a successful mutation for the audit trail.
type AuditEvent struct {
	Action      string // "expense.created", "expense.status_changed", "expense.updated"
	ExpenseID   string
	WorkspaceID string
	ProjectID   string
	ActorID     string
	Detail      string
	OccurredAt  time.Time
}

// AuditLog receives mutation events. Calls are fire-and-forget: the
// service logs failures but never propagates them as operation failures.
type AuditLog interface {
	Record(ctx context.Context, event AuditEvent) error
}
