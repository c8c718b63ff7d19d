// Package audit provides a default audit sink that writes mutation
// events to the structured log. Deployments with a real audit pipeline
// substitute their own port.AuditLog.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/teamspace/expense-ledger/internal/application/port"
)

// LogSink records audit events as structured log entries
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates an audit sink backed by the given logger
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record writes one audit event
func (s *LogSink) Record(_ context.Context, event port.AuditEvent) error {
	s.logger.Info("audit",
		zap.String("action", event.Action),
		zap.String("expense_id", event.ExpenseID),
		zap.String("workspace_id", event.WorkspaceID),
		zap.String("project_id", event.ProjectID),
		zap.String("actor_id", event.ActorID),
		zap.String("detail", event.Detail),
		zap.Time("occurred_at", event.OccurredAt))
	return nil
}

// Verify interface compliance
var _ port.AuditLog = (*LogSink)(nil)
