package security

import (
	"context"
	"log/slog"

	"alfred/internal/domain"
)

// AuditStore is the persistence interface for audit entries.
type AuditStore interface {
	LogAudit(ctx context.Context, entry domain.AuditEntry) error
}

// Auditor records security-relevant orchestrator events: tool executions,
// confirmations, cancellations. A nil store disables persistence; events
// are still logged.
type Auditor struct {
	store  AuditStore
	logger *slog.Logger
}

func NewAuditor(store AuditStore, logger *slog.Logger) *Auditor {
	return &Auditor{store: store, logger: logger}
}

// Record writes one audit entry. Persistence failures are logged, never
// propagated: auditing must not break the conversation flow.
func (a *Auditor) Record(ctx context.Context, entry domain.AuditEntry) {
	a.logger.Info("audit",
		"action", entry.Action,
		"tool", entry.ToolName,
		"result", entry.Result,
	)
	if a.store == nil {
		return
	}
	if err := a.store.LogAudit(ctx, entry); err != nil {
		a.logger.Warn("failed to persist audit entry", "action", entry.Action, "err", err)
	}
}
