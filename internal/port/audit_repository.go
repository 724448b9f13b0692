package port

import (
	"context"

	"github.com/rl1809/cart-sync/internal/core/domain"
)

type AuditRepository interface {
	// SaveVerdict appends a validation verdict to the audit log
	SaveVerdict(ctx context.Context, record domain.AuditRecord) error

	// RecentVerdicts lists the newest verdicts for a session, newest first
	RecentVerdicts(ctx context.Context, sessionID string, limit int) ([]domain.AuditRecord, error)
}
