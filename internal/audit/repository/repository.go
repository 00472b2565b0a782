package repository

import (
	"context"

	"leadflow/api/internal/audit/domain"
)

// Repository persists audit log entries.
type Repository interface {
	// Create persists the entry. The entry must have ID set.
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByUser returns the user's entries, newest first, paginated by limit and offset.
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error)
}
