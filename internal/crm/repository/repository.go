package repository

import (
	"context"

	"leadflow/api/internal/crm/domain"
)

// Repository persists CRM integration tokens, one row per user.
type Repository interface {
	// Upsert inserts the token or replaces the user's existing row atomically.
	Upsert(ctx context.Context, t *domain.IntegrationToken) error
	// GetByUserID returns the user's token, or nil if the user never connected.
	GetByUserID(ctx context.Context, userID string) (*domain.IntegrationToken, error)
	// DeleteByUserID removes the user's token. Deleting a missing row is not an error.
	DeleteByUserID(ctx context.Context, userID string) error
}
