package repository

import (
	"context"
	"time"

	"leadflow/api/internal/session/domain"
)

// Repository defines persistence for sessions. Every write that flips
// is_active guards on the current value so deactivation stays monotonic.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// Touch updates last_activity_at for an active session; inactive sessions
	// are left untouched (no error, no resurrection).
	Touch(ctx context.Context, id string, at time.Time) error
	// Deactivate flips one session inactive. Idempotent.
	Deactivate(ctx context.Context, id string) error
	// DeactivateAllForUser flips every active session for the user and returns the count affected.
	DeactivateAllForUser(ctx context.Context, userID string) (int64, error)
	// ListActive returns the user's active sessions ordered by last_activity_at descending.
	ListActive(ctx context.Context, userID string) ([]*domain.Session, error)
	// ListActiveCreatedSince returns active sessions created at or after the cutoff.
	ListActiveCreatedSince(ctx context.Context, userID string, since time.Time) ([]*domain.Session, error)
	// DeactivateIdleBefore flips every active session whose last activity precedes
	// the cutoff and returns the count affected.
	DeactivateIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
