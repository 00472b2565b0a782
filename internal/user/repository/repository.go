package repository

import (
	"context"
	"time"

	"leadflow/api/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UpdateLastLogin stamps the user's last_login_at.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	// IncrementGeneration bumps token_generation by one and returns the new value.
	// The counter only ever increases.
	IncrementGeneration(ctx context.Context, id string) (int64, error)
}
