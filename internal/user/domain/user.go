package domain

import (
	"errors"
	"time"

	"leadflow/api/internal/rbac"
)

// User is the core user entity. TokenGeneration is a monotonic counter:
// incrementing it invalidates every refresh token issued under earlier values.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	PasswordSalt    string
	Role            rbac.Role
	TokenGeneration int64
	LastLoginAt     *time.Time // nil until first login
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if !rbac.Valid(u.Role) {
		return errors.New("unknown role")
	}
	return nil
}
