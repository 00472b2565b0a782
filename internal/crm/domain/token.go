// Package domain defines the stored CRM integration token.
package domain

import "time"

// IntegrationToken is the partner token pair stored for one user. A user has
// at most one row; connecting again replaces it.
type IntegrationToken struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       string
	UpdatedAt    time.Time
}

// ExpiresWithin reports whether the access token expires within d of now.
func (t *IntegrationToken) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !t.ExpiresAt.After(now.Add(d))
}
