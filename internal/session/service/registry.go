// Package service tracks authenticated sessions: creation, activity,
// invalidation, idle sweep, and the multiple-location heuristic.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"leadflow/api/internal/geo"
	"leadflow/api/internal/session/domain"
	"leadflow/api/internal/session/repository"
)

// suspiciousWindow bounds how far back DetectSuspicious looks at sessions.
const suspiciousWindow = time.Hour

// suspiciousLocationThreshold is the number of distinct known locations above
// which recent activity is flagged.
const suspiciousLocationThreshold = 2

// RequestContext carries the client attributes captured at session creation.
type RequestContext struct {
	IP        string
	UserAgent string
}

// SuspiciousReport is the outcome of the multiple-location heuristic.
// It is advisory: distinct locations within the window can be legitimate
// (travel, VPNs), and a single-location attacker is not flagged.
type SuspiciousReport struct {
	Suspicious bool
	Locations  []string
	Sessions   []*domain.Session
}

// Registry creates and tracks sessions.
type Registry struct {
	sessions repository.Repository
	geo      geo.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistry returns a Registry using the given stores and resolver.
func NewRegistry(sessions repository.Repository, resolver geo.Resolver, logger *zap.Logger) *Registry {
	if resolver == nil {
		resolver = geo.NoopResolver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{sessions: sessions, geo: resolver, logger: logger, now: time.Now}
}

// Create parses the request context into device/browser/os, resolves an
// approximate location from the IP, and persists a new active session.
func (r *Registry) Create(ctx context.Context, userID string, rc RequestContext) (*domain.Session, error) {
	ip := rc.IP
	if ip == "" {
		ip = unknownClient
	}
	rawUA := rc.UserAgent
	if rawUA == "" {
		rawUA = unknownClient
	}
	info := parseUserAgent(rc.UserAgent)
	now := r.now().UTC()
	s := &domain.Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		IPAddress:      ip,
		UserAgent:      rawUA,
		Device:         info.Device,
		Browser:        info.Browser,
		OS:             info.OS,
		Location:       r.geo.Resolve(rc.IP),
		IsActive:       true,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := r.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// Touch updates the session's last-activity timestamp. Touching an inactive
// session is a no-op, never an error, and never reactivates it.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := r.sessions.Touch(ctx, sessionID, r.now().UTC()); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Invalidate deactivates one session. Idempotent.
func (r *Registry) Invalidate(ctx context.Context, sessionID string) error {
	if err := r.sessions.Deactivate(ctx, sessionID); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// InvalidateAll deactivates every active session for the user and returns the count affected.
func (r *Registry) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	n, err := r.sessions.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate all sessions: %w", err)
	}
	return n, nil
}

// ListActive returns the user's active sessions, most recently active first.
func (r *Registry) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	list, err := r.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return list, nil
}

// SweepIdle deactivates every active session whose last activity precedes
// now minus timeout, returning the count affected. Triggered by the worker,
// not the request path.
func (r *Registry) SweepIdle(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := r.now().UTC().Add(-timeout)
	n, err := r.sessions.DeactivateIdleBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep idle sessions: %w", err)
	}
	return n, nil
}

// DetectSuspicious flags a user whose active sessions created within the last
// hour span more than two distinct known locations. It never returns an
// error: a lookup failure degrades to "not suspicious".
func (r *Registry) DetectSuspicious(ctx context.Context, userID string) SuspiciousReport {
	since := r.now().UTC().Add(-suspiciousWindow)
	sessions, err := r.sessions.ListActiveCreatedSince(ctx, userID, since)
	if err != nil {
		r.logger.Warn("suspicious-activity lookup failed", zap.String("user_id", userID), zap.Error(err))
		return SuspiciousReport{}
	}

	seen := make(map[string]struct{})
	var locations []string
	for _, s := range sessions {
		if s.Location == domain.UnknownLocation || s.Location == "" {
			continue
		}
		if _, ok := seen[s.Location]; ok {
			continue
		}
		seen[s.Location] = struct{}{}
		locations = append(locations, s.Location)
	}

	return SuspiciousReport{
		Suspicious: len(locations) > suspiciousLocationThreshold,
		Locations:  locations,
		Sessions:   sessions,
	}
}
