// Package service orchestrates authentication: registration, login, token
// refresh, and logout, tying users, sessions, tokens, and audit together.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"leadflow/api/internal/audit"
	"leadflow/api/internal/rbac"
	"leadflow/api/internal/security"
	sessionsvc "leadflow/api/internal/session/service"
	userdomain "leadflow/api/internal/user/domain"
	userrepo "leadflow/api/internal/user/repository"
)

var (
	// ErrInvalidCredentials is returned for both an unknown email and a wrong
	// password, so a caller cannot probe which emails exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAlreadyExists is returned when registering an email that is taken.
	ErrAlreadyExists = errors.New("email already registered")
	// ErrWeakPassword is returned when the password is shorter than the minimum.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)

const minPasswordLength = 8

// TokenPair is the access/refresh pair issued at login and registration.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is the outcome of a successful login or registration.
// Suspicious is advisory and only set when recent activity was flagged.
type AuthResult struct {
	User       *userdomain.User
	SessionID  string
	Tokens     TokenPair
	Suspicious *sessionsvc.SuspiciousReport
}

// AuthService orchestrates the authentication flows.
type AuthService struct {
	users    userrepo.Repository
	hasher   *security.Hasher
	tokens   *security.TokenAuthority
	sessions *sessionsvc.Registry
	audit    audit.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService returns an AuthService over the given collaborators.
// recorder and logger may be nil.
func NewAuthService(users userrepo.Repository, hasher *security.Hasher, tokens *security.TokenAuthority,
	sessions *sessionsvc.Registry, recorder audit.Recorder, logger *zap.Logger) *AuthService {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		sessions: sessions,
		audit:    recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates a user, starts a session, and issues tokens. An empty role
// defaults to AGENT. Returns ErrAlreadyExists when the email is taken.
func (s *AuthService) Register(ctx context.Context, email, password string, role rbac.Role, rc sessionsvc.RequestContext) (*AuthResult, error) {
	email = normalizeEmail(email)
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if role == "" {
		role = rbac.RoleAgent
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyExists
	}

	hash, salt, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		Role:         role,
		LastLoginAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	result, err := s.openSession(ctx, u, rc)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, u.ID, audit.ActionRegister, rc.IP, "")
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("role", string(role)))
	return result, nil
}

// Login authenticates the user, stamps lastLoginAt, starts a session, and
// issues tokens. Unknown email and wrong password both return
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string, rc sessionsvc.RequestContext) (*AuthResult, error) {
	email = normalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		s.audit.Record(ctx, "", audit.ActionLoginFailed, rc.IP, email)
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		if security.IsMismatch(err) {
			s.audit.Record(ctx, u.ID, audit.ActionLoginFailed, rc.IP, "")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("verify password: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	u.LastLoginAt = &now

	result, err := s.openSession(ctx, u, rc)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, u.ID, audit.ActionLogin, rc.IP, "")

	// Advisory only; a flagged login still succeeds.
	if report := s.sessions.DetectSuspicious(ctx, u.ID); report.Suspicious {
		result.Suspicious = &report
		s.audit.Record(ctx, u.ID, audit.ActionSuspiciousLogin, rc.IP, strings.Join(report.Locations, ","))
		s.logger.Warn("suspicious login activity",
			zap.String("user_id", u.ID), zap.Strings("locations", report.Locations))
	}
	return result, nil
}

// RefreshToken validates the refresh token and issues a new access token
// bound to the same session. The refresh token is not rotated. A token whose
// generation no longer matches the user's current generation is treated as
// revoked.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (accessToken string, expiresAt time.Time, err error) {
	claims, err := s.tokens.ValidateRefresh(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	u, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return "", time.Time{}, security.ErrTokenInvalid
	}
	if u.TokenGeneration != claims.Generation {
		return "", time.Time{}, security.ErrTokenRevoked
	}

	accessToken, expiresAt, err = s.tokens.IssueAccess(u.ID, u.Email, string(u.Role), claims.SessionID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue access token: %w", err)
	}
	if err := s.sessions.Touch(ctx, claims.SessionID); err != nil {
		s.logger.Warn("session touch on refresh failed",
			zap.String("session_id", claims.SessionID), zap.Error(err))
	}
	return accessToken, expiresAt, nil
}

// Logout revokes the access token and invalidates its session. The token must
// still validate; logging out with a bad token is an error, not a no-op.
func (s *AuthService) Logout(ctx context.Context, accessToken, ip string) error {
	claims, err := s.tokens.ValidateAccess(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, accessToken); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if err := s.sessions.Invalidate(ctx, claims.SessionID); err != nil {
		return err
	}
	s.audit.Record(ctx, claims.Subject, audit.ActionLogout, ip, "")
	return nil
}

// LogoutAll bumps the user's token generation, invalidating every outstanding
// refresh token, and deactivates all their sessions. Returns the number of
// sessions invalidated. Outstanding access tokens keep working until their
// own short expiry.
func (s *AuthService) LogoutAll(ctx context.Context, userID, ip string) (int64, error) {
	if _, err := s.users.IncrementGeneration(ctx, userID); err != nil {
		return 0, fmt.Errorf("bump token generation: %w", err)
	}
	n, err := s.sessions.InvalidateAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, userID, audit.ActionLogoutAll, ip, "")
	s.logger.Info("logout all", zap.String("user_id", userID), zap.Int64("sessions", n))
	return n, nil
}

// openSession creates the session and issues the token pair bound to it.
func (s *AuthService) openSession(ctx context.Context, u *userdomain.User, rc sessionsvc.RequestContext) (*AuthResult, error) {
	sess, err := s.sessions.Create(ctx, u.ID, rc)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.tokens.IssueAccess(u.ID, u.Email, string(u.Role), sess.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(u.ID, u.TokenGeneration, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &AuthResult{
		User:      u,
		SessionID: sess.ID,
		Tokens: TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExp,
			RefreshToken:     refresh,
			RefreshExpiresAt: refreshExp,
		},
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
