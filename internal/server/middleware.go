package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"leadflow/api/internal/rbac"
	"leadflow/api/internal/security"
)

type contextKey string

const claimsKey contextKey = "access_claims"

// ClaimsFrom returns the validated access claims set by the authenticate
// middleware, or nil outside an authenticated route.
func ClaimsFrom(ctx context.Context) *security.AccessClaims {
	c, _ := ctx.Value(claimsKey).(*security.AccessClaims)
	return c
}

// bearerToken extracts the token from the Authorization header, or "".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return h[len(prefix):]
}

// authenticate validates the bearer access token, stores its claims in the
// request context, and records session activity. Revoked and expired tokens
// get distinct messages so clients know whether to refresh or re-login.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.tokens.ValidateAccess(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrTokenExpired):
				s.writeError(w, http.StatusUnauthorized, "token expired")
			case errors.Is(err, security.ErrTokenRevoked):
				s.writeError(w, http.StatusUnauthorized, "token revoked")
			default:
				s.writeError(w, http.StatusUnauthorized, "invalid token")
			}
			return
		}

		// Best-effort activity stamp; a failed touch never blocks the request.
		if err := s.sessions.Touch(r.Context(), claims.SessionID); err != nil {
			s.logger.Debug("session touch failed")
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission gates a route on the caller's role carrying the
// permission, with inheritance. Must run after authenticate.
func (s *Server) requirePermission(perm rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				s.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !rbac.HasWithInheritance(rbac.Role(claims.Role), perm) {
				s.writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
