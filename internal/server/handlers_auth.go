package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	identitysvc "leadflow/api/internal/identity/service"
	"leadflow/api/internal/rbac"
	"leadflow/api/internal/security"
	sessionsvc "leadflow/api/internal/session/service"
	userdomain "leadflow/api/internal/user/domain"
)

const (
	refreshCookieName = "refresh_token"
	sessionCookieName = "session_id"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

type authResponse struct {
	User            userResponse `json:"user"`
	AccessToken     string       `json:"accessToken"`
	AccessExpiresAt time.Time    `json:"accessExpiresAt"`
	RefreshToken    string       `json:"refreshToken"`
	SessionID       string       `json:"sessionId"`
	Suspicious      []string     `json:"suspiciousLocations,omitempty"`
}

func toUserResponse(u *userdomain.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: string(u.Role), LastLoginAt: u.LastLoginAt}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rc := sessionsvc.RequestContext{IP: clientIP(r), UserAgent: r.UserAgent()}
	result, err := s.auth.Register(r.Context(), req.Email, req.Password, rbac.Role(req.Role), rc)
	if err != nil {
		switch {
		case errors.Is(err, identitysvc.ErrAlreadyExists):
			s.writeError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, identitysvc.ErrWeakPassword):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("register failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	s.setAuthCookies(w, result)
	s.writeJSON(w, http.StatusCreated, toAuthResponse(result))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rc := sessionsvc.RequestContext{IP: clientIP(r), UserAgent: r.UserAgent()}
	result, err := s.auth.Login(r.Context(), req.Email, req.Password, rc)
	if err != nil {
		if errors.Is(err, identitysvc.ErrInvalidCredentials) {
			s.writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.Error("login failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	s.setAuthCookies(w, result)
	s.writeJSON(w, http.StatusOK, toAuthResponse(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// handleRefresh reads the refresh token from the HttpOnly cookie, falling back
// to a JSON body for non-browser clients. Only a new access token is returned.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(refreshCookieName); err == nil {
		token = c.Value
	}
	if token == "" {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		s.writeError(w, http.StatusBadRequest, "missing refresh token")
		return
	}

	access, expiresAt, err := s.auth.RefreshToken(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrTokenExpired):
			s.writeError(w, http.StatusUnauthorized, "refresh token expired")
		case errors.Is(err, security.ErrTokenRevoked):
			s.writeError(w, http.StatusUnauthorized, "refresh token revoked")
		case errors.Is(err, security.ErrTokenInvalid):
			s.writeError(w, http.StatusUnauthorized, "invalid refresh token")
		default:
			s.logger.Error("refresh failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "refresh failed")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":     access,
		"accessExpiresAt": expiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), bearerToken(r), clientIP(r)); err != nil {
		s.writeError(w, http.StatusUnauthorized, "logout failed")
		return
	}
	s.clearAuthCookies(w)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	n, err := s.auth.LogoutAll(r.Context(), claims.Subject, clientIP(r))
	if err != nil {
		s.logger.Error("logout all failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	s.clearAuthCookies(w)
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessionsInvalidated": n})
}

// handleMe returns the caller's identity and effective permissions.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	role := rbac.Role(claims.Role)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":          claims.Subject,
		"email":       claims.Email,
		"role":        claims.Role,
		"sessionId":   claims.SessionID,
		"permissions": rbac.AllPermissions(role),
	})
}

func toAuthResponse(result *identitysvc.AuthResult) authResponse {
	resp := authResponse{
		User:            toUserResponse(result.User),
		AccessToken:     result.Tokens.AccessToken,
		AccessExpiresAt: result.Tokens.AccessExpiresAt,
		RefreshToken:    result.Tokens.RefreshToken,
		SessionID:       result.SessionID,
	}
	if result.Suspicious != nil {
		resp.Suspicious = result.Suspicious.Locations
	}
	return resp
}

func (s *Server) setAuthCookies(w http.ResponseWriter, result *identitysvc.AuthResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    result.Tokens.RefreshToken,
		Path:     "/api/auth",
		Expires:  result.Tokens.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    result.SessionID,
		Path:     "/",
		Expires:  result.Tokens.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: refreshCookieName, Value: "", Path: "/api/auth", MaxAge: -1,
		HttpOnly: true, Secure: s.secureCookies, SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: true, Secure: s.secureCookies, SameSite: http.SameSiteStrictMode,
	})
}
