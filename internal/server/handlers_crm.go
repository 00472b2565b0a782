package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"leadflow/api/internal/audit"
	crmsvc "leadflow/api/internal/crm/service"
)

// handleHubSpotAuthorize returns the partner authorization URL the client
// should redirect the browser to.
func (s *Server) handleHubSpotAuthorize(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	url, err := s.broker.BuildAuthorizationURL(claims.Subject)
	if err != nil {
		s.logger.Error("build authorization url failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not start authorization")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleHubSpotCallback completes the OAuth flow. The browser arrives here
// from the partner redirect; the signed state identifies the user.
func (s *Server) handleHubSpotCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		// The partner declined (user cancelled, bad scope, ...).
		s.logger.Warn("hubspot authorization denied",
			zap.String("error", errCode), zap.String("description", q.Get("error_description")))
		s.writeError(w, http.StatusBadRequest, "authorization denied: "+errCode)
		return
	}
	state := q.Get("state")
	code := q.Get("code")
	if code == "" {
		s.writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}
	userID, err := s.broker.HandleCallback(r.Context(), state, code)
	if err != nil {
		switch {
		case errors.Is(err, crmsvc.ErrInvalidState):
			s.writeError(w, http.StatusBadRequest, "invalid or expired state")
		case errors.Is(err, crmsvc.ErrNetworkTimeout):
			s.writeError(w, http.StatusGatewayTimeout, "partner request timed out")
		case errors.Is(err, crmsvc.ErrExchangeFailed):
			s.writeError(w, http.StatusBadGateway, "code exchange failed")
		default:
			s.logger.Error("hubspot callback failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "connection failed")
		}
		return
	}
	s.recorder.Record(r.Context(), userID, audit.ActionCRMConnect, clientIP(r), "")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

func (s *Server) handleHubSpotStatus(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]bool{
		"connected": s.broker.IsConnected(r.Context(), claims.Subject),
	})
}

func (s *Server) handleHubSpotDisconnect(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	if err := s.broker.Disconnect(r.Context(), claims.Subject); err != nil {
		s.logger.Error("hubspot disconnect failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "disconnect failed")
		return
	}
	s.recorder.Record(r.Context(), claims.Subject, audit.ActionCRMDisconnect, clientIP(r), "")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}
