package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	sessiondomain "leadflow/api/internal/session/domain"
)

type sessionResponse struct {
	ID             string    `json:"id"`
	Device         string    `json:"device"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	IPAddress      string    `json:"ipAddress"`
	Location       string    `json:"location"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Current        bool      `json:"current"`
}

// handleListSessions returns the caller's active sessions, most recently
// active first, marking the one the request came from.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	list, err := s.sessions.ListActive(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not load sessions")
		return
	}
	out := make([]sessionResponse, len(list))
	for i, sess := range list {
		out[i] = toSessionResponse(sess, claims.SessionID)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func toSessionResponse(sess *sessiondomain.Session, currentID string) sessionResponse {
	return sessionResponse{
		ID:             sess.ID,
		Device:         sess.Device,
		Browser:        sess.Browser,
		OS:             sess.OS,
		IPAddress:      sess.IPAddress,
		Location:       sess.Location,
		CreatedAt:      sess.CreatedAt,
		LastActivityAt: sess.LastActivityAt,
		Current:        sess.ID == currentID,
	}
}
