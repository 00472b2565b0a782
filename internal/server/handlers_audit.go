package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type auditEntryResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// handleListAudit returns audit entries for a user, newest first. Gated on the
// audit_logs permission. Defaults to the caller's own entries.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = claims.Subject
	}
	limit := queryInt32(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	offset := queryInt32(r, "offset", 0)

	list, err := s.audit.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		s.logger.Error("list audit failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not load audit log")
		return
	}
	out := make([]auditEntryResponse, len(list))
	for i, a := range list {
		out[i] = auditEntryResponse{
			ID: a.ID, UserID: a.UserID, Action: a.Action,
			IP: a.IP, Metadata: a.Metadata, CreatedAt: a.CreatedAt,
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
