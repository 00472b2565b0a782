// Package audit records security events: logins, logouts, CRM connection
// changes, and suspicious activity. Recording is best-effort and asynchronous;
// a failed write never affects the request that triggered it.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"leadflow/api/internal/audit/domain"
	auditrepo "leadflow/api/internal/audit/repository"
)

// Recorded actions.
const (
	ActionLogin           = "login"
	ActionLoginFailed     = "login_failed"
	ActionRegister        = "register"
	ActionLogout          = "logout"
	ActionLogoutAll       = "logout_all"
	ActionCRMConnect      = "crm_connect"
	ActionCRMDisconnect   = "crm_disconnect"
	ActionSuspiciousLogin = "suspicious_login"
)

// recordTimeout is the max time allowed for a single async write. Used by
// Record and by ShutdownDrainDuration.
const recordTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops
// before exiting, so in-flight async audit writes have time to complete.
// Must be >= recordTimeout.
const ShutdownDrainDuration = recordTimeout

// Recorder writes a single audit event. Record is best-effort: failures are
// logged and do not affect the caller.
type Recorder interface {
	Record(ctx context.Context, userID, action, ip, metadata string)
}

// AsyncRecorder implements Recorder by writing to the audit repository from a
// goroutine, so request handlers are never blocked on the audit table.
type AsyncRecorder struct {
	repo   auditrepo.Repository
	logger *zap.Logger
}

// NewAsyncRecorder returns a Recorder that persists to repo. logger may be nil.
func NewAsyncRecorder(repo auditrepo.Repository, logger *zap.Logger) *AsyncRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncRecorder{repo: repo, logger: logger}
}

// Record writes one audit entry in a goroutine with its own timeout, so
// request cancellation does not abort an in-flight write.
func (r *AsyncRecorder) Record(ctx context.Context, userID, action, ip, metadata string) {
	if r.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.repo.Create(writeCtx, entry); err != nil {
			r.logger.Warn("audit write failed",
				zap.String("action", action), zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

// NopRecorder discards every event. Useful in tests and tooling.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, userID, action, ip, metadata string) {}
