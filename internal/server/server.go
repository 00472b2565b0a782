// Package server is the HTTP transport: routing, authentication middleware,
// and JSON handlers over the identity, session, and CRM services.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"leadflow/api/internal/audit"
	auditrepo "leadflow/api/internal/audit/repository"
	crmsvc "leadflow/api/internal/crm/service"
	identitysvc "leadflow/api/internal/identity/service"
	"leadflow/api/internal/rbac"
	"leadflow/api/internal/security"
	sessionsvc "leadflow/api/internal/session/service"
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Auth     *identitysvc.AuthService
	Sessions *sessionsvc.Registry
	Tokens   *security.TokenAuthority
	Broker   *crmsvc.Broker
	Audit    auditrepo.Repository
	Recorder audit.Recorder
	Logger   *zap.Logger
	// AllowedOrigins configures CORS; empty allows any origin (development).
	AllowedOrigins []string
	// SecureCookies marks auth cookies Secure; set in production.
	SecureCookies bool
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	auth          *identitysvc.AuthService
	sessions      *sessionsvc.Registry
	tokens        *security.TokenAuthority
	broker        *crmsvc.Broker
	audit         auditrepo.Repository
	recorder      audit.Recorder
	logger        *zap.Logger
	origins       []string
	secureCookies bool
}

// New returns a Server over the given dependencies. Logger may be nil.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Server{
		auth:          deps.Auth,
		sessions:      deps.Sessions,
		tokens:        deps.Tokens,
		broker:        deps.Broker,
		audit:         deps.Audit,
		recorder:      recorder,
		logger:        logger,
		origins:       origins,
		secureCookies: deps.SecureCookies,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/refresh", s.handleRefresh)

	// The callback arrives from the partner redirect with no bearer token;
	// the signed state identifies the user.
	r.Get("/api/hubspot/callback", s.handleHubSpotCallback)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/api/auth/logout", s.handleLogout)
		r.Post("/api/auth/logout-all", s.handleLogoutAll)
		r.Get("/api/auth/me", s.handleMe)

		r.Get("/api/sessions", s.handleListSessions)

		r.Get("/api/hubspot/authorize", s.handleHubSpotAuthorize)
		r.Get("/api/hubspot/status", s.handleHubSpotStatus)
		r.Delete("/api/hubspot", s.handleHubSpotDisconnect)

		r.With(s.requirePermission(rbac.PermAuditLogs)).Get("/api/audit", s.handleListAudit)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
