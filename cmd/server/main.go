package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"leadflow/api/internal/audit"
	auditrepo "leadflow/api/internal/audit/repository"
	"leadflow/api/internal/config"
	"leadflow/api/internal/crm/hubspot"
	crmrepo "leadflow/api/internal/crm/repository"
	crmsvc "leadflow/api/internal/crm/service"
	"leadflow/api/internal/db"
	"leadflow/api/internal/geo"
	identitysvc "leadflow/api/internal/identity/service"
	"leadflow/api/internal/logging"
	"leadflow/api/internal/revocation"
	"leadflow/api/internal/security"
	"leadflow/api/internal/server"
	sessionrepo "leadflow/api/internal/session/repository"
	sessionsvc "leadflow/api/internal/session/service"
	userrepo "leadflow/api/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer conn.Close()

	var revoked security.RevocationStore
	if cfg.RedisAddr != "" {
		client := revocation.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer client.Close()
		revoked = revocation.NewRedisStore(client)
	} else {
		// Process-local: fine for a single instance, not for a fleet.
		logger.Warn("REDIS_ADDR not set, using in-process revocation store")
		revoked = revocation.NewMemoryStore()
	}

	var resolver geo.Resolver = geo.NoopResolver{}
	if cfg.GeoIPDBPath != "" {
		mm, err := geo.OpenMaxMind(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn("geoip database unavailable, locations will be unknown", zap.Error(err))
		} else {
			defer mm.Close()
			resolver = mm
		}
	}

	tokens := security.NewTokenAuthority(
		[]byte(cfg.JWTAccessSecret), []byte(cfg.JWTRefreshSecret),
		cfg.JWTIssuer, cfg.JWTAudience,
		cfg.AccessTTL(), cfg.RefreshTTL(),
		revoked,
	)
	hasher := security.NewHasher(cfg.BcryptCost)

	users := userrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	audits := auditrepo.NewPostgresRepository(conn)
	crmTokens := crmrepo.NewPostgresRepository(conn)

	recorder := audit.NewAsyncRecorder(audits, logger)
	registry := sessionsvc.NewRegistry(sessions, resolver, logger)
	authSvc := identitysvc.NewAuthService(users, hasher, tokens, registry, recorder, logger)

	partner := hubspot.NewClient(hubspot.Config{
		ClientID:     cfg.HubSpotClientID,
		ClientSecret: cfg.HubSpotClientSecret,
		RedirectURI:  cfg.HubSpotRedirectURI,
		Scopes:       cfg.HubSpotScopes,
		AuthURL:      cfg.HubSpotAuthURL,
		TokenURL:     cfg.HubSpotTokenURL,
		Timeout:      cfg.HubSpotTimeout(),
	})
	broker := crmsvc.NewBroker(crmTokens, partner,
		cfg.OAuthStateSecret, cfg.StateTTL(), cfg.RefreshWindow(), cfg.HubSpotScopes, logger)

	srv := server.New(server.Deps{
		Auth:          authSvc,
		Sessions:      registry,
		Tokens:        tokens,
		Broker:        broker,
		Audit:         audits,
		Recorder:      recorder,
		Logger:        logger,
		SecureCookies: cfg.Env == "production",
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	// Let in-flight async audit writes finish.
	time.Sleep(audit.ShutdownDrainDuration)
	logger.Info("http server stopped")
}
