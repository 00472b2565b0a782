// Worker sweeps idle sessions on an interval. Sessions inactive longer than
// SESSION_IDLE_TIMEOUT are deactivated; SWEEP_INTERVAL controls the cadence.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"leadflow/api/internal/config"
	"leadflow/api/internal/db"
	"leadflow/api/internal/logging"
	sessionrepo "leadflow/api/internal/session/repository"
	sessionsvc "leadflow/api/internal/session/service"
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

	registry := sessionsvc.NewRegistry(sessionrepo.NewPostgresRepository(conn), nil, logger)
	idle := cfg.IdleTimeout()
	interval := cfg.SweepEvery()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("worker shutting down")
		cancel()
	}()

	logger.Info("session sweeper started",
		zap.Duration("idle_timeout", idle), zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sweepCtx, sweepCancel := context.WithTimeout(ctx, time.Minute)
		n, err := registry.SweepIdle(sweepCtx, idle)
		sweepCancel()
		if err != nil {
			logger.Error("sweep failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("swept idle sessions", zap.Int64("count", n))
		}

		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		case <-ticker.C:
		}
	}
}
