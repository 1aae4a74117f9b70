// Package main is the entry point for the cardvault API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cardvault/internal/bootstrap"
	"cardvault/internal/config"
	"cardvault/internal/domain/auth"
	"cardvault/internal/domain/cards"
	v1 "cardvault/internal/infrastructure/http/v1"
	"cardvault/internal/infrastructure/http/v1/handlers"
	"cardvault/internal/infrastructure/storage/postgres"
	"cardvault/internal/infrastructure/storage/postgres/auth_repo"
	"cardvault/internal/infrastructure/storage/postgres/card_repo"
	"cardvault/pkg/logger"
)

const idempotencyTTL = 24 * time.Hour

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	log.Infow("starting cardvault server", "env", cfg.AppEnv)

	// --- Database ---
	db, err := bootstrap.OpenDatabase(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := postgres.ApplySchema(ctx, db.Pool); err != nil {
		log.Fatalw("failed to apply schema", "error", err)
	}
	log.Info("database connection established")

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		postgres.NewStatsCollector(db.Pool),
	)

	// --- Card number pool ---
	enc, err := bootstrap.NewEncryptor(cfg)
	if err != nil {
		log.Fatalw("failed to initialize encryptor", "error", err)
	}

	pool, err := bootstrap.NewCardPool(cfg, db, enc, registry, log)
	if err != nil {
		log.Fatalw("failed to initialize card pool", "error", err)
	}
	defer pool.Cache.Close()

	// Warm the buffer so the first issuance does not pay for a fill.
	// A failure here is not fatal: Take fills on demand.
	warmCtx, cancelWarm := context.WithTimeout(ctx, cfg.CardRefillTimeout)
	if err := pool.Cache.Fill(warmCtx); err != nil {
		log.Warnw("initial pool fill failed", "error", err)
	}
	cancelWarm()

	// --- Auth ---
	jwtService := auth.NewJWTService(cfg.JWT())
	userRepo := auth_repo.NewUserRepo(db.TxManager)
	authService := auth.NewService(userRepo, db.TxManager, jwtService, auth.DefaultServiceConfig())

	// --- Cards ---
	cardService := cards.NewService(
		card_repo.NewCardRepo(db.TxManager),
		userRepo,
		pool.Cache,
		enc,
		card_repo.NewEventOutbox(postgres.NewOutboxPublisher(db.TxManager)),
		db.TxManager,
		cfg.Cards(),
	)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		JWTValidator: jwtService,
		AuthService:  authService,
		Cards:        cardService,
		Pool:         pool.Cache,
		PoolStock:    pool.Stock,
		Idempotency:  postgres.NewIdempotencyStore(db.TxManager, idempotencyTTL),
		ReadinessChecks: map[string]handlers.ReadinessCheck{
			"database": db.Pool,
		},
		Registerer: registry,
		Gatherer:   registry,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
