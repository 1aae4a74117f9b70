// Package main is the entry point for the cardvault background worker.
// It relays outbox events, sweeps expired cards and keeps the number pool stocked.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cardvault/internal/bootstrap"
	"cardvault/internal/config"
	"cardvault/internal/domain/cards"
	"cardvault/internal/infrastructure/messaging/rabbitmq"
	"cardvault/internal/infrastructure/scheduler"
	"cardvault/internal/infrastructure/storage/postgres"
	"cardvault/internal/infrastructure/storage/postgres/auth_repo"
	"cardvault/internal/infrastructure/storage/postgres/card_repo"
	"cardvault/pkg/logger"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting cardvault worker")

	db, err := bootstrap.OpenDatabase(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	enc, err := bootstrap.NewEncryptor(cfg)
	if err != nil {
		log.Fatalw("failed to initialize encryptor", "error", err)
	}

	pool, err := bootstrap.NewCardPool(cfg, db, enc, nil, log)
	if err != nil {
		log.Fatalw("failed to initialize card pool", "error", err)
	}
	defer pool.Cache.Close()

	// --- Event delivery ---
	var handler postgres.OutboxHandler
	if cfg.AMQPURL != "" {
		producer, err := rabbitmq.NewProducer(cfg.AMQPURL, cfg.EventsExchange, log)
		if err != nil {
			log.Fatalw("failed to connect to message broker", "error", err)
		}
		defer producer.Close()
		handler = producer
	} else {
		log.Warn("AMQP_URL not set, outbox events are only logged")
		handler = rabbitmq.NewLogHandler(log)
	}

	relay := postgres.NewOutboxRelay(db.TxManager, postgres.RelayConfig{
		BatchSize:    cfg.OutboxBatchSize,
		MaxRetries:   cfg.OutboxMaxRetries,
		RetryBackoff: postgres.DefaultRelayConfig().RetryBackoff,
	}, handler)

	// --- Card expiry ---
	cardService := cards.NewService(
		card_repo.NewCardRepo(db.TxManager),
		auth_repo.NewUserRepo(db.TxManager),
		pool.Cache,
		enc,
		card_repo.NewEventOutbox(postgres.NewOutboxPublisher(db.TxManager)),
		db.TxManager,
		cfg.Cards(),
	)

	sched := scheduler.New(cardService, scheduler.Config{
		ExpirySchedule: cfg.ExpiryJobSchedule,
		Location:       cfg.Location(),
	}, log)
	if err := sched.Start(); err != nil {
		log.Fatalw("failed to start scheduler", "error", err)
	}

	worker := NewWorker(WorkerConfig{
		PollInterval:      cfg.OutboxPollInterval,
		BatchSize:         cfg.OutboxBatchSize,
		PoolCheckInterval: cfg.PoolCheckInterval,
		MinStock:          cfg.CardCacheSize,
		GenerationCount:   cfg.CardGenerationCount,
	}, relay, postgres.NewIdempotencyStore(db.TxManager, 0), pool.Stock, pool.Generator, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.RelayOutbox(gctx) })
	g.Go(func() error { return worker.Maintain(gctx) })
	g.Go(func() error { return worker.StockPool(gctx) })

	err = g.Wait()

	log.Info("shutting down worker...")
	<-sched.Stop().Done()

	if err != nil {
		log.Errorw("worker stopped with error", "error", err)
		return
	}
	log.Info("worker stopped")
}

// WorkerConfig holds loop intervals and pool stock targets.
type WorkerConfig struct {
	PollInterval time.Duration
	// BatchSize is the relay batch size; a full batch is followed by another.
	BatchSize         int
	PoolCheckInterval time.Duration
	// MaintenanceInterval defaults to one hour.
	MaintenanceInterval time.Duration
	MinStock            int
	GenerationCount     int
}
