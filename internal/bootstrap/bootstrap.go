// Package bootstrap wires the components shared by the server, worker and
// seed binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"cardvault/internal/config"
	"cardvault/internal/core/numerator"
	"cardvault/internal/core/security"
	"cardvault/internal/domain/cardpool"
	"cardvault/internal/infrastructure/storage/postgres"
	"cardvault/internal/infrastructure/storage/postgres/cardpool_repo"
	"cardvault/pkg/logger"
)

// Database is an open connection pool with its transaction manager.
type Database struct {
	Pool      *postgres.Pool
	TxManager *postgres.TxManager
}

// Close releases all connections.
func (d *Database) Close() {
	d.Pool.Close()
}

// OpenDatabase connects to DATABASE_URL.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*Database, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	pool, err := postgres.NewPool(ctx, cfg.Pool())
	if err != nil {
		return nil, err
	}

	txManager := postgres.NewTxManager(pool)
	txManager.SetStatementTimeout(cfg.DBStatementTimeout)

	return &Database{Pool: pool, TxManager: txManager}, nil
}

// NewEncryptor builds the at-rest encryptor from ENCRYPTION_KEY/ENCRYPTION_IV.
func NewEncryptor(cfg *config.Config) (*security.Encryptor, error) {
	enc, err := security.NewEncryptor([]byte(cfg.EncryptionKey), []byte(cfg.EncryptionIV))
	if err != nil {
		return nil, fmt.Errorf("encryptor: %w", err)
	}
	return enc, nil
}

// CardPool groups the number pool components backed by postgres.
type CardPool struct {
	Stock     *cardpool_repo.GeneratedCardRepo
	Ledger    *cardpool.Ledger
	Generator *cardpool.Generator
	Cache     *cardpool.Cache
}

// NewCardPool builds ledger, generator and cache. A nil registerer leaves
// pool metrics unregistered.
func NewCardPool(
	cfg *config.Config,
	db *Database,
	enc cardpool.Encryptor,
	reg prometheus.Registerer,
	log *logger.Logger,
) (*CardPool, error) {
	poolCfg := cfg.CardPool()

	numbers, err := numerator.New(poolCfg.Numbering)
	if err != nil {
		return nil, err
	}

	opts := []cardpool.Option{
		cardpool.WithLogger(log),
		cardpool.WithMetrics(cardpool.NewMetrics(reg)),
	}

	stock := cardpool_repo.NewGeneratedCardRepo(db.TxManager)
	checkpoints := cardpool_repo.NewCheckpointRepo(db.TxManager)

	ledger := cardpool.NewLedger(
		db.TxManager,
		checkpoints,
		enc,
		poolCfg.Numbering.StartSuffix,
		poolCfg.LockTimeout,
		opts...,
	)
	generator := cardpool.NewGenerator(ledger, numbers, stock, enc, opts...)

	cache, err := cardpool.NewCache(poolCfg, stock, generator, enc, opts...)
	if err != nil {
		return nil, err
	}

	return &CardPool{
		Stock:     stock,
		Ledger:    ledger,
		Generator: generator,
		Cache:     cache,
	}, nil
}
