// Package main provides a CLI tool for preparing the database: schema,
// administrator account and an initial stock of card numbers.
package main

import (
	"context"
	"fmt"
	"os"

	"cardvault/internal/bootstrap"
	"cardvault/internal/config"
	"cardvault/internal/domain/auth"
	"cardvault/internal/infrastructure/storage/postgres"
	"cardvault/internal/infrastructure/storage/postgres/auth_repo"
	"cardvault/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := bootstrap.OpenDatabase(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	log.Info("connected to database")

	if err := postgres.ApplySchema(ctx, db.Pool); err != nil {
		log.Fatalw("failed to apply schema", "error", err)
	}
	log.Info("schema applied")

	if err := seedAdmin(ctx, cfg, db, log); err != nil {
		log.Fatalw("failed to seed admin user", "error", err)
	}

	if err := seedPool(ctx, cfg, db, log); err != nil {
		log.Fatalw("failed to stock card pool", "error", err)
	}

	log.Info("seeding completed successfully")
}

// seedAdmin creates the administrator from ADMIN_EMAIL/ADMIN_PASSWORD.
func seedAdmin(ctx context.Context, cfg *config.Config, db *bootstrap.Database, log *logger.Logger) error {
	if cfg.AdminEmail == "" {
		log.Info("ADMIN_EMAIL not set, skipping admin user")
		return nil
	}

	service := auth.NewService(
		auth_repo.NewUserRepo(db.TxManager),
		db.TxManager,
		auth.NewJWTService(cfg.JWT()),
		auth.DefaultServiceConfig(),
	)

	user, created, err := service.EnsureAdmin(ctx, auth.RegisterRequest{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		FullName: cfg.AdminName,
	})
	if err != nil {
		return err
	}

	if created {
		log.Infow("created admin user", "id", user.ID, "email", user.Email)
	} else {
		log.Infow("admin user already exists", "id", user.ID, "email", user.Email)
	}
	return nil
}

// seedPool tops the durable store up to SEED_POOL_SIZE numbers.
func seedPool(ctx context.Context, cfg *config.Config, db *bootstrap.Database, log *logger.Logger) error {
	if cfg.SeedPoolSize <= 0 {
		return nil
	}

	enc, err := bootstrap.NewEncryptor(cfg)
	if err != nil {
		return err
	}

	pool, err := bootstrap.NewCardPool(cfg, db, enc, nil, log)
	if err != nil {
		return err
	}
	defer pool.Cache.Close()

	stored, err := pool.Stock.Count(ctx)
	if err != nil {
		return err
	}
	if stored >= cfg.SeedPoolSize {
		log.Infow("card pool already stocked", "stored", stored)
		return nil
	}

	inserted, err := pool.Generator.Replenish(ctx, cfg.SeedPoolSize-stored)
	if err != nil {
		return err
	}
	log.Infow("card pool stocked", "stored", stored, "inserted", inserted)
	return nil
}
