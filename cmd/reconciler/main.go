package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-stock-reservation/internal/config"
	"github.com/example/ec-stock-reservation/internal/domain/ledger"
	"github.com/example/ec-stock-reservation/internal/infrastructure/kafka"
	"github.com/example/ec-stock-reservation/internal/infrastructure/store"
	"github.com/example/ec-stock-reservation/internal/logging"
	"github.com/example/ec-stock-reservation/internal/observability"
	"github.com/example/ec-stock-reservation/internal/reconciliation"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "reconciler: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logger, cfg.Server.AppEnv)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Otel, "reconciler")
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	logger.Info("starting stock reconciler",
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
		zap.String("dlq_topic", cfg.Kafka.DLQTopic),
		zap.String("ledger_backend", cfg.Ledger.Backend),
	)

	var db *sqlx.DB
	if cfg.Ledger.Backend == config.LedgerBackendPostgres {
		db, err = store.ConnectPostgres(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer db.Close()
		if cfg.Postgres.AutoMigrate {
			if err := store.Migrate(ctx, db); err != nil {
				return err
			}
		}
	}

	ledgerStore, err := store.NewLedgerStore(ctx, cfg, db)
	if err != nil {
		return err
	}

	// The reconciler only applies deltas; it never seeds, so no counter store.
	handler := reconciliation.NewHandler(ledger.NewService(ledgerStore, nil, logger), logger)

	consumer := kafka.NewConsumer(cfg.Kafka, kafka.RetryPolicy{
		MaxAttempts:    cfg.Reconciler.MaxAttempts,
		InitialBackoff: cfg.Reconciler.InitialBackoff,
		MaxBackoff:     cfg.Reconciler.MaxBackoff,
	}, logger)
	defer consumer.Close()

	logger.Info("consuming reconciliation messages")
	if err := consumer.Consume(ctx, handler.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer stopped: %w", err)
	}

	logger.Info("shutting down")
	return nil
}
