package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-stock-reservation/internal/api"
	"github.com/example/ec-stock-reservation/internal/auth"
	"github.com/example/ec-stock-reservation/internal/command"
	"github.com/example/ec-stock-reservation/internal/config"
	"github.com/example/ec-stock-reservation/internal/domain/inventory"
	"github.com/example/ec-stock-reservation/internal/domain/ledger"
	"github.com/example/ec-stock-reservation/internal/domain/order"
	"github.com/example/ec-stock-reservation/internal/domain/product"
	"github.com/example/ec-stock-reservation/internal/infrastructure/kafka"
	"github.com/example/ec-stock-reservation/internal/infrastructure/redis"
	"github.com/example/ec-stock-reservation/internal/infrastructure/store"
	"github.com/example/ec-stock-reservation/internal/logging"
	"github.com/example/ec-stock-reservation/internal/observability"
	"github.com/example/ec-stock-reservation/internal/query"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
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
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logger, cfg.Server.AppEnv)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Otel, "api")
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	logger.Info("starting stock reservation api",
		zap.String("env", cfg.Server.AppEnv),
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.Bool("jwt_required", cfg.JWT.RequireAuth),
	)

	// Initialize PostgreSQL connection
	db, err := store.ConnectPostgres(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()
	if cfg.Postgres.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			return err
		}
	}

	// Initialize counter store
	redisClient := redis.NewClient(cfg.Redis)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("counter store not reachable at startup, admissions will fail closed", zap.Error(err))
	}
	counter := redis.NewCounterStore(redisClient, cfg.Redis.Timeout)

	// Initialize Kafka producer
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	ledgerStore, err := store.NewLedgerStore(ctx, cfg, db)
	if err != nil {
		return err
	}

	// Initialize domain services
	ledgerSvc := ledger.NewService(ledgerStore, counter, logger)
	productSvc := product.NewService(store.NewPostgresProductStore(db), ledgerSvc, logger)
	orderSvc := order.NewService(store.NewPostgresOrderStore(db), logger)
	controller := inventory.NewController(counter, producer, ledgerSvc, logger)

	// Initialize handlers
	cmdHandler := command.NewHandler(productSvc, orderSvc, controller, logger)
	queryHandler := query.NewHandler(productSvc, orderSvc, ledgerSvc, controller, logger)

	router := api.NewRouter(api.RouterConfig{
		Handlers:    api.NewHandlers(cmdHandler, queryHandler, logger),
		JWTService:  auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL),
		RequireAuth: cfg.JWT.RequireAuth,
		Logger:      logger,
	})
	if !cfg.JWT.RequireAuth {
		logger.Warn("token auth disabled, trusting member headers")
	}

	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
