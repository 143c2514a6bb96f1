/**
 * @description
 * Entry point for the banking core. It loads configuration, opens the account
 * store, connects the optional Redis and RabbitMQ collaborators, builds the
 * transfer engine and payment processors, starts the payment scheduler and
 * serves the HTTP API until SIGINT or SIGTERM.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: transfer rate limiting.
 * - github.com/joho/godotenv: .env files during local development.
 * - internal/api, internal/app, internal/config, internal/store, pkg/rabbitmq.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/api"
	"github.com/HampusCastle/BankApp-Backend-sub000/internal/app"
	"github.com/HampusCastle/BankApp-Backend-sub000/internal/config"
	"github.com/HampusCastle/BankApp-Backend-sub000/internal/store"
	"github.com/HampusCastle/BankApp-Backend-sub000/pkg/rabbitmq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file for local development.
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("cannot load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}
	logger.Info("starting bank core", "port", cfg.ServerPort, "store_driver", cfg.StoreDriver)

	repo, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("store initialization failed", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var limiter app.RateLimiter
	if redisClient := openRedis(cfg, logger); redisClient != nil {
		defer redisClient.Close()
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Warn("rabbitmq url missing; notifications are logged only", "env", "RABBITMQ_URL")
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger); err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
	} else {
		publisher = producer
		logger.Info("rabbitmq producer connected")
	}
	defer publisher.Close()

	clock := app.SystemClock{}
	notifier := app.NewBrokerNotifier(publisher, cfg.NotificationExchange, clock)
	activity := app.NewStoreActivityLogger(repo, clock)

	engine := app.NewTransferEngine(repo, notifier, activity, clock, logger, app.TransferEngineOptions{
		MaxAttempts:         cfg.TransferMaxAttempts,
		CollaboratorTimeout: cfg.CollaboratorTimeout(),
	})
	claimOpts := app.ClaimOptions{Lease: cfg.ClaimLease(), BatchSize: cfg.ClaimBatchSize}

	accounts := app.NewAccountService(repo, activity, logger)
	scheduled := app.NewScheduledPaymentService(repo, clock)
	scheduledProcessor := app.NewScheduledPaymentProcessor(repo, engine, logger, claimOpts)
	recurring := app.NewRecurringPaymentService(repo, engine, clock, logger, claimOpts)

	var scheduler *app.Scheduler
	if cfg.SchedulerEnabled {
		jobs := app.NewJobs(scheduledProcessor, recurring, clock, logger, cfg)
		scheduler = app.NewScheduler(jobs, logger, cfg)
		if err := scheduler.Start(); err != nil {
			logger.Error("scheduler start failed", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("payment scheduler disabled", "env", "SCHEDULER_ENABLED")
	}

	handler := api.NewHandler(accounts, engine, scheduled, recurring, limiter, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:                  cfg.JWTSecret,
		JWTIssuer:                  cfg.JWTIssuer,
		TransferRateLimitPerMinute: cfg.TransferRateLimitPerMinute,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
			logger.Warn("scheduler jobs still running at shutdown deadline")
		}
	}

	logger.Info("shutdown complete")
}

func openStore(cfg config.Config, logger *slog.Logger) (store.Repository, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryRepository(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connected")

	repo := store.NewPostgresRepository(dbpool)
	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			dbpool.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database schema applied")
	}
	return repo, dbpool.Close, nil
}

func openRedis(cfg config.Config, logger *slog.Logger) *redis.Client {
	if cfg.TransferRateLimitPerMinute <= 0 {
		return nil
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn("redis url missing; transfer rate limiting disabled", "env", "REDIS_URL")
		return nil
	}
	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; transfer rate limiting disabled", "error", err)
		return nil
	}
	client := redis.NewClient(options)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed; transfer rate limiting disabled", "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
