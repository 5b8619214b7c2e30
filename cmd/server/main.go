// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custody-service/internal/chains"
	"custody-service/internal/chains/bitcoin"
	"custody-service/internal/chains/ethereum"
	"custody-service/internal/chains/ripple"
	"custody-service/internal/chains/stellar"
	"custody-service/internal/config"
	"custody-service/internal/events"
	"custody-service/internal/handler"
	"custody-service/internal/mfa"
	"custody-service/internal/repository"
	"custody-service/internal/router"
	"custody-service/internal/signer"
	"custody-service/internal/usecase"
	"custody-service/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load .env
	_ = godotenv.Load()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting custody service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	dbConnStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	dbPool, err := pgxpool.New(ctx, dbConnStr)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("connected to database",
		zap.String("database", cfg.Database.DBName))

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	// Register chain adapters
	registry := chains.NewRegistry()

	if cfg.Chains.EthereumRPCURL != "" {
		ethAdapter, err := ethereum.NewAdapter(ctx, cfg.Chains.EthereumRPCURL, 15*time.Second, logger)
		if err != nil {
			logger.Fatal("failed to initialize ethereum adapter", zap.Error(err))
		}
		registry.Register(ethAdapter)
	}
	if cfg.Chains.RippleRPCURL != "" {
		registry.Register(ripple.NewAdapter(cfg.Chains.RippleRPCURL, 15*time.Second, logger))
	}
	if cfg.Chains.StellarURL != "" {
		registry.Register(stellar.NewAdapter(cfg.Chains.StellarURL, 15*time.Second, logger))
	}
	if cfg.Chains.BitcoinAPIURL != "" {
		registry.Register(bitcoin.NewAdapter(cfg.Chains.BitcoinAPIURL, 15*time.Second, logger))
	}

	logger.Info("chain adapters registered", zap.Any("chains", registry.List()))

	// Initialize repositories
	transactionRepo := repository.NewTransactionRepository(dbPool, logger)
	idempotencyRepo := repository.NewIdempotencyRepository(dbPool, logger)
	accountRepo := repository.NewAccountRepository(dbPool, logger)

	// Initialize external clients
	vaultSigner := signer.NewVaultSigner(cfg.Vault.Address, cfg.Vault.Token, cfg.Vault.Timeout, logger)
	mfaClient := mfa.NewPushClient(cfg.Mfa.APIURL, cfg.Mfa.APIKey, cfg.Mfa.Timeout, logger)
	bus := events.NewRedisBus(rdb, logger)

	// Initialize usecases
	transactionUC := usecase.NewTransactionUsecase(
		transactionRepo,
		idempotencyRepo,
		accountRepo,
		registry,
		vaultSigner,
		mfaClient,
		bus,
		logger,
	)

	// Start approval workers
	approvalWorker := worker.NewApprovalWorker(bus, transactionUC, cfg.Worker.Count, cfg.Worker.ApproverTTL, logger)
	if err := approvalWorker.Start(ctx); err != nil {
		logger.Fatal("failed to start approval workers", zap.Error(err))
	}

	// Initialize handlers
	transactionHandler := handler.NewTransactionHandler(transactionUC, logger)
	approvalHandler := handler.NewApprovalHandler(transactionUC, logger)

	// Setup routes
	r := router.SetupRoutes(transactionHandler, approvalHandler, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("custody service started successfully",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Env))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop workers and wait for in-flight events to drain
	cancel()
	approvalWorker.Wait()

	logger.Info("server stopped")
}
