package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teamspace/expense-ledger/internal/api"
	"github.com/teamspace/expense-ledger/internal/application/port"
	"github.com/teamspace/expense-ledger/internal/application/service"
	"github.com/teamspace/expense-ledger/internal/config"
	"github.com/teamspace/expense-ledger/internal/infrastructure/audit"
	"github.com/teamspace/expense-ledger/internal/infrastructure/cache"
	"github.com/teamspace/expense-ledger/internal/infrastructure/persistence/memory"
	"github.com/teamspace/expense-ledger/internal/infrastructure/persistence/repository"
	"github.com/teamspace/expense-ledger/pkg/database"
	"github.com/teamspace/expense-ledger/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting expense ledger",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_path", cfg.Database.Path))

	var (
		expenseRepo port.ExpenseRepository
		idemStore   port.IdempotencyStore
	)
	if cfg.Database.Path != "" {
		db, err := database.New(database.Config{
			Path:            cfg.Database.Path,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer db.Close()

		if err := database.NewMigrator(db, logger).Run(); err != nil {
			logger.Fatal("Failed to run database migrations", zap.Error(err))
		}

		expenseRepo = repository.NewExpenseRepository(db.DB, logger)
		idemStore = repository.NewIdempotencyRepository(db.DB, logger)
	} else {
		logger.Warn("No database path configured, using in-memory store")
		expenseRepo = memory.NewExpenseRepository()
		idemStore = memory.NewIdempotencyStore()
	}

	svc := service.NewExpenseService(
		expenseRepo,
		idemStore,
		cache.NewTTL(),
		nil, // budget lookups are provided by the project service when embedded
		audit.NewLogSink(logger),
		logger,
		service.Options{
			DefaultCurrency: cfg.Ledger.DefaultCurrency,
			CacheTTL:        cfg.Ledger.AggregateCacheTTL,
			MaxPageSize:     cfg.Ledger.MaxPageSize,
		},
	)

	handler := api.NewHandler(svc, nil, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
}
