package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"prevision/internal/alert"
	"prevision/internal/amqp"
	"prevision/internal/config"
	apphttp "prevision/internal/http"
	"prevision/internal/income"
	"prevision/internal/services"
	"prevision/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting prevision server")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is optional: without it alerts are evaluated and logged but not
	// delivered to the worker.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without alert delivery", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - budget alerts will only be logged")
	}

	incomeKey := cfg.IncomeKey
	if incomeKey == "" {
		// Ephemeral key: income stays writable in dev, but figures stored
		// under it cannot be decrypted after a restart.
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			logger.Error("Failed to generate ephemeral income key", "error", err)
			os.Exit(1)
		}
		incomeKey = hex.EncodeToString(raw)
		logger.Warn("INCOME_KEY not set - using an ephemeral key, stored income will not survive restarts")
	}
	cipher, err := income.NewCipher(incomeKey)
	if err != nil {
		logger.Error("Failed to initialize income cipher", "error", err)
		os.Exit(1)
	}

	// A typed nil *amqp.Client must not end up inside the interface.
	var publisher services.AlertPublisher
	if amqpClient != nil {
		publisher = amqpClient
	}

	tracker := alert.NewTracker(repo.AlertStore(), 0, nil)
	alertService := services.NewAlertService(repo, repo, tracker, publisher, nil)
	forecastService := services.NewForecastService(repo, repo, repo)
	expenseService := services.NewExpenseService(repo, alertService)
	incomeService := services.NewIncomeService(repo, cipher)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Forecasts:   forecastService,
		Expenses:    expenseService,
		Templates:   repo,
		Periods:     repo,
		Budgets:     repo,
		Incomes:     incomeService,
		DefaultUser: cfg.DefaultUser,
		CacheSize:   cfg.CacheSize,
		CacheTTL:    cfg.CacheTTL,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting prevision server", "port", cfg.Port, "sqlite_db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
