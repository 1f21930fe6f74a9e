package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"prevision/internal/alert"
	"prevision/internal/amqp"
	"prevision/internal/config"
	"prevision/internal/notify"
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

	logger.Info("Starting alert-worker")

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

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mailer := notify.NewMailer(notify.EmailConfig{
		Enabled:  cfg.EmailEnabled,
		Host:     cfg.EmailHost,
		Port:     cfg.EmailPort,
		Username: cfg.EmailUsername,
		Password: cfg.EmailPassword,
		From:     cfg.EmailFrom,
	})
	if !cfg.EmailEnabled {
		logger.Info("Email disabled - alerts will be logged instead of sent")
	}

	tracker := alert.NewTracker(repo.AlertStore(), 0, nil)
	alertService := services.NewAlertService(repo, repo, tracker, amqpClient, nil)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume alert messages and deliver them by email.
	go func() {
		handler := func(msg *amqp.AlertMessage) error {
			return mailer.SendBudgetAlert(ctx, msg)
		}
		if err := amqpClient.ConsumeBudgetAlerts(ctx, handler); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	logger.Info("Budget sweep configured",
		"interval", cfg.SweepInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	// Run an initial sweep on startup so alerts missed while the worker was
	// down fire promptly.
	logger.Info("Running initial budget sweep...")
	if err := alertService.SweepAll(ctx); err != nil {
		logger.Error("Initial sweep failed", "error", err)
	}

	// Periodic sweep over every user with a configured budget.
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := alertService.SweepAll(ctx); err != nil {
					logger.Error("Periodic sweep failed", "error", err)
				} else {
					logger.Info("Periodic sweep complete",
						"next_check", now.Add(cfg.SweepInterval).Format("15:04:05"))
				}
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down alert-worker...")
	cancel()

	// Wait for shutdown or timeout
	select {
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	case <-time.After(2 * time.Second):
		logger.Info("Alert-worker shutdown complete")
	}
}
