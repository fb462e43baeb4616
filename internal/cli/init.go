// Package cli provides the initialization shared by every incomes command.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"incomes/internal/amqp"
	"incomes/internal/config"
	"incomes/internal/core"
	"incomes/internal/log"
	"incomes/internal/services"
	"incomes/internal/sheets"
	gsheet "incomes/internal/sheets/google"
	"incomes/internal/storage"
)

// SetupLogger initializes structured logging at level and installs it as
// the default logger.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	cfg.Component = log.ComponentCLI
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitSQLite opens the store, creating its schema if needed.
func InitSQLite(ctx context.Context, dbPath string) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initialize SQLite repository at %s: %w", dbPath, err)
	}
	log.FromContext(ctx).WithComponent(log.ComponentStorage).InfoContext(ctx, "SQLite repository initialized", "path", dbPath)
	return repo, nil
}

// InitAMQP connects to the broker when events are enabled. It returns a
// nil client otherwise.
func InitAMQP(ctx context.Context, cfg *config.Config) (*amqp.Client, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAMQP)
	if !cfg.EventsEnabled() {
		logger.InfoContext(ctx, "AMQP disabled - no AMQP_URL provided")
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("connect to AMQP: %w", err)
	}
	logger.InfoContext(ctx, "AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, nil
}

// InitSheets builds the Google Sheets source when a spreadsheet is
// configured. It returns nil otherwise.
func InitSheets(ctx context.Context, cfg *config.Config) (sheets.TableReader, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentSheets)
	if cfg.GoogleSpreadsheetID == "" {
		logger.DebugContext(ctx, "Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
		return nil, nil
	}
	client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, gsheet.Credentials{
		JSON:                   cfg.GoogleServiceAccountJSON,
		File:                   cfg.GoogleServiceAccountFile,
		ApplicationCredentials: cfg.GoogleApplicationCredentials,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}

// InitService wires the store, optional AMQP publisher and optional sheet
// source into an IncomeService. withSources controls whether the network
// backed collaborators are connected; read-only commands skip them.
func InitService(ctx context.Context, cfg *config.Config, withSources bool) (*services.IncomeService, error) {
	repo, err := InitSQLite(ctx, cfg.SQLiteDBPath)
	if err != nil {
		return nil, err
	}

	opts := services.Options{
		Normalizer: core.Normalizer{StrictDates: cfg.StrictDates},
		Workers:    cfg.IngestWorkers,
	}
	if withSources {
		client, err := InitAMQP(ctx, cfg)
		if err != nil {
			repo.Close()
			return nil, err
		}
		if client != nil {
			opts.Publisher = client
		}

		src, err := InitSheets(ctx, cfg)
		if err != nil {
			if client != nil {
				client.Close()
			}
			repo.Close()
			return nil, err
		}
		opts.Sheets = src
	}

	return services.NewIncomeService(repo, opts), nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM and a
// channel closed once cleanup finished or timeout elapsed.
func GracefulShutdown(parent context.Context, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	logger := log.FromContext(parent)

	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-parent.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()
		cancel()

		select {
		case <-finished:
			logger.Info("Shutdown complete", log.FieldOperation, log.OpShutdown)
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached", log.FieldOperation, log.OpShutdown)
		}
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
