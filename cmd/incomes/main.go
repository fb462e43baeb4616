package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"incomes/internal/cli"
	"incomes/internal/config"
	apphttp "incomes/internal/http"
	"incomes/internal/log"
	"incomes/internal/worker"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once the root has run.
type app struct {
	envFile string
	cfg     *config.Config
	logger  *log.Logger
}

// ctx returns the command context with the configured logger attached.
func (a *app) ctx(cmd *cobra.Command) context.Context {
	return log.NewContext(cmd.Context(), a.logger)
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "incomes",
		Short: "Income records ingestion, storage and export",
		Long: "incomes ingests CSV and XLSX income records into a local SQLite store, " +
			"skipping records already stored, and serves, summarizes and exports them.",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.envFile != "" {
				cli.LoadEnvFile(a.envFile)
			} else {
				cli.LoadEnvFile()
			}
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cli.SetupLogger(cfg.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file to load (default .env)")

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newWorkerCommand(a))
	cmd.AddCommand(newImportCommand(a))
	cmd.AddCommand(newImportSheetCommand(a))
	cmd.AddCommand(newExportCommand(a))
	cmd.AddCommand(newDeleteCommand(a))
	cmd.AddCommand(newClearCommand(a))
	cmd.AddCommand(newSummaryCommand(a))

	return cmd
}

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			cfg := a.cfg
			a.logger.InfoContext(ctx, "Starting incomes", log.FieldOperation, log.OpStartup, "port", cfg.Port)

			svc, err := cli.InitService(ctx, cfg, true)
			if err != nil {
				return err
			}

			srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
				MaxUploadBytes:  cfg.MaxUploadBytes,
				User:            cfg.DashboardUser,
				Password:        cfg.DashboardPassword,
				WritesPerMinute: 60,
				Logger:          a.logger,
			})
			srv.ReadTimeout = 60 * time.Second
			srv.WriteTimeout = 60 * time.Second
			srv.IdleTimeout = 120 * time.Second
			srv.MaxHeaderBytes = 1 << 16 // 64KB

			shutdownCtx, done := cli.GracefulShutdown(ctx, cfg.ShutdownTimeout, func(sctx context.Context) {
				if err := srv.Shutdown(sctx); err != nil {
					a.logger.Error("Server shutdown error", log.FieldError, err)
				}
				if err := svc.Close(); err != nil {
					a.logger.Error("Service close error", log.FieldError, err)
				}
			})

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("Server listening", "addr", srv.Addr, "auth", cfg.AuthEnabled(), "events", cfg.EventsEnabled())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				_ = svc.Close()
				return fmt.Errorf("server error: %w", err)
			case <-shutdownCtx.Done():
			}
			cli.WaitForShutdown(shutdownCtx, done)
			return nil
		},
	}
}

func newWorkerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Keep an export snapshot up to date from AMQP store events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			cfg := a.cfg
			if !cfg.EventsEnabled() {
				return errors.New("worker needs AMQP_URL")
			}

			repo, err := cli.InitSQLite(ctx, cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			client, err := cli.InitAMQP(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			w := worker.NewSnapshotWorker(repo, cfg.SnapshotDir, cfg.SnapshotFormat)
			a.logger.InfoContext(ctx, "Starting snapshot worker", log.FieldFile, w.Path())

			runCtx, done := cli.GracefulShutdown(ctx, cfg.ShutdownTimeout, nil)
			if err := w.Run(runCtx, client); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			cli.WaitForShutdown(runCtx, done)
			return nil
		},
	}
}
