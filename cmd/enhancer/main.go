package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docutag/enhancer/config"
	"github.com/docutag/enhancer/db"
	"github.com/docutag/enhancer/logging"
	"github.com/docutag/enhancer/models"
	"github.com/docutag/enhancer/queue"
	"github.com/docutag/enhancer/tracing"
)

var version = "dev"

var (
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "enhancer",
	Short:         "Scrape blog articles and enhance them with an LLM",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath, slog.Default())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetString("port")
		}
		if cmd.Flags().Changed("cors-origin") {
			cfg.Server.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
		}

		logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		slog.SetDefault(logger)

		if err := cfg.Validate(); err != nil {
			return err
		}
		for _, w := range cfg.Warnings() {
			logger.Warn(w)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file (default $"+config.ConfigFileEnv+")")

	serveCmd.Flags().String("port", "", "Server port (overrides PORT)")
	serveCmd.Flags().String("cors-origin", "", "Allowed CORS origin (overrides CORS_ORIGIN)")

	migrateCmd.Flags().Bool("status", false, "Show migration status without applying")
	migrateCmd.Flags().Bool("down", false, "Roll back the most recent migration")

	rootCmd.AddCommand(serveCmd, migrateCmd, scrapeSourceCmd, scrapeURLCmd, enhanceCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("enhancer", version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API, comparison UI and enhancement workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		logger.Info("enhancer service initializing", "version", version)

		tp, err := tracing.Init(ctx, tracing.Config{
			ServiceName: cfg.Tracing.ServiceName,
			Endpoint:    cfg.Tracing.Endpoint,
		})
		if err != nil {
			logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Error("error shutting down tracer", "error", err)
				}
			}()
			logger.Info("tracing initialized", "endpoint", cfg.Tracing.Endpoint)
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		server, err := a.server()
		if err != nil {
			return err
		}

		workerCtx, stopWorkers := context.WithCancel(ctx)
		defer stopWorkers()
		if err := a.queue.Start(workerCtx); err != nil {
			return fmt.Errorf("failed to start queue: %w", err)
		}

		serverErr := make(chan error, 1)
		go func() {
			logger.Info("enhancer service starting",
				"port", cfg.Server.Port,
				"database_driver", cfg.Database.Driver,
				"llm_provider", a.llm.ProviderName(),
				"strategies", a.strategyNames(),
				"queue_concurrency", cfg.Queue.Concurrency,
				"storage_backend", cfg.Storage.Backend,
			)
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-quit:
		case err := <-serverErr:
			logger.Error("server error", "error", err)
			a.queue.Stop()
			return err
		}

		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		a.queue.Stop()

		logger.Info("server stopped")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply, inspect or roll back database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		showStatus, _ := cmd.Flags().GetBool("status")
		down, _ := cmd.Flags().GetBool("down")

		dbConfig := cfg.DB()
		dbConfig.SkipMigrations = true
		database, err := db.New(dbConfig)
		if err != nil {
			return err
		}
		defer database.Close()

		switch {
		case down:
			if err := database.Rollback(); err != nil {
				return err
			}
			fmt.Println("Rolled back the most recent migration")
		case !showStatus:
			if err := database.Migrate(); err != nil {
				return err
			}
			fmt.Println("Migrations applied")
		}

		status, err := database.GetMigrationStatus()
		if err != nil {
			return err
		}
		for _, s := range status {
			mark := " "
			if s.Applied {
				mark = "x"
			}
			fmt.Printf("[%s] %03d %s\n", mark, s.Version, s.Name)
		}
		return nil
	},
}

var scrapeSourceCmd = &cobra.Command{
	Use:   "scrape-source",
	Short: "Scrape the configured blog listing once and store the articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.ingest.ScrapeSource(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var scrapeURLCmd = &cobra.Command{
	Use:   "scrape-url <url>",
	Short: "Scrape a single article URL and store it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.ingest.ScrapeURL(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var enhanceCmd = &cobra.Command{
	Use:   "enhance <article-id>",
	Short: "Run the enhancement workflow for one article without the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		job := &models.Job{
			ID:           uuid.New().String(),
			Name:         queue.JobName,
			ArticleID:    args[0],
			State:        models.JobActive,
			AttemptsMade: 1,
			MaxAttempts:  1,
		}
		result, err := a.enhancer.Process(cmd.Context(), job, func(p int) {
			logger.Debug("enhancement progress", "article_id", job.ArticleID, "progress", p)
		})
		if result != nil {
			if perr := printJSON(result); perr != nil {
				return perr
			}
		}
		return err
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
