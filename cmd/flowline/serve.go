package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mroche14/flowline"
	"github.com/mroche14/flowline/internal/adapters/postgres"
	redisAdapter "github.com/mroche14/flowline/internal/adapters/redis"
	"github.com/mroche14/flowline/internal/config"
	"github.com/mroche14/flowline/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation HTTP server",
	Long: `Starts the flowline engine in server mode, exposing the turn endpoint
and the scenario publication API over HTTP.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		scenarioDir, _ := cmd.Flags().GetString("scenarios")

		if err := runServe(configPath, scenarioDir); err != nil {
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("scenarios", "", "Directory of scenario YAML files to publish at startup")
}

func runServe(configPath, scenarioDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(slog.LevelInfo)
	if cfg.Logging.Format == "json" {
		logger = logging.NewJSON(os.Stderr, slog.LevelInfo)
	}

	registry := prometheus.NewRegistry()
	opts := []flowline.Option{
		flowline.WithConfig(cfg.Engine),
		flowline.WithLogger(logger),
		flowline.WithMetricsRegistry(registry),
	}

	var redisClient *backend.Client
	needsRedis := cfg.Store.Sessions == "redis" || cfg.Store.Facts == "redis"
	if needsRedis {
		redisClient = backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	if cfg.Store.Sessions == "redis" {
		opts = append(opts,
			flowline.WithSessionStore(redisAdapter.NewSessionStore(redisClient)),
			flowline.WithLocker(redisAdapter.NewLocker(redisClient, "flowline:lock:")),
		)
	}
	if cfg.Store.Facts == "redis" {
		opts = append(opts, flowline.WithFactStore(redisAdapter.NewFactStore(redisClient, "flowline:fact:")))
	}
	if cfg.Store.Graphs == "postgres" {
		var store *postgres.GraphStore
		if cfg.Postgres.DSN != "" {
			store, err = postgres.NewFromDSN(cfg.Postgres.DSN)
		} else {
			store, err = postgres.New()
		}
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer store.Close()
		opts = append(opts, flowline.WithGraphStore(store))
	}

	eng, err := flowline.New(opts...)
	if err != nil {
		return err
	}

	if scenarioDir != "" {
		if err := publishDir(eng, scenarioDir, logger); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: eng.Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("flowline server listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return err

	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown did not complete, closing", "err", err)
			return srv.Close()
		}
		logger.Info("server stopped")
		return nil
	}
}

func publishDir(eng *flowline.Engine, dir string, logger *slog.Logger) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	// Glob output is sorted, so v1 files publish before v2.
	for _, path := range matches {
		plan, err := eng.PublishFile(context.Background(), path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if plan != nil {
			logger.Info("migration plan generated",
				"scenario", plan.ScenarioID, "from", plan.FromVersion, "to", plan.ToVersion)
		}
	}
	return nil
}
