package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/continuity-handoff/internal/db"
	"github.com/jonathan/continuity-handoff/internal/jobs"
	"github.com/jonathan/continuity-handoff/internal/logger"
	"github.com/jonathan/continuity-handoff/internal/server"
	"github.com/spf13/cobra"
)

var (
	servePort       int
	serveConfigPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes REST endpoints for starting handoff jobs, polling their status and saving checkpoints.

Jobs and checkpoints are stored in PostgreSQL when DATABASE_URL is set and in memory otherwise. REDIS_URL adds a shared status cache in front of the store.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(serveConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := newBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	var (
		store       jobs.Store
		checkpoints jobs.CheckpointStore
		healthCheck func(context.Context) error
	)
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		store, checkpoints, healthCheck = database, database, database.Ping
	} else {
		mem := jobs.NewMemoryStore(jobs.DefaultJobTTL)
		store, checkpoints = mem, mem
		log.Warn("DATABASE_URL not set, jobs and checkpoints are kept in memory")
	}

	if cfg.RedisURL != "" {
		rdb, err := jobs.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		store = jobs.NewRedisCache(store, rdb, jobs.DefaultStatusTTL, log)
	}

	svc := jobs.NewService(b.runner(cfg, log), store, checkpoints, cfg.Pipeline, log)
	srv, err := server.New(server.Config{
		Port:        cfg.Port,
		JWTSecret:   cfg.JWTSecret,
		HealthCheck: healthCheck,
	}, svc, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}
