package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"certpipe/internal/config"
	"certpipe/internal/logger"
	"certpipe/pkg/logging"
)

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "query-service",
		Short: "Query API for certificate trade listings",
		Long:  "Query Service exposes the collected trade listings over HTTP",
		RunE:  runServe,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the query service",
		RunE:  runServe,
	})

	return rootCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile == "" {
		earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
		return fmt.Errorf("config file is required")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return err
	}

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return err
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.InfowCtx(ctx, "Starting Query Service")

	app := NewApp(cfg, log)
	if err := app.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	log.InfowCtx(ctx, "Service running")
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
		return err
	}

	log.Infow("Service shutdown complete")
	return nil
}
