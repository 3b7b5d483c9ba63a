package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/config"
	"github.com/garyjia/timesheet-approval/internal/container"
	"github.com/garyjia/timesheet-approval/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
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

	logger.Info("Starting timesheet approval service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.String("review_mode", cfg.Workflow.ReviewMode),
		zap.String("lock_backend", cfg.Lock.Backend))

	if err := run(cfg, logger); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	// Start blocks until the signal context is done, then shuts the listener down
	serveErr := app.HTTPServer().Start(ctx)

	logger.Info("Shutting down")
	if err := app.Close(); err != nil {
		logger.Error("Container shutdown error", zap.Error(err))
	}
	return serveErr
}
