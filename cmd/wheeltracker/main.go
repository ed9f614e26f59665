package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eddiefleurent/wheel_tracker/internal/api"
	"github.com/eddiefleurent/wheel_tracker/internal/config"
	"github.com/eddiefleurent/wheel_tracker/internal/quotes"
	"github.com/eddiefleurent/wheel_tracker/internal/service"
	"github.com/eddiefleurent/wheel_tracker/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Wheel tracker stopped with an error")
	}
	logger.Info("Wheel tracker stopped")
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if cfg.Environment.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"mode":    cfg.Environment.Mode,
		"addr":    cfg.Addr(),
		"storage": cfg.Storage.Driver,
		"quotes":  cfg.Quotes.Provider,
	}).Info("Starting wheel tracker")

	store, err := storage.NewStorage(cfg.Storage.Driver, cfg.Storage.Path, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close storage")
		}
	}()

	prices, err := quotes.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("building quote provider: %w", err)
	}

	ledger := service.NewLedger(store, prices, service.Options{
		ManagementDTE: cfg.Wheel.ManagementDTE,
		MaxImportRows: cfg.Import.MaxRows,
	}, logger)

	server := api.NewServer(api.Config{
		Addr:           cfg.Addr(),
		AuthToken:      cfg.Server.AuthToken,
		RequestTimeout: cfg.GetRequestTimeout(),
		MaxUploadBytes: cfg.Import.MaxUploadBytes,
		ImportRate:     cfg.Import.RatePerSecond,
		ImportBurst:    cfg.Import.Burst,
	}, ledger, prices, logger)

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received, draining requests...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return <-errCh
}
