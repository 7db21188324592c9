package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/positionbook/internal/config"
	"github.com/eddiefleurent/positionbook/internal/importer"
	"github.com/eddiefleurent/positionbook/internal/navseries"
	"github.com/eddiefleurent/positionbook/internal/reconcile"
	"github.com/eddiefleurent/positionbook/internal/storage"
)

// app holds everything a subcommand needs.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	store   storage.Interface
	series  *navseries.Store
	service *reconcile.Service
}

func loadConfig(p string) (*config.Config, error) {
	cfg, err := config.Load(p)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(p); errors.Is(statErr, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

func openApp() (*app, error) {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(cfg.LogLevel())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	store, err := storage.NewStorage(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if cfg.CircuitBreaker.Enabled {
		interval, timeout := cfg.BreakerDurations()
		store = storage.NewCircuitBreakerStorage(store, storage.CircuitBreakerSettings{
			MaxRequests:  cfg.CircuitBreaker.MaxRequests,
			Interval:     interval,
			Timeout:      timeout,
			MinRequests:  cfg.CircuitBreaker.MinRequests,
			FailureRatio: cfg.CircuitBreaker.FailureRatio,
		}, logger)
	}

	log := logger.WithField("component", "positionbook")
	series := navseries.NewStore(store, navseries.Config{BenchmarkSymbol: cfg.Benchmark.Symbol}, log)
	imp := importer.New(importer.Options{ScanRows: cfg.Import.ScanRows, MaxSamples: cfg.Import.MaxSamples}, log)

	logger.WithFields(logrus.Fields{
		"driver":  cfg.Storage.Driver,
		"path":    cfg.Storage.Path,
		"breaker": cfg.CircuitBreaker.Enabled,
	}).Debug("Storage opened")

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		series:  series,
		service: reconcile.NewService(store, imp, series, log),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close storage")
	}
}

// readInput reads a named file, or stdin for "-" or no name.
func readInput(name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name) // #nosec G304 -- the path is the user's own input file
}
