// Package main implements geobus-tap, the geometry stream consumer. It
// pulls packets from the bus, runs the manifold detector on each one and
// optionally archives accepted packets into the object store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tokenism/geobus/bus"
	"github.com/tokenism/geobus/config"
	"github.com/tokenism/geobus/consumer"
	"github.com/tokenism/geobus/metric"
	"github.com/tokenism/geobus/pkg/cache"
	"github.com/tokenism/geobus/storage/geomstore"
)

// Build information constants
const (
	Version   = "0.2.0"
	BuildTime = "dev"
	appName   = "geobus-tap"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.LoadOrDefault(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()
	registry := metric.NewRegistry()

	client, err := connectBus(ctx, cfg, registry)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.EnsureStream(ctx, cfg.Stream.Stream()); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}

	metricsServer := startMetricsServer(cfg.Metrics, registry)
	if metricsServer != nil {
		defer func() { _ = metricsServer.Stop() }()
	}

	deps := consumer.Deps{
		Config:   cfg.Consumer,
		Manifold: cfg.Manifold,
		Client:   client,
		Registry: registry,
	}

	if cfg.Consumer.Archive {
		store, err := openArchive(ctx, cfg, client, registry)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		deps.Archive = store
	}

	tap, err := consumer.New(deps)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	return runWithSignalHandling(ctx, tap, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting geobus-tap (geometry stream consumer)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, false, nil
}

// connectBus builds the bus client from configuration and waits for the
// connection to be ready.
func connectBus(ctx context.Context, cfg *config.Config, registry *metric.Registry) (*bus.Client, error) {
	opts, err := cfg.Bus.Options()
	if err != nil {
		return nil, fmt.Errorf("bus options: %w", err)
	}
	opts = append(opts, bus.WithSlog(slog.Default()), bus.WithMetrics(registry))

	client, err := bus.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create bus client: %w", err)
	}

	slog.Info("Connecting to bus", "url", client.URL())
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to bus: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bus connection timeout: %w", err)
	}

	return client, nil
}

// openArchive builds the packet archive from the storage configuration.
func openArchive(
	ctx context.Context,
	cfg *config.Config,
	client *bus.Client,
	registry *metric.Registry,
) (*geomstore.Store, error) {
	storeCfg := geomstore.Config{
		Bucket:      cfg.Storage.Bucket,
		Compression: cfg.Storage.Compression,
		MaxBytes:    cfg.Storage.MaxBytes,
		Cache: cache.Config{
			Enabled:  cfg.Storage.CacheSize > 0,
			Strategy: cache.StrategyLRU,
			MaxSize:  cfg.Storage.CacheSize,
		},
	}

	store, err := geomstore.NewWithMetrics(ctx, client, storeCfg, registry)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	slog.Info("Packet archive open", "bucket", store.Bucket())
	return store, nil
}

// startMetricsServer exposes the registry for scrapes when metrics are
// enabled. Returns nil when disabled.
func startMetricsServer(cfg config.MetricsConfig, registry *metric.Registry) *metric.Server {
	if !cfg.Enabled {
		return nil
	}

	server := metric.NewServer(cfg.Port, cfg.Path, registry)
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Metrics server listening", "address", server.Address())
	return server
}

// runWithSignalHandling starts the consumer and blocks until a shutdown
// signal arrives.
func runWithSignalHandling(ctx context.Context, tap *consumer.Consumer, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := tap.Start(signalCtx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	slog.Info("geobus-tap started", "durable", tap.Durable())

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := tap.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("geobus-tap shutdown complete")
	return nil
}
