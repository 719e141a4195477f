package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/focusgate/focusgate/internal/guard/common/clock"
	"github.com/focusgate/focusgate/internal/guard/common/log"
	"github.com/focusgate/focusgate/internal/guard/config"
	"github.com/focusgate/focusgate/internal/guard/gateways/httpapi"
	"github.com/focusgate/focusgate/internal/guard/gateways/kvstore"
	"github.com/focusgate/focusgate/internal/guard/repos/bypass"
	"github.com/focusgate/focusgate/internal/guard/repos/rules"
	"github.com/focusgate/focusgate/internal/guard/repos/stats"
	"github.com/focusgate/focusgate/internal/guard/services/coordinator"
	"github.com/focusgate/focusgate/internal/guard/services/pagewatch"
)

const (
	version = "0.1.0-dev"
	appName = "focusgated"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the daemon.
type Application struct {
	config  *config.AppConfig
	store   kvstore.Store
	coord   *coordinator.Service
	watcher *pagewatch.Watcher
	server  *httpapi.Server
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.LogLevel,
		"http_addr": cfg.HTTPAddr,
		"db_path":   cfg.DBPath,
	}, "Starting FocusGate daemon")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, "FocusGate daemon stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	store, err := kvstore.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	ruleRepo, err := rules.New(store, logger, cfg.BloomFPRate)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule store: %w", err)
	}

	statsRepo, err := stats.New(store, logger, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build statistics store: %w", err)
	}

	coord, err := coordinator.New(coordinator.Options{
		Store:  store,
		Rules:  ruleRepo,
		Stats:  statsRepo,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build coordinator: %w", err)
	}

	watcher, err := pagewatch.New(pagewatch.Options{
		Store:            store,
		Rules:            ruleRepo,
		Bypass:           bypass.New(),
		Coordinator:      coord,
		Clock:            clk,
		Logger:           logger,
		VerdictCacheSize: cfg.VerdictCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build page watcher: %w", err)
	}

	log.Info(map[string]any{
		"rules":         ruleRepo.Len(),
		"verdict_cache": cfg.VerdictCacheSize,
		"bloom_fp_rate": cfg.BloomFPRate,
	}, "Rule store initialized")

	server := httpapi.New(cfg.HTTPAddr, coord, watcher, logger)

	return &Application{
		config:  cfg,
		store:   store,
		coord:   coord,
		watcher: watcher,
		server:  server,
	}, nil
}

// Run starts the background loops and the HTTP endpoint, blocking until ctx
// is cancelled.
func (app *Application) Run(ctx context.Context) error {
	go app.coord.Run(ctx)
	go app.watcher.Run(ctx)
	go app.watcher.Manager().Run(ctx)

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.server.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("HTTP endpoint failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during HTTP shutdown")
	}
	if err := app.store.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing store")
	}

	log.Info(nil, "Graceful shutdown completed")
	return nil
}
