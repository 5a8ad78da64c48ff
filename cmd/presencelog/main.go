// Package main is the entrypoint for the presencelog server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"presencelog/internal/cache"
	"presencelog/internal/config"
	"presencelog/internal/graph"
	"presencelog/internal/httpclient"
	"presencelog/internal/identity"
	"presencelog/internal/logutil"
	"presencelog/internal/poller"
	"presencelog/internal/server"
	"presencelog/internal/store"

	// Register cache drivers
	_ "presencelog/internal/cache/loader"
	// Register store drivers
	_ "presencelog/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	externalBasePath := flag.String("external-base-path", "", "External base path (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config)")
	pollInterval := flag.String("poll-interval", "", "Poll interval in seconds (overrides config)")
	groupID := flag.String("group-id", "", "Directory group to poll (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: debug, info, warn, error (overrides config)")
	once := flag.Bool("once", false, "Run a single collection cycle and exit")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:       listenAddr,
			ExternalBasePath: externalBasePath,
			StoreDriver:      storeDriver,
			DataDir:          dataDir,
			PollInterval:     pollInterval,
			GroupID:          groupID,
			LoggingLevel:     loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logutil.ParseLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	// Persistence
	if err := os.MkdirAll(cfg.Store.DataDir, 0o750); err != nil {
		logger.Error("failed to create data directory", "path", cfg.Store.DataDir, "error", err)
		os.Exit(1)
	}
	driver, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
	})
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if err := driver.Init(context.Background()); err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	presenceStore, ok := driver.(store.PresenceStore)
	if !ok {
		logger.Error("store driver does not support presence operations", "driver", driver.Name())
		os.Exit(1)
	}

	// Cache (defaults to in-memory if not configured)
	cacheDriver := cfg.Cache.Driver
	if cacheDriver == "" {
		cacheDriver = "memory"
	}
	cacheInstance, err := cache.NewFromConfig(cacheDriver, cfg.Cache.Drivers)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer cacheInstance.Close()

	// Outbound HTTP client and Graph directory client
	httpClient := httpclient.New(&cfg.OutboundHTTP)
	graphClient := graph.NewClient(&cfg.Graph, httpClient, logger)

	// Identity components and bootstrap admin
	partyRepo := identity.NewMemoryPartyRepo()
	sessionRepo := identity.NewMemorySessionRepo()
	userAuth := identity.NewUserAuth(12)

	bootstrap := identity.NewBootstrap(partyRepo, userAuth, logger)
	adminUsername := cfg.Server.BootstrapAdmin.Username
	if adminUsername == "" {
		adminUsername = "admin"
	}
	if err := bootstrap.EnsureAdmin(context.Background(), adminUsername, cfg.Server.BootstrapAdmin.Password); err != nil {
		logger.Error("failed to bootstrap admin", "error", err)
		os.Exit(1)
	}

	p := poller.New(graphClient, presenceStore, cacheInstance, poller.Options{
		Interval:     cfg.Poll.Interval(),
		CycleTimeout: cfg.Poll.CycleTimeout(),
		Concurrency:  cfg.Poll.Concurrency,
		MaxGap:       cfg.Poll.MaxGap(),
		BatchSize:    cfg.Poll.BatchSize,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		report, err := p.RunCycle(ctx, time.Now())
		if err != nil {
			logger.Error("collection cycle failed", "error", err)
			os.Exit(1)
		}
		logger.Info("single cycle finished",
			"members", report.Members,
			"stored", report.Stored,
			"skipped", report.Skipped,
			"failed", report.Failed)
		return
	}

	var wg sync.WaitGroup
	if cfg.Poll.IsEnabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
	} else {
		logger.Info("poll scheduler disabled, serving queries only")
	}

	srv, err := server.New(cfg, logger, &server.Deps{
		PartyRepo:   partyRepo,
		SessionRepo: sessionRepo,
		UserAuth:    userAuth,
		Store:       presenceStore,
		Cache:       cacheInstance,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Let an in-flight poll cycle drain before closing the store.
	wg.Wait()
	logger.Info("server stopped")
}
