package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"snwatch/config"
	"snwatch/db"
	"snwatch/handlers"
	"snwatch/logger"
	"snwatch/models"
	"snwatch/monitor"
	"snwatch/notify"
	"snwatch/repository"
	"snwatch/rewards"
	"snwatch/routers"
	"snwatch/rpc"
	"snwatch/snapshot"
)

func stakePolicy(cfg config.StakingConfig) rewards.StakePolicy {
	if cfg.Policy == "breakpoints" {
		points := make([]rewards.Breakpoint, len(cfg.Breakpoints))
		for i, bp := range cfg.Breakpoints {
			points[i] = rewards.Breakpoint{Height: bp.Height, Amount: bp.Amount}
		}
		return rewards.NewBreakpointPolicy(points)
	}
	return rewards.ExponentialPolicy{ForkHeight: cfg.ForkHeight}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Logger.Info("Starting service node watcher...")

	var minVersion models.Version
	if cfg.Monitor.MinVersion != "" {
		v, err := models.ParseVersion(cfg.Monitor.MinVersion)
		if err != nil {
			return fmt.Errorf("monitor.min_version: %w", err)
		}
		minVersion = v
	}

	// Subscription store
	conn, err := db.OpenSQL(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open subscription store: %w", err)
	}
	if sqlDB, err := conn.DB(); err == nil {
		defer sqlDB.Close()
	}
	subs := repository.NewSubscriptionRepository(conn)

	// Snapshot cache
	ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		return fmt.Errorf("open snapshot cache: %w", err)
	}
	defer ldb.Close()
	cache := repository.NewSnapshotCache(ldb)
	if cfg.RPC.TestnetURL == "" {
		if err := cache.DeleteSnapshot(true); err != nil {
			logger.Logger.Warn("Failed to drop cached testnet snapshot", zap.Error(err))
		}
	}
	holder := snapshot.NewHolder(cache)
	if err := holder.Warm(); err != nil {
		logger.Logger.Warn("Failed to load cached snapshots", zap.Error(err))
	}

	// Network sources
	var testnetSource snapshot.Source
	if cfg.RPC.TestnetURL != "" {
		testnetSource = rpc.NewClient(cfg.RPC.TestnetURL, cfg.RPC.Timeout)
	}
	fetcher := snapshot.NewFetcher(rpc.NewClient(cfg.RPC.MainnetURL, cfg.RPC.Timeout), testnetSource)

	// Notifications
	var backends []notify.Backend
	for _, b := range []notify.Backend{
		notify.NewTelegram(cfg.Telegram.APIURL, cfg.Telegram.Token),
		notify.NewDiscord(cfg.Discord.APIURL, cfg.Discord.Token),
	} {
		if b.Ready() {
			backends = append(backends, b)
			logger.Logger.Info("Notification backend enabled", zap.String("backend", b.Name()))
		}
	}
	if len(backends) == 0 {
		logger.Logger.Warn("No notification backend configured; changes will be retried until one is")
	}
	dispatcher := notify.NewDispatcher(backends,
		notify.WithRateLimit(cfg.Notify.RatePerSecond, cfg.Notify.Burst),
		notify.WithCleaner(subs),
		notify.WithLinks(notify.ExplorerLinks(cfg.Explorer.Mainnet, cfg.Explorer.Testnet)),
	)

	// Monitor
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engine := monitor.NewEngine(subs, fetcher, dispatcher,
		monitor.Config{
			MinVersion:              minVersion,
			ObsoleteRepeat:          cfg.Monitor.ObsoleteRepeat,
			ExpiryThresholds:        cfg.Monitor.ExpiryThresholds,
			TestnetExpiryThresholds: cfg.Monitor.TestnetExpiryThresholds,
		},
		monitor.WithPublisher(holder),
		monitor.WithMetrics(monitor.NewMetrics(registry)),
	)
	poller := monitor.NewPoller(engine, cfg.Monitor.Interval, cfg.Monitor.TickTimeout)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	// HTTP API
	calc := rewards.NewCalculator(stakePolicy(cfg.Staking), cfg.Staking.TestnetRequirement)
	h := handlers.NewHandler(subs, holder, calc)
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()
	logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))

	<-ctx.Done()
	logger.Logger.Info("Shutdown signal received, waiting for the current tick...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Warn("Server shutdown", zap.Error(err))
	}
	logger.Logger.Info("Stopped")
	return nil
}
