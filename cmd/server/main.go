// Command server is the hosting process for the equities signal pipeline:
// it loads configuration, opens the persisted-state directory, wires every
// component behind the explicit Core handle (spec Design Notes), starts
// the background jobs and the HTTP/WS surface, and waits for a shutdown
// signal. Exit codes follow spec §6: 64 invalid configuration, 65
// unreadable persisted state, 70 unrecoverable internal error, 74 I/O
// error on the data directory.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/indiatrader/core/internal/broker"
	"github.com/indiatrader/core/internal/config"
	"github.com/indiatrader/core/internal/core"
	"github.com/indiatrader/core/internal/database"
	"github.com/indiatrader/core/internal/events"
	"github.com/indiatrader/core/internal/locking"
	"github.com/indiatrader/core/internal/marketdata"
	"github.com/indiatrader/core/internal/models"
	"github.com/indiatrader/core/internal/orders"
	"github.com/indiatrader/core/internal/portfolio"
	"github.com/indiatrader/core/internal/scheduler"
	"github.com/indiatrader/core/internal/server"
	"github.com/indiatrader/core/internal/tracker"
	"github.com/indiatrader/core/pkg/logger"
)

const (
	exitOK               = 0
	exitInvalidConfig    = 64
	exitUnreadableState  = 65
	exitInternalError    = 70
	exitDataDirIOError   = 74
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(exitInvalidConfig)
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error().Err(err).Str("data_dir", cfg.DataDir).Msg("cannot create data directory")
		os.Exit(exitDataDirIOError)
	}

	predictionsDB, err := database.New(filepath.Join(cfg.DataDir, "predictions.db"))
	if err != nil {
		log.Error().Err(err).Msg("failed to open predictions database")
		os.Exit(exitDataDirIOError)
	}
	defer predictionsDB.Close()
	if err := database.MigratePredictions(predictionsDB); err != nil {
		log.Error().Err(err).Msg("failed to migrate predictions database")
		os.Exit(exitUnreadableState)
	}

	snapshotsDB, err := database.New(filepath.Join(cfg.DataDir, "snapshots.db"))
	if err != nil {
		log.Error().Err(err).Msg("failed to open snapshots database")
		os.Exit(exitDataDirIOError)
	}
	defer snapshotsDB.Close()
	if err := database.MigrateSnapshots(snapshotsDB); err != nil {
		log.Error().Err(err).Msg("failed to migrate snapshots database")
		os.Exit(exitUnreadableState)
	}

	ohlcvCacheDB, err := database.New(filepath.Join(cfg.DataDir, "ohlcv_cache.db"))
	if err != nil {
		log.Error().Err(err).Msg("failed to open OHLCV cache database")
		os.Exit(exitDataDirIOError)
	}
	defer ohlcvCacheDB.Close()
	if err := database.MigrateOHLCVCache(ohlcvCacheDB); err != nil {
		log.Error().Err(err).Msg("failed to migrate OHLCV cache database")
		os.Exit(exitUnreadableState)
	}

	ordersDB, err := database.New(filepath.Join(cfg.DataDir, "orders.db"))
	if err != nil {
		log.Error().Err(err).Msg("failed to open orders database")
		os.Exit(exitDataDirIOError)
	}
	defer ordersDB.Close()
	if err := database.MigrateOrders(ordersDB); err != nil {
		log.Error().Err(err).Msg("failed to migrate orders database")
		os.Exit(exitUnreadableState)
	}

	registryDir := filepath.Join(cfg.DataDir, "registry")
	if err := os.MkdirAll(registryDir, 0o755); err != nil {
		log.Error().Err(err).Msg("cannot create registry directory")
		os.Exit(exitDataDirIOError)
	}
	registry := models.NewRegistry(registryDir)
	if err := registry.LoadAll(); err != nil {
		log.Error().Err(err).Msg("failed to load model registry")
		os.Exit(exitUnreadableState)
	}

	trk := tracker.New()

	adapter := broker.NewCombinedAdapter(cfg.BrokerBaseURL, cfg.BrokerStreamURL, cfg.BrokerAPIKey, cfg.BrokerAPISecret, log)

	cache := marketdata.New(cfg.CacheTTL, cfg.CacheCapacity)
	bus := events.NewBus()
	streamMgr := marketdata.NewStreamManager(adapter, cache, bus, log)

	validator := orders.NewConfiguredSymbolValidator(cfg.Symbols)
	limits := orders.Limits{
		PaperSlippageBps: cfg.PaperSlippageBps,
		MaxOrderQuantity: cfg.MaxOrderQuantity,
		MaxPositionValue: cfg.MaxPositionValue,
	}
	router := orders.New(cfg.StartingCash, adapter, cache, validator, limits, log)

	snapshotter := portfolio.New(snapshotsDB, router, cfg.SnapshotRetention, log)

	c := core.New(cfg, log, registry, trk, cache, bus, streamMgr, router, snapshotter, adapter, predictionsDB)

	lockMgr := locking.NewManager()
	hours := scheduler.NewMarketHoursService(log)

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := sched.AddJob("0 */15 * * * *", snapshotter); err != nil {
		log.Error().Err(err).Msg("failed to register snapshotter job")
	}
	if err := sched.AddJob("0 0,5,10,15,20,25,30,35,40,45,50,55 9-15 * * MON-FRI", scheduler.NewSignalGenerationJob(scheduler.SignalGenerationConfig{
		Log:       log,
		Generator: c,
		DB:        predictionsDB,
		Hours:     hours,
		Symbols:   cfg.Symbols,
	})); err != nil {
		log.Error().Err(err).Msg("failed to register signal generation job")
	}
	if err := sched.AddJob("0 */10 * * * *", scheduler.NewHealthCheckJob(scheduler.HealthCheckConfig{
		Log:           log,
		LockManager:   lockMgr,
		PredictionsDB: predictionsDB,
		SnapshotsDB:   snapshotsDB,
		OHLCVCacheDB:  ohlcvCacheDB,
		OrdersDB:      ordersDB,
		StuckLockAge:  time.Hour,
	})); err != nil {
		log.Error().Err(err).Msg("failed to register health check job")
	}

	streamCtx, cancelStream := context.WithCancel(context.Background())
	defer cancelStream()
	go func() {
		if err := streamMgr.Start(streamCtx, cfg.Symbols); err != nil && streamCtx.Err() == nil {
			log.Error().Err(err).Msg("market-data stream manager exited")
		}
	}()

	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Core:    c,
		Config:  cfg,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server exited")
			os.Exit(exitInternalError)
		}
	}()

	log.Info().Int("port", cfg.Port).Str("data_dir", cfg.DataDir).Msg("signal pipeline started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	if _, err := snapshotter.Take(time.Now().UTC()); err != nil {
		log.Warn().Err(err).Msg("end-of-session snapshot failed")
	}

	cancelStream()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("shutdown complete")
	os.Exit(exitOK)
}
