package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mitra-labs/mitra-quant/internal/backend"
	"github.com/mitra-labs/mitra-quant/internal/cache"
	"github.com/mitra-labs/mitra-quant/internal/config"
	"github.com/mitra-labs/mitra-quant/internal/logger"
	"github.com/mitra-labs/mitra-quant/internal/poller"
	"github.com/mitra-labs/mitra-quant/internal/quant"
	"github.com/mitra-labs/mitra-quant/internal/server"
	"github.com/mitra-labs/mitra-quant/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FilePath)
	logger.Info("Configuration loaded from %s", *configPath)

	// History cache, restored from disk when persistence is configured.
	histCache := cache.New(cfg.Cache.MaxEvents, cfg.Cache.MaxHistorySize, cfg.Cache.FilePath)
	if err := histCache.Load(); err != nil {
		logger.Warn("Failed to restore cache from %s: %v", cfg.Cache.FilePath, err)
	} else if histCache.Size() > 0 {
		logger.Info("Restored %d snapshots across %d events", histCache.Size(), histCache.EventCount())
	}

	backendClient := backend.NewClient(
		cfg.Backend.BaseURL,
		cfg.Backend.Timeout,
		cfg.Backend.MaxRetries,
		cfg.Backend.RetryDelayBase,
	)

	predictor := quant.NewPricePredictor()
	optimizer := quant.NewLiquidityOptimizer(cfg.Liquidity.Min, cfg.Liquidity.Max)
	forecaster := quant.NewDemandForecaster(quant.DefaultWindowSize)

	var notifier poller.Notifier
	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	p := poller.New(backendClient, histCache, optimizer, notifier, poller.Options{
		Interval:            cfg.Backend.PollInterval,
		AlertsEnabled:       cfg.Alerts.Enabled && cfg.Telegram.Enabled,
		VolatilityThreshold: cfg.Alerts.VolatilityThreshold,
		AlertCooldown:       cfg.Alerts.Cooldown,
		PersistenceInterval: cfg.Cache.PersistenceInterval,
	})

	logger.Info("Starting ingestion poller (interval: %v, max_events: %d, max_history_size: %d)",
		cfg.Backend.PollInterval, cfg.Cache.MaxEvents, cfg.Cache.MaxHistorySize)

	if cfg.Server.Enabled {
		go p.Run(ctx)

		srv := server.New(cfg.Server.Address, histCache, predictor, optimizer, forecaster, backendClient)
		if err := srv.Run(ctx); err != nil {
			logger.Error("HTTP server error: %v", err)
		}
	} else {
		p.Run(ctx)
	}

	if err := histCache.Save(); err != nil {
		logger.Error("Failed to persist cache on shutdown: %v", err)
	}
	logger.Info("Service stopped")
}
