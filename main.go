package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pattern-engine/config"
	"pattern-engine/internal/analytics"
	"pattern-engine/internal/api"
	"pattern-engine/internal/auth"
	"pattern-engine/internal/cache"
	"pattern-engine/internal/candles"
	"pattern-engine/internal/events"
	"pattern-engine/internal/logging"
	"pattern-engine/internal/patterns"
	"pattern-engine/internal/scanner"
	"pattern-engine/internal/signals"
	"pattern-engine/internal/strategies"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "generate-config" {
		if err := config.GenerateSampleConfig("config.json"); err != nil {
			log.Fatalf("Failed to generate sample config: %v", err)
		}
		log.Println("Sample configuration written to config.json")
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(logging.Config{
		Level:   cfg.LoggingConfig.Level,
		Console: cfg.LoggingConfig.Console,
	})
	logger.Info().Msg("Structured logging initialized")

	if cfg.AuthConfig.JWTSecret == "" {
		logger.Fatal().Msg("AUTH_JWT_SECRET is required")
	}

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info().Msg("Event bus initialized")

	// Signal store and strategy registry
	store := signals.NewMemoryStore()
	registry := strategies.NewRegistry()
	for _, seed := range cfg.StrategySeeds {
		registry.Add(strategies.Strategy{
			ID:        seed.ID,
			UserID:    seed.UserID,
			Name:      seed.Name,
			CreatedAt: time.Now().UTC(),
		})
	}
	if len(cfg.StrategySeeds) > 0 {
		logger.Info().Int("count", len(cfg.StrategySeeds)).Msg("Seeded strategies from configuration")
	}

	// Candle supplier and pattern detectors
	supplier := candles.NewHTTPSupplier(cfg.CandlesConfig.BaseURL, time.Duration(cfg.CandlesConfig.Timeout)*time.Second)
	detectors := patterns.NewRegistry()

	// Detection service
	service := signals.NewService(store, supplier, detectors, registry, eventBus, logger)

	// Analytics with a cache backend chosen by configuration
	var metricsCache cache.Cache[analytics.PatternPerformanceMetrics]
	if cfg.RedisConfig.Enabled {
		redisCache, err := cache.NewRedisCache[analytics.PatternPerformanceMetrics](cache.RedisConfig{
			Enabled:   cfg.RedisConfig.Enabled,
			Address:   cfg.RedisConfig.Address,
			Password:  cfg.RedisConfig.Password,
			DB:        cfg.RedisConfig.DB,
			PoolSize:  cfg.RedisConfig.PoolSize,
			KeyPrefix: cfg.RedisConfig.KeyPrefix,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize Redis cache")
		}
		defer redisCache.Close()
		metricsCache = redisCache
	} else {
		metricsCache = cache.NewMemoryCache[analytics.PatternPerformanceMetrics]()
	}
	analyzer := analytics.NewAnalyzer(store, metricsCache, logger)
	backtester := analytics.NewBacktestEngine(store, logger)

	// Background scanner
	var sc *scanner.Scanner
	if cfg.ScannerConfig.Enabled {
		sc = scanner.NewScanner(service, eventBus, scanner.Config{
			Enabled:      true,
			ScanInterval: time.Duration(cfg.ScannerConfig.ScanInterval) * time.Second,
			WorkerCount:  cfg.ScannerConfig.WorkerCount,
			CandleLimit:  cfg.ScannerConfig.CandleLimit,
			StrategyIDs:  cfg.ScannerConfig.StrategyIDs,
			Symbols:      cfg.ScannerConfig.Symbols,
			Timeframes:   cfg.ScannerConfig.Timeframes,
		}, logger)
		sc.Start()
		logger.Info().
			Int("workers", cfg.ScannerConfig.WorkerCount).
			Strs("symbols", cfg.ScannerConfig.Symbols).
			Msg("Scanner started")
	}

	// HTTP API
	jwtManager := auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.AccessTokenDuration)
	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowedOrigins: splitOrigins(cfg.ServerConfig.AllowedOrigins),
	}, service, analyzer, backtester, sc, registry, eventBus, jwtManager, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	logger.Info().Int("port", cfg.ServerConfig.Port).Msg("API server started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error().Err(err).Msg("API server stopped unexpectedly")
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	if sc != nil {
		sc.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	logger.Info().Msg("Shutdown complete")
}

func splitOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
