// Package config loads process configuration from config.json with
// environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerConfig  ServerConfig  `json:"server"`
	AuthConfig    AuthConfig    `json:"auth"`
	CandlesConfig CandlesConfig `json:"candles"`
	ScannerConfig ScannerConfig `json:"scanner"`
	RedisConfig   RedisConfig   `json:"redis"`
	LoggingConfig LoggingConfig `json:"logging"`

	// StrategySeeds preloads strategies at startup so the scanner has
	// something to scan before any user registers one over the API.
	StrategySeeds []StrategySeed `json:"strategy_seeds"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // comma separated
	ProductionMode  bool   `json:"production_mode"`
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds JWT authentication configuration
type AuthConfig struct {
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

// CandlesConfig holds the upstream candle service configuration
type CandlesConfig struct {
	BaseURL string `json:"base_url"`
	Timeout int    `json:"timeout"` // Seconds
}

// ScannerConfig holds periodic bulk-detection configuration
type ScannerConfig struct {
	Enabled      bool     `json:"enabled"`
	ScanInterval int      `json:"scan_interval"` // Seconds between scans
	WorkerCount  int      `json:"worker_count"`
	CandleLimit  int      `json:"candle_limit"`
	Symbols      []string `json:"symbols"`
	Timeframes   []string `json:"timeframes"`
	StrategyIDs  []string `json:"strategy_ids"`
}

// RedisConfig holds Redis configuration for the metrics cache
type RedisConfig struct {
	Enabled   bool   `json:"enabled"`
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	PoolSize  int    `json:"pool_size"`
	KeyPrefix string `json:"key_prefix"`
}

// LoggingConfig holds structured logging configuration
type LoggingConfig struct {
	Level   string `json:"level"`   // debug, info, warn, error
	Console bool   `json:"console"` // human-readable output instead of JSON
}

// StrategySeed is a strategy created at startup.
type StrategySeed struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides; these take
// precedence over config.json.
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", valueOr(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", valueOrStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("SERVER_PRODUCTION_MODE", boolStr(cfg.ServerConfig.ProductionMode)) == "true"
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", valueOr(cfg.ServerConfig.ShutdownTimeout, 10))

	// Auth config
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", valueOrDur(cfg.AuthConfig.AccessTokenDuration, 15*time.Minute))

	// Candle service config
	cfg.CandlesConfig.BaseURL = getEnvOrDefault("CANDLES_BASE_URL", valueOrStr(cfg.CandlesConfig.BaseURL, "http://localhost:9000"))
	cfg.CandlesConfig.Timeout = getEnvIntOrDefault("CANDLES_TIMEOUT", valueOr(cfg.CandlesConfig.Timeout, 10))

	// Scanner config
	cfg.ScannerConfig.Enabled = getEnvOrDefault("SCANNER_ENABLED", boolStr(cfg.ScannerConfig.Enabled)) == "true"
	cfg.ScannerConfig.ScanInterval = getEnvIntOrDefault("SCANNER_INTERVAL", valueOr(cfg.ScannerConfig.ScanInterval, 300))
	cfg.ScannerConfig.WorkerCount = getEnvIntOrDefault("SCANNER_WORKER_COUNT", valueOr(cfg.ScannerConfig.WorkerCount, 4))
	cfg.ScannerConfig.CandleLimit = getEnvIntOrDefault("SCANNER_CANDLE_LIMIT", valueOr(cfg.ScannerConfig.CandleLimit, 100))
	if symbols := getEnvOrDefault("SCANNER_SYMBOLS", ""); symbols != "" {
		cfg.ScannerConfig.Symbols = splitList(symbols)
	}
	if timeframes := getEnvOrDefault("SCANNER_TIMEFRAMES", ""); timeframes != "" {
		cfg.ScannerConfig.Timeframes = splitList(timeframes)
	}

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", valueOrStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", valueOr(cfg.RedisConfig.PoolSize, 10))
	cfg.RedisConfig.KeyPrefix = getEnvOrDefault("REDIS_KEY_PREFIX", valueOrStr(cfg.RedisConfig.KeyPrefix, "pattern-engine"))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", valueOrStr(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.Console = getEnvOrDefault("LOG_CONSOLE", boolStr(cfg.LoggingConfig.Console)) == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func valueOr(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func valueOrStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func valueOrDur(v, fallback time.Duration) time.Duration {
	if v != 0 {
		return v
	}
	return fallback
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "http://localhost:5173",
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			JWTSecret:           "change_me",
			AccessTokenDuration: 15 * time.Minute,
		},
		CandlesConfig: CandlesConfig{
			BaseURL: "http://localhost:9000",
			Timeout: 10,
		},
		ScannerConfig: ScannerConfig{
			Enabled:      true,
			ScanInterval: 300,
			WorkerCount:  4,
			CandleLimit:  100,
			Symbols:      []string{"BTCUSDT", "ETHUSDT"},
			Timeframes:   []string{"1h", "4h"},
		},
		RedisConfig: RedisConfig{
			Enabled:   false,
			Address:   "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "pattern-engine",
		},
		LoggingConfig: LoggingConfig{
			Level: "info",
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
