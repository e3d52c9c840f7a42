// Package config loads and validates the service configuration from a YAML file
// with environment variable overrides (MITRA_QUANT_* prefix).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Backend   BackendConfig   `mapstructure:"backend"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Liquidity LiquidityConfig `mapstructure:"liquidity"`
	Server    ServerConfig    `mapstructure:"server"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// BackendConfig holds the Mitra backend API configuration
type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// CacheConfig holds the market state history cache configuration
type CacheConfig struct {
	MaxEvents           int           `mapstructure:"max_events"`
	MaxHistorySize      int           `mapstructure:"max_history_size"`
	FilePath            string        `mapstructure:"file_path"`
	PersistenceInterval time.Duration `mapstructure:"persistence_interval"`
}

// LiquidityConfig holds the bounds for the AMM liquidity parameter (b)
type LiquidityConfig struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// ServerConfig holds the HTTP API configuration
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Enabled bool   `mapstructure:"enabled"`
}

// AlertsConfig holds volatility alerting behavior
type AlertsConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	VolatilityThreshold float64       `mapstructure:"volatility_threshold"`
	Cooldown            time.Duration `mapstructure:"cooldown"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	FilePath string `mapstructure:"file_path"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("MITRA_QUANT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:50051")
	v.SetDefault("backend.poll_interval", "3s")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("backend.retry_delay_base", "1s")

	// Cache defaults
	v.SetDefault("cache.max_events", 500)
	v.SetDefault("cache.max_history_size", 1000)
	v.SetDefault("cache.file_path", "")
	v.SetDefault("cache.persistence_interval", "5m")

	// Liquidity bounds
	v.SetDefault("liquidity.min", 50.0)
	v.SetDefault("liquidity.max", 1000.0)

	// Server defaults
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.enabled", true)

	// Alert defaults
	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.volatility_threshold", 0.2)
	v.SetDefault("alerts.cooldown", "30m")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file_path", "")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.PollInterval < 1*time.Second {
		return fmt.Errorf("backend.poll_interval must be at least 1 second")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Backend.MaxRetries < 1 {
		return fmt.Errorf("backend.max_retries must be at least 1")
	}

	if c.Cache.MaxEvents < 1 {
		return fmt.Errorf("cache.max_events must be at least 1")
	}
	if c.Cache.MaxHistorySize < 1 {
		return fmt.Errorf("cache.max_history_size must be at least 1")
	}
	if c.Cache.FilePath != "" && c.Cache.PersistenceInterval < 10*time.Second {
		return fmt.Errorf("cache.persistence_interval must be at least 10 seconds")
	}

	if c.Liquidity.Min <= 0 {
		return fmt.Errorf("liquidity.min must be positive")
	}
	if c.Liquidity.Max <= c.Liquidity.Min {
		return fmt.Errorf("liquidity.max must be greater than liquidity.min")
	}

	if c.Server.Enabled && c.Server.Address == "" {
		return fmt.Errorf("server.address is required when server is enabled")
	}

	if c.Alerts.Enabled {
		if c.Alerts.VolatilityThreshold <= 0 || c.Alerts.VolatilityThreshold > 1.0 {
			return fmt.Errorf("alerts.volatility_threshold must be in (0.0, 1.0]")
		}
		if c.Alerts.Cooldown < 1*time.Minute {
			return fmt.Errorf("alerts.cooldown must be at least 1 minute")
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
