// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/valuator/internal/modules/accumulation"
	"github.com/aristath/valuator/internal/scheduler"
	"github.com/joho/godotenv"
)

// Performance cache backends
const (
	CacheSQLite = "sqlite"
	CacheNone   = "none"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	PriceTimeout time.Duration
	FxTimeout    time.Duration

	PerformanceCache   string // sqlite or none
	PerformanceMaxDays int

	AlphaVantageAPIKey        string
	AlphaVantageRatePerMinute int
	ExchangeRateBaseURL       string
	DividendTaxRates          string // e.g. "USD=0.30,AUD=0.15"

	ClientDataCleanupSchedule string
	WALCheckpointSchedule     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("VALUATOR_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		PriceTimeout: getEnvAsDuration("PRICE_TIMEOUT", 180*time.Second),
		FxTimeout:    getEnvAsDuration("FX_TIMEOUT", 30*time.Second),

		PerformanceCache:   strings.ToLower(getEnv("PERFORMANCE_CACHE", CacheSQLite)),
		PerformanceMaxDays: getEnvAsInt("PERFORMANCE_MAX_DAYS", 366),

		AlphaVantageAPIKey:        getEnv("ALPHAVANTAGE_API_KEY", ""),
		AlphaVantageRatePerMinute: getEnvAsInt("ALPHAVANTAGE_RATE_PER_MINUTE", 5),
		ExchangeRateBaseURL:       getEnv("EXCHANGERATE_BASE_URL", "https://api.exchangerate-api.com/v4/latest"),
		DividendTaxRates:          getEnv("DIVIDEND_TAX_RATES", ""),

		ClientDataCleanupSchedule: getEnv("CLIENT_DATA_CLEANUP_SCHEDULE", "0 3 * * *"),
		WALCheckpointSchedule:     getEnv("WAL_CHECKPOINT_SCHEDULE", "*/30 * * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PriceTimeout <= 0 || c.FxTimeout <= 0 {
		return fmt.Errorf("price and fx timeouts must be positive")
	}
	switch c.PerformanceCache {
	case CacheSQLite, CacheNone:
	default:
		return fmt.Errorf("PERFORMANCE_CACHE must be %q or %q, got %q", CacheSQLite, CacheNone, c.PerformanceCache)
	}
	if c.PerformanceMaxDays <= 0 {
		return fmt.Errorf("PERFORMANCE_MAX_DAYS must be positive")
	}
	if _, err := c.TaxRates(); err != nil {
		return fmt.Errorf("DIVIDEND_TAX_RATES: %w", err)
	}
	if err := scheduler.ValidateSchedule(c.ClientDataCleanupSchedule); err != nil {
		return fmt.Errorf("CLIENT_DATA_CLEANUP_SCHEDULE: %w", err)
	}
	if err := scheduler.ValidateSchedule(c.WALCheckpointSchedule); err != nil {
		return fmt.Errorf("WAL_CHECKPOINT_SCHEDULE: %w", err)
	}
	return nil
}

// TaxRates parses DividendTaxRates
func (c *Config) TaxRates() (accumulation.TaxRates, error) {
	if strings.TrimSpace(c.DividendTaxRates) == "" {
		return accumulation.TaxRates{}, nil
	}
	return accumulation.ParseTaxRates(c.DividendTaxRates)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
