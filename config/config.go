package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// HouseUserID is the seeded operator account that settlement banks the
// platform fee and breakage into. Matches the seed migration.
const defaultHouseUserID = "00000000-0000-0000-0000-000000000001"

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// Settlement configuration
	FeeRate        decimal.Decimal // platform fee withheld from the pool on settlement
	HouseUserID    uuid.UUID       // account that retains fee + breakage
	SettleInterval time.Duration   // settlement worker poll interval

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from the environment, with .env support
func load() (*Config, error) {
	// Missing .env is fine; real env vars take precedence anyway
	_ = godotenv.Load()

	config := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		FeeRate:        decimal.RequireFromString("0.02"),
		HouseUserID:    uuid.MustParse(defaultHouseUserID),
		SettleInterval: time.Minute,
		Environment:    os.Getenv("ENVIRONMENT"),
	}

	if rate := os.Getenv("FEE_RATE"); rate != "" {
		parsed, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("invalid FEE_RATE %q: %w", rate, err)
		}
		if parsed.IsNegative() || parsed.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("FEE_RATE must be in [0, 1), got %s", parsed)
		}
		config.FeeRate = parsed
	}

	if id := os.Getenv("HOUSE_USER_ID"); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid HOUSE_USER_ID %q: %w", id, err)
		}
		config.HouseUserID = parsed
	}

	if interval := os.Getenv("SETTLE_INTERVAL_SECONDS"); interval != "" {
		seconds, err := strconv.Atoi(interval)
		if err != nil || seconds < 1 {
			return nil, fmt.Errorf("invalid SETTLE_INTERVAL_SECONDS %q", interval)
		}
		config.SettleInterval = time.Duration(seconds) * time.Second
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}
