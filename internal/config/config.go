package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken       string  `env:"TELEGRAM_BOT_TOKEN"`
		AllowedChatIDs []int64 `env:"ALLOWED_CHAT_IDS" envSeparator:","`
	}

	Database struct {
		Host     string `env:"DB_HOST"`
		Port     string `env:"DB_PORT" envDefault:"5432"`
		User     string `env:"DB_USER"`
		Password string `env:"DB_PASSWORD"`
		Name     string `env:"DB_NAME" envDefault:"copytrader"`
		SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	}

	EncryptionKey string `env:"COPYTRADER_ENCRYPTION_KEY"`

	DataDir      string        `env:"DATA_DIR" envDefault:"data"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"10s"`
	ErrorPause   time.Duration `env:"ERROR_PAUSE" envDefault:"30s"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	RequestsPerSec int           `env:"REQUESTS_PER_SEC" envDefault:"10"`

	// Risk limits applied to every slave account.
	MaxPositionSize float64 `env:"MAX_POSITION_SIZE" envDefault:"0"`
	MaxDrawdown     float64 `env:"MAX_DRAWDOWN" envDefault:"0"`
	RiskPercentage  float64 `env:"RISK_PERCENTAGE" envDefault:"100"`
}

// Load initializes configuration from environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive, got %s", c.SyncInterval)
	}
	if c.RequestsPerSec <= 0 {
		return fmt.Errorf("REQUESTS_PER_SEC must be positive, got %d", c.RequestsPerSec)
	}
	if c.MaxPositionSize < 0 {
		return fmt.Errorf("MAX_POSITION_SIZE must not be negative")
	}
	if c.MaxDrawdown < 0 || c.MaxDrawdown > 100 {
		return fmt.Errorf("MAX_DRAWDOWN must be between 0 and 100, got %v", c.MaxDrawdown)
	}
	if c.RiskPercentage <= 0 || c.RiskPercentage > 100 {
		return fmt.Errorf("RISK_PERCENTAGE must be in (0, 100], got %v", c.RiskPercentage)
	}
	return nil
}

// DatabaseConfigured reports whether a Postgres store should be used.
func (c *Config) DatabaseConfigured() bool {
	return c.Database.Host != ""
}
