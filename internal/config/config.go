package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/pairchain.db"`
	RedisURL string     `env:"REDIS_URL"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`

	// AllowedOrigins are host patterns (filepath.Match globs) whose pages may
	// open the play websocket. Same-host requests are always allowed.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// Chain sync is off when RPCURL is empty.
	RPCURL          string `env:"RPC_URL"`
	ContractAddress string `env:"CONTRACT_ADDRESS"`
	ChainID         int64  `env:"CHAIN_ID"`

	WalletPrivateKey       string `env:"WALLET_PRIVATE_KEY"`
	WalletKeystoreDir      string `env:"WALLET_KEYSTORE_DIR"`
	WalletKeystorePassword string `env:"WALLET_KEYSTORE_PASSWORD"`

	DefaultPairs   int           `env:"DEFAULT_PAIRS" envDefault:"4"`
	MaxPairs       int           `env:"MAX_PAIRS" envDefault:"12"`
	CardImages     []string      `env:"CARD_IMAGES" envSeparator:","`
	ConfirmTimeout time.Duration `env:"CONFIRM_TIMEOUT" envDefault:"2m"`
	ConfirmWorkers int           `env:"CONFIRM_WORKERS" envDefault:"4"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
}

// Load reads envFiles (".env" when none are given) into the process
// environment without overriding variables already set, then parses it.
// Missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MaxPairs < 1 {
		return fmt.Errorf("MAX_PAIRS must be positive, got %d", c.MaxPairs)
	}
	if len(c.CardImages) > 0 && len(c.CardImages) < c.MaxPairs {
		return fmt.Errorf("CARD_IMAGES has %d images, MAX_PAIRS needs %d", len(c.CardImages), c.MaxPairs)
	}
	if c.DefaultPairs < 1 || c.DefaultPairs > c.MaxPairs {
		return fmt.Errorf("DEFAULT_PAIRS must be in 1..%d, got %d", c.MaxPairs, c.DefaultPairs)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("IDLE_TIMEOUT must be positive, got %s", c.IdleTimeout)
	}
	if c.RPCURL != "" && c.ContractAddress == "" {
		return errors.New("CONTRACT_ADDRESS is required when RPC_URL is set")
	}
	if c.WalletPrivateKey != "" && c.WalletKeystoreDir != "" {
		return errors.New("set only one of WALLET_PRIVATE_KEY and WALLET_KEYSTORE_DIR")
	}
	return nil
}

// Images returns the card faces to deal from, MaxPairs of them.
func (c *Config) Images() []string {
	if len(c.CardImages) == 0 {
		return nil
	}
	return c.CardImages[:c.MaxPairs]
}
