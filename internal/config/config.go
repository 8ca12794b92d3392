// Package config loads the YAML configuration with defaults and
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// TokenEntry configures one tradable token.
type TokenEntry struct {
	Symbol       string `yaml:"symbol" validate:"required"`
	ChainAddress string `yaml:"chain_address" validate:"required"`
	Decimals     int    `yaml:"decimals" validate:"gte=0,lte=18"`
}

// Config is the full application configuration.
type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production"`

	Aggregator struct {
		QuoteBaseURL   string        `yaml:"quote_base_url" default:"https://quote-api.jup.ag/v6"`
		PriceBaseURL   string        `yaml:"price_base_url" default:"https://price.jup.ag/v4"`
		Timeout        time.Duration `yaml:"timeout" default:"15s"`
		RateLimitRPS   float64       `yaml:"rate_limit_rps" default:"5"`
		RateLimitBurst int           `yaml:"rate_limit_burst" default:"5"`
	} `yaml:"aggregator"`

	RPC struct {
		Endpoint       string        `yaml:"endpoint" default:"https://api.mainnet-beta.solana.com"`
		WSEndpoint     string        `yaml:"ws_endpoint"`
		Commitment     string        `yaml:"commitment" default:"confirmed" validate:"oneof=processed confirmed finalized"`
		ConfirmTimeout time.Duration `yaml:"confirm_timeout" default:"60s"`
		PollInterval   time.Duration `yaml:"poll_interval" default:"1s"`
	} `yaml:"rpc"`

	Quotes struct {
		Debounce        time.Duration `yaml:"debounce" default:"800ms"`
		RefreshInterval time.Duration `yaml:"refresh_interval" default:"10s"`
		MaxQuoteAge     time.Duration `yaml:"max_quote_age" default:"30s"`
		SlippageBps     int           `yaml:"slippage_bps" default:"50" validate:"gte=0,lte=10000"`
	} `yaml:"quotes"`

	Security struct {
		MaxOps               int           `yaml:"max_ops" default:"5" validate:"gt=0"`
		Window               time.Duration `yaml:"window" default:"1m"`
		LargeAmountThreshold float64       `yaml:"large_amount_threshold" default:"100"`
		Retention            time.Duration `yaml:"retention" default:"24h"`
		SwapMinAmount        float64       `yaml:"swap_min_amount" default:"0.001"`
		SwapMaxAmount        float64       `yaml:"swap_max_amount" default:"1000"`
	} `yaml:"security"`

	Storage struct {
		AttemptsBackend string `yaml:"attempts_backend" default:"memory" validate:"oneof=memory postgres"`
		PostgresDSN     string `yaml:"postgres_dsn"`
		ClickhouseDSN   string `yaml:"clickhouse_dsn"`
	} `yaml:"storage"`

	Metrics struct {
		Enabled    bool   `yaml:"enabled" default:"true"`
		ListenAddr string `yaml:"listen_addr" default:":9090"`
		Path       string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	} `yaml:"logging"`

	Tokens []TokenEntry `yaml:"tokens" validate:"dive"`
}

// Load reads a YAML config file, fills defaults and validates. An empty
// path yields the default configuration.
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables meant for secrets and per-deployment endpoints.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SOLSWAP_RPC_ENDPOINT"); v != "" {
		c.RPC.Endpoint = v
	}
	if v := os.Getenv("SOLSWAP_RPC_WS_ENDPOINT"); v != "" {
		c.RPC.WSEndpoint = v
	}
	if v := os.Getenv("SOLSWAP_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("SOLSWAP_CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("SOLSWAP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks the configuration against its struct tags plus the
// cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Storage.AttemptsBackend == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn is required when attempts_backend is postgres")
	}
	if c.Security.SwapMinAmount >= c.Security.SwapMaxAmount {
		return fmt.Errorf("security.swap_min_amount must be below swap_max_amount")
	}
	return nil
}
