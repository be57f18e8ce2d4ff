// Package config loads the bot configuration: a YAML file, then an optional
// .env file, then COINBOT_* environment variables for secrets and overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Trading  TradingConfig  `yaml:"trading"`
	State    StateConfig    `yaml:"state"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Notify   NotifyConfig   `yaml:"notify"`
	Paper    PaperConfig    `yaml:"paper"`
}

type ExchangeConfig struct {
	Name          string `yaml:"name"` // coinbase | paper
	RESTEndpoint  string `yaml:"rest_endpoint"`
	APIKey        string `yaml:"api_key"`
	APISecret     string `yaml:"api_secret"`
	APIPassphrase string `yaml:"api_passphrase"`
	ProductID     string `yaml:"product_id"`
	BaseCurrency  string `yaml:"base_currency"`
	QuoteCurrency string `yaml:"quote_currency"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	RetryCount    int    `yaml:"retry_count"`
}

type TradingConfig struct {
	IntervalMs     int    `yaml:"interval_ms"`
	BuyEnabled     bool   `yaml:"buy_enabled"`
	SellEnabled    bool   `yaml:"sell_enabled"`
	BaseIncrement  string `yaml:"base_increment"`
	QuoteIncrement string `yaml:"quote_increment"`
}

type StateConfig struct {
	Backend string `yaml:"backend"` // file | sqlite
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty logs to stderr only
}

type ServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

type PaperConfig struct {
	InitialBase  string `yaml:"initial_base"`
	InitialQuote string `yaml:"initial_quote"`
	StartPrice   string `yaml:"start_price"`
}

func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			Name:       "coinbase",
			ProductID:  "BTC-USD",
			TimeoutMs:  10000,
			RetryCount: 3,
		},
		Trading: TradingConfig{
			IntervalMs:     1000,
			BuyEnabled:     true,
			SellEnabled:    true,
			BaseIncrement:  "0.00000001",
			QuoteIncrement: "0.01",
		},
		State: StateConfig{
			Backend: "file",
			Path:    "coinbot_state.json",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "coinbot.log",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Paper: PaperConfig{
			InitialBase:  "0",
			InitialQuote: "1000",
			StartPrice:   "50000",
		},
	}
}

// Load reads the YAML file at path on top of Defaults and applies environment
// overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	// .env is optional
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides copies COINBOT_* variables over cfg. Malformed numeric or
// boolean values are errors naming the variable.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	setStr(&cfg.Exchange.Name, "COINBOT_EXCHANGE")
	setStr(&cfg.Exchange.RESTEndpoint, "COINBOT_REST_ENDPOINT")
	setStr(&cfg.Exchange.APIKey, "COINBOT_API_KEY")
	setStr(&cfg.Exchange.APISecret, "COINBOT_API_SECRET")
	setStr(&cfg.Exchange.APIPassphrase, "COINBOT_API_PASSPHRASE")
	setStr(&cfg.Exchange.ProductID, "COINBOT_PRODUCT_ID")

	errs = append(errs,
		setBool(&cfg.Trading.BuyEnabled, "COINBOT_BUY_ENABLED"),
		setBool(&cfg.Trading.SellEnabled, "COINBOT_SELL_ENABLED"),
		setInt(&cfg.Trading.IntervalMs, "COINBOT_INTERVAL_MS"),
	)

	setStr(&cfg.State.Backend, "COINBOT_STATE_BACKEND")
	setStr(&cfg.State.Path, "COINBOT_STATE_PATH")

	setStr(&cfg.Logging.Level, "COINBOT_LOG_LEVEL")
	setStr(&cfg.Logging.File, "COINBOT_LOG_FILE")

	errs = append(errs,
		setBool(&cfg.Server.Enabled, "COINBOT_SERVER_ENABLED"),
		setInt(&cfg.Server.Port, "COINBOT_SERVER_PORT"),
	)

	setStr(&cfg.Notify.TelegramToken, "COINBOT_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "COINBOT_TELEGRAM_CHAT_ID")

	return errors.Join(errs...)
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}

// Validate rejects configurations the bot cannot run with.
func (c *Config) Validate() error {
	var errs []string

	switch c.Exchange.Name {
	case "coinbase":
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" || c.Exchange.APIPassphrase == "" {
			errs = append(errs, "exchange: coinbase requires api_key, api_secret and api_passphrase")
		}
	case "paper":
		for name, v := range map[string]string{
			"paper.initial_base":  c.Paper.InitialBase,
			"paper.initial_quote": c.Paper.InitialQuote,
			"paper.start_price":   c.Paper.StartPrice,
		} {
			d, err := decimal.NewFromString(v)
			if err != nil || d.IsNegative() {
				errs = append(errs, fmt.Sprintf("%s: invalid amount %q", name, v))
			}
		}
		if d, err := decimal.NewFromString(c.Paper.StartPrice); err == nil && !d.IsPositive() {
			errs = append(errs, "paper.start_price: must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("exchange.name: unknown exchange %q", c.Exchange.Name))
	}

	if parts := strings.Split(c.Exchange.ProductID, "-"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		errs = append(errs, fmt.Sprintf("exchange.product_id: expected BASE-QUOTE, got %q", c.Exchange.ProductID))
	}
	if c.Trading.IntervalMs <= 0 {
		errs = append(errs, "trading.interval_ms: must be positive")
	}
	if _, err := incrementPlaces(c.Trading.BaseIncrement); err != nil {
		errs = append(errs, "trading.base_increment: "+err.Error())
	}
	if _, err := incrementPlaces(c.Trading.QuoteIncrement); err != nil {
		errs = append(errs, "trading.quote_increment: "+err.Error())
	}
	switch c.State.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("state.backend: unknown backend %q", c.State.Backend))
	}
	if c.State.Path == "" {
		errs = append(errs, "state.path: required")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port: invalid port %d", c.Server.Port))
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.Trading.IntervalMs) * time.Millisecond
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Exchange.TimeoutMs) * time.Millisecond
}

// BasePlaces is the number of decimals allowed in an order size.
func (c *Config) BasePlaces() int32 {
	n, _ := incrementPlaces(c.Trading.BaseIncrement)
	return n
}

// QuotePlaces is the number of decimals allowed in order funds.
func (c *Config) QuotePlaces() int32 {
	n, _ := incrementPlaces(c.Trading.QuoteIncrement)
	return n
}

// incrementPlaces turns an increment such as "0.01" into its decimal places.
func incrementPlaces(inc string) (int32, error) {
	d, err := decimal.NewFromString(inc)
	if err != nil {
		return 0, fmt.Errorf("invalid increment %q", inc)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("increment must be positive, got %q", inc)
	}
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return int32(len(s) - i - 1), nil
	}
	return 0, nil
}
