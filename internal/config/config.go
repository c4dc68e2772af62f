// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	WebhookAddr string `yaml:"webhook_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Trading groups the window machine and sizing knobs.
type Trading struct {
	Capital         float64          `yaml:"capital"`
	EntryOffset     float64          `yaml:"entry_offset"`
	ExitOffset      float64          `yaml:"exit_offset"`
	StopLossPoints  float64          `yaml:"stop_loss_points"`
	PriceIncrement  float64          `yaml:"price_increment"`
	EntryTTLMs      int              `yaml:"entry_ttl_ms"`
	WindowMs        int              `yaml:"window_ms"`
	LotSizes        map[string]int64 `yaml:"lot_sizes"`
	BrokeragePolicy string           `yaml:"brokerage_policy"`
	BrokerageRate   float64          `yaml:"brokerage_rate"`
	AllowAfterHours bool             `yaml:"allow_after_hours"`
	MissingPrice    string           `yaml:"missing_price_policy"`
	PriceWaitMs     int              `yaml:"price_wait_ms"`
}

// Market describes the venue calendar in its local timezone.
type Market struct {
	Timezone    string   `yaml:"timezone"`
	Days        []string `yaml:"days"`
	Start       string   `yaml:"start"`
	End         string   `yaml:"end"`
	Holidays    []string `yaml:"holidays"`
	ForceOpen   bool     `yaml:"force_open"`
	ForceClosed bool     `yaml:"force_closed"`
}

// Feed describes the live market-data source.
type Feed struct {
	Provider     string   `yaml:"provider"`
	Symbols      []string `yaml:"symbols"`
	WebsocketURL string   `yaml:"websocket_url"`
}

// Store configures snapshot persistence.
type Store struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Backtest configures replay runs.
type Backtest struct {
	TickStyle string `yaml:"tick_style"`
}

// Paper captures paper broker settings.
type Paper struct {
	JournalPath string `yaml:"journal_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Trading  Trading  `yaml:"trading"`
	Market   Market   `yaml:"market"`
	Feed     Feed     `yaml:"feed"`
	Store    Store    `yaml:"store"`
	Backtest Backtest `yaml:"backtest"`
	Paper    Paper    `yaml:"paper"`
}

// Default returns the canonical configuration.
func Default() *Config {
	return &Config{
		App: App{
			Name:        "windowtrader",
			Env:         "dev",
			MetricsAddr: ":9096",
			WebhookAddr: ":8087",
			LogLevel:    "info",
		},
		Trading: Trading{
			Capital:         20000,
			EntryOffset:     0.5,
			ExitOffset:      0.5,
			StopLossPoints:  0.5,
			PriceIncrement:  0.05,
			WindowMs:        60000,
			LotSizes:        map[string]int64{"NIFTY": 75, "BANKNIFTY": 35},
			BrokeragePolicy: "per_trade_rate",
			BrokerageRate:   0.0005,
			MissingPrice:    "use_seed",
			PriceWaitMs:     2000,
		},
		Market: Market{
			Timezone: "Asia/Kolkata",
			Start:    "09:15",
			End:      "15:30",
		},
		Feed:     Feed{Provider: "stub"},
		Backtest: Backtest{TickStyle: "ohlcPath"},
	}
}

// Load reads a YAML file from disk and hydrates a Config struct on top of
// the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Weekdays translates the configured day names into time.Weekday values.
func (m Market) Weekdays() ([]time.Weekday, error) {
	names := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
		"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
		"sat": time.Saturday,
	}
	out := make([]time.Weekday, 0, len(m.Days))
	for _, day := range m.Days {
		key := strings.ToLower(strings.TrimSpace(day))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := names[key]
		if !ok {
			return nil, fmt.Errorf("unknown market day %q", day)
		}
		out = append(out, d)
	}
	return out, nil
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	if c.Trading.Capital <= 0 {
		return fmt.Errorf("trading.capital must be positive")
	}
	if c.Trading.WindowMs <= 0 {
		return fmt.Errorf("trading.window_ms must be positive")
	}
	if len(c.Trading.LotSizes) == 0 {
		return fmt.Errorf("trading.lot_sizes must not be empty")
	}
	for underlying, lot := range c.Trading.LotSizes {
		if lot <= 0 {
			return fmt.Errorf("lot size for %s must be positive", underlying)
		}
	}
	switch c.Trading.BrokeragePolicy {
	case "per_trade_rate", "global_profit_share":
	default:
		return fmt.Errorf("unknown brokerage_policy %q", c.Trading.BrokeragePolicy)
	}
	switch c.Trading.MissingPrice {
	case "use_seed", "wait_then_seed", "fail":
	default:
		return fmt.Errorf("unknown missing_price_policy %q", c.Trading.MissingPrice)
	}
	if _, err := c.Market.Weekdays(); err != nil {
		return err
	}
	switch c.Backtest.TickStyle {
	case "", "close", "ohlcPath":
	default:
		return fmt.Errorf("unknown tick_style %q", c.Backtest.TickStyle)
	}
	return nil
}
