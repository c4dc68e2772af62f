package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := []byte(`
app:
  log_level: debug
trading:
  capital: 50000
  lot_sizes:
    NIFTY: 75
`)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.LogLevel != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.App.LogLevel)
	}
	if cfg.Trading.Capital != 50000 {
		t.Fatalf("capital = %.0f, want the file value", cfg.Trading.Capital)
	}
	if cfg.Trading.WindowMs != 60000 {
		t.Fatalf("window_ms = %d, want the default", cfg.Trading.WindowMs)
	}
}

func TestSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := Default()
	cfg.Trading.Capital = 12345

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Trading.Capital != 12345 {
		t.Fatalf("capital = %.0f after round trip", loaded.Trading.Capital)
	}
}

func TestValidateRejections(t *testing.T) {
	mutations := []func(*Config){
		func(c *Config) { c.Trading.Capital = 0 },
		func(c *Config) { c.Trading.WindowMs = 0 },
		func(c *Config) { c.Trading.LotSizes = nil },
		func(c *Config) { c.Trading.LotSizes = map[string]int64{"NIFTY": 0} },
		func(c *Config) { c.Trading.BrokeragePolicy = "flat_fee" },
		func(c *Config) { c.Trading.MissingPrice = "guess" },
		func(c *Config) { c.Backtest.TickStyle = "hourly" },
		func(c *Config) { c.Market.Days = []string{"funday"} },
	}
	for i, mutate := range mutations {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("mutation %d must fail validation", i)
		}
	}
}

func TestWeekdays(t *testing.T) {
	m := Market{Days: []string{"Mon", "tuesday", "FRI"}}
	days, err := m.Weekdays()
	if err != nil {
		t.Fatalf("weekdays: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("days = %v", days)
	}
}
