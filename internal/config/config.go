// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feed providers understood by the live driver.
const (
	ProviderCoinGecko = "coingecko"
	ProviderBinance   = "binance"
)

// App captures process-wide runtime settings.
type App struct {
	Name          string `yaml:"name"`
	LogLevel      string `yaml:"log_level"`
	PrettyLogs    bool   `yaml:"pretty_logs"`
	MetricsAddr   string `yaml:"metrics_addr"`
	DecisionsPath string `yaml:"decisions_path"`
}

// Strategy holds the crossover, stop-loss and spike alert knobs.
type Strategy struct {
	SMAShort          int     `yaml:"sma_short"`
	SMALong           int     `yaml:"sma_long"`
	StopLoss          float64 `yaml:"stop_loss"`
	SpikeThresholdPct float64 `yaml:"spike_threshold_pct"`
	SpikeMinSamples   int     `yaml:"spike_min_samples"`
}

// Feed configures the live price source.
type Feed struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	Coin           string `yaml:"coin"`
	StreamURL      string `yaml:"stream_url"`
	Symbol         string `yaml:"symbol"`
	PollInterval   int    `yaml:"poll_interval_ms"`
	RequestTimeout int    `yaml:"request_timeout_ms"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryBackoff   int    `yaml:"retry_backoff_ms"`
}

// Backtest selects replay mode and its input.
type Backtest struct {
	Enabled        bool   `yaml:"enabled"`
	HistoricalData string `yaml:"historical_data"`
}

// Notify carries the chat credentials; empty values disable notifications.
type Notify struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	BaseURL        string `yaml:"base_url"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	StartupMessage bool   `yaml:"startup_message"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Strategy Strategy `yaml:"strategy"`
	Feed     Feed     `yaml:"feed"`
	Backtest Backtest `yaml:"backtest"`
	Notify   Notify   `yaml:"notify"`
}

// Default returns the settings used when neither a file nor flags say otherwise.
func Default() *Config {
	return &Config{
		App: App{
			Name:     "crossbot",
			LogLevel: "info",
		},
		Strategy: Strategy{
			SMAShort:          5,
			SMALong:           20,
			StopLoss:          5.0,
			SpikeThresholdPct: 2.0,
			SpikeMinSamples:   5,
		},
		Feed: Feed{
			Provider:       ProviderCoinGecko,
			BaseURL:        "https://api.coingecko.com",
			Coin:           "bitcoin",
			StreamURL:      "wss://stream.binance.com:9443",
			Symbol:         "BTCUSDT",
			PollInterval:   60_000,
			RequestTimeout: 10_000,
			MaxRetries:     3,
			RetryBackoff:   2_000,
		},
		Backtest: Backtest{
			HistoricalData: "historical_prices.csv",
		},
		Notify: Notify{
			TimeoutMs:      5_000,
			StartupMessage: true,
		},
	}
}

// Load reads a YAML file from disk over the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return config, nil
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
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects settings the engine or drivers cannot run with.
// A long window not above the short one is allowed; callers warn about it.
func (c *Config) Validate() error {
	if c.Strategy.SMAShort <= 0 {
		return fmt.Errorf("sma_short must be > 0")
	}
	if c.Strategy.SMALong <= 0 {
		return fmt.Errorf("sma_long must be > 0")
	}
	if c.Strategy.StopLoss < 0 {
		return fmt.Errorf("stop_loss must be >= 0")
	}
	if c.Strategy.SpikeThresholdPct <= 0 {
		return fmt.Errorf("spike_threshold_pct must be > 0")
	}
	if c.Strategy.SpikeMinSamples <= 0 {
		return fmt.Errorf("spike_min_samples must be > 0")
	}
	if c.Backtest.Enabled {
		if strings.TrimSpace(c.Backtest.HistoricalData) == "" {
			return fmt.Errorf("backtest requires historical_data")
		}
		return nil
	}
	switch strings.ToLower(c.Feed.Provider) {
	case ProviderCoinGecko, ProviderBinance:
	default:
		return fmt.Errorf("unknown feed provider %q", c.Feed.Provider)
	}
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("poll_interval_ms must be > 0")
	}
	if c.Feed.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if c.Feed.RetryBackoff <= 0 {
		return fmt.Errorf("retry_backoff_ms must be > 0")
	}
	return nil
}

// WindowsInverted reports the not-enforced precondition sma_long > sma_short being violated.
func (c *Config) WindowsInverted() bool {
	return c.Strategy.SMALong <= c.Strategy.SMAShort
}
