package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Feed is one RSS source to collect headlines from.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Config struct {
	Mode              string  `yaml:"mode"` // SIMULATE or LIVE
	NotionalUSD       float64 `yaml:"notional_usd"`
	RunTimeoutSeconds int     `yaml:"run_timeout_seconds"`
	Schedule          string  `yaml:"schedule"` // cron spec with seconds field

	Feeds  []Feed `yaml:"feeds"`
	Reddit struct {
		Subreddits []string `yaml:"subreddits"`
		Limit      int      `yaml:"limit"`
	} `yaml:"reddit"`
	CollectTimeoutSeconds int      `yaml:"collect_timeout_seconds"`
	Keywords              []string `yaml:"keywords"`

	Scoring struct {
		Provider          string  `yaml:"provider"` // OPENAI, DEEPSEEK or NOOP
		Endpoint          string  `yaml:"endpoint"`
		Model             string  `yaml:"model"`
		APIKeyEnv         string  `yaml:"api_key_env"`
		BatchSize         int     `yaml:"batch_size"`
		TimeoutSeconds    int     `yaml:"timeout_seconds"`
		MaxAttempts       int     `yaml:"max_attempts"`
		BackoffBaseMS     int     `yaml:"backoff_base_ms"`
		BackoffMultiplier float64 `yaml:"backoff_multiplier"`
		Concurrency       int     `yaml:"concurrency"`
		RatePerSecond     float64 `yaml:"rate_per_second"`
		MaxSummaryLen     int     `yaml:"max_summary_len"`
	} `yaml:"scoring"`

	Broker struct {
		Provider            string `yaml:"provider"` // ALPACA or MOCK
		Endpoint            string `yaml:"endpoint"`
		DataEndpoint        string `yaml:"data_endpoint"`
		PriceTimeoutSeconds int    `yaml:"price_timeout_seconds"`
		OrderTimeoutSeconds int    `yaml:"order_timeout_seconds"`
	} `yaml:"broker"`

	Brief struct {
		Dir string `yaml:"dir"`
	} `yaml:"brief"`
}

// Live reports whether live trading was explicitly configured. Anything else,
// including an empty or mistyped mode, means simulate.
func (c *Config) Live() bool { return c.Mode == "LIVE" }

func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.Mode != "SIMULATE" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'SIMULATE' or 'LIVE'", c.Mode)
	}
	if c.NotionalUSD <= 0 {
		return fmt.Errorf("notional_usd must be positive, got %.2f", c.NotionalUSD)
	}
	switch c.Scoring.Provider {
	case "OPENAI", "DEEPSEEK", "NOOP":
	default:
		return fmt.Errorf("scoring.provider must be 'OPENAI', 'DEEPSEEK' or 'NOOP', got '%s'", c.Scoring.Provider)
	}
	switch c.Broker.Provider {
	case "ALPACA", "MOCK":
	default:
		return fmt.Errorf("broker.provider must be 'ALPACA' or 'MOCK', got '%s'", c.Broker.Provider)
	}
	if c.Scoring.BackoffMultiplier < 1 {
		return fmt.Errorf("scoring.backoff_multiplier must be >= 1, got %.2f", c.Scoring.BackoffMultiplier)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = "SIMULATE"
	}
	if c.NotionalUSD == 0 {
		c.NotionalUSD = 40
	}
	if c.RunTimeoutSeconds == 0 {
		c.RunTimeoutSeconds = 300
	}
	if c.Schedule == "" {
		c.Schedule = "0 30 13 * * *" // daily, pre-open UTC
	}
	if c.Reddit.Limit == 0 {
		c.Reddit.Limit = 50
	}
	if c.CollectTimeoutSeconds == 0 {
		c.CollectTimeoutSeconds = 30
	}
	if c.Scoring.Provider == "" {
		c.Scoring.Provider = "NOOP"
	}
	if c.Scoring.BatchSize == 0 {
		c.Scoring.BatchSize = 15
	}
	// Batch size stays within the window the scoring service correlates
	// reliably; out-of-range values are clamped, not rejected.
	if c.Scoring.BatchSize < 10 {
		c.Scoring.BatchSize = 10
	}
	if c.Scoring.BatchSize > 20 {
		c.Scoring.BatchSize = 20
	}
	if c.Scoring.TimeoutSeconds == 0 {
		c.Scoring.TimeoutSeconds = 25
	}
	if c.Scoring.MaxAttempts == 0 {
		c.Scoring.MaxAttempts = 4
	}
	if c.Scoring.BackoffBaseMS == 0 {
		c.Scoring.BackoffBaseMS = 500
	}
	if c.Scoring.BackoffMultiplier == 0 {
		c.Scoring.BackoffMultiplier = 2.0
	}
	if c.Scoring.Concurrency == 0 {
		c.Scoring.Concurrency = 3
	}
	if c.Scoring.RatePerSecond == 0 {
		c.Scoring.RatePerSecond = 1
	}
	if c.Scoring.MaxSummaryLen == 0 {
		c.Scoring.MaxSummaryLen = 280
	}
	if c.Scoring.APIKeyEnv == "" {
		c.Scoring.APIKeyEnv = "SCORING_API_KEY"
	}
	if c.Broker.Provider == "" {
		c.Broker.Provider = "MOCK"
	}
	if c.Broker.Endpoint == "" {
		c.Broker.Endpoint = "https://paper-api.alpaca.markets"
	}
	if c.Broker.DataEndpoint == "" {
		c.Broker.DataEndpoint = "https://data.alpaca.markets"
	}
	if c.Broker.PriceTimeoutSeconds == 0 {
		c.Broker.PriceTimeoutSeconds = 10
	}
	if c.Broker.OrderTimeoutSeconds == 0 {
		c.Broker.OrderTimeoutSeconds = 15
	}
	if c.Brief.Dir == "" {
		c.Brief.Dir = "briefs"
	}
}
