package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode   string `yaml:"mode"`
	Engine struct {
		CheckIntervalSeconds int `yaml:"check_interval_seconds"`
		MarketHours          struct {
			Start string `yaml:"start"`
			End   string `yaml:"end"`
		} `yaml:"market_hours"`
	} `yaml:"engine"`
	Risk struct {
		MaxDailyTrades  int     `yaml:"max_daily_trades"`
		MaxPositionSize float64 `yaml:"max_position_size"`
	} `yaml:"risk"`
	Portfolio struct {
		InitialCash float64 `yaml:"initial_cash"`
	} `yaml:"portfolio"`
	Storage struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Advisor struct {
		Provider    string `yaml:"provider"`
		PollSeconds int    `yaml:"poll_seconds"`
		DryRun      bool   `yaml:"dry_run"`
	} `yaml:"advisor"`
	Quotes struct {
		Static map[string]float64 `yaml:"static"`
	} `yaml:"quotes"`
	Journal struct {
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"journal"`
}

func (c *Config) Validate() error {
	if c.Mode != "SIMULATED" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'SIMULATED' or 'LIVE'", c.Mode)
	}
	if c.Engine.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("engine.check_interval_seconds must be positive, got %d", c.Engine.CheckIntervalSeconds)
	}
	if c.Risk.MaxDailyTrades <= 0 {
		return fmt.Errorf("risk.max_daily_trades must be positive, got %d", c.Risk.MaxDailyTrades)
	}
	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("risk.max_position_size must be positive, got %.2f", c.Risk.MaxPositionSize)
	}
	if c.Portfolio.InitialCash < 0 {
		return fmt.Errorf("portfolio.initial_cash cannot be negative, got %.2f", c.Portfolio.InitialCash)
	}
	if c.Advisor.Provider != "STATIC" && c.Advisor.Provider != "NONE" {
		return fmt.Errorf("advisor.provider must be 'STATIC' or 'NONE', got '%s'", c.Advisor.Provider)
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

	if c.Mode == "" {
		c.Mode = "SIMULATED"
	}
	if c.Engine.CheckIntervalSeconds == 0 {
		c.Engine.CheckIntervalSeconds = 30
	}
	if c.Engine.MarketHours.Start == "" {
		c.Engine.MarketHours.Start = "09:30"
	}
	if c.Engine.MarketHours.End == "" {
		c.Engine.MarketHours.End = "16:00"
	}
	if c.Risk.MaxDailyTrades == 0 {
		c.Risk.MaxDailyTrades = 10
	}
	if c.Risk.MaxPositionSize == 0 {
		c.Risk.MaxPositionSize = 10000
	}
	if c.Portfolio.InitialCash == 0 {
		c.Portfolio.InitialCash = 100000
	}
	if c.Advisor.Provider == "" {
		c.Advisor.Provider = "NONE"
	}
	if c.Advisor.PollSeconds == 0 {
		c.Advisor.PollSeconds = 300
	}
	if c.Journal.RetentionDays == 0 {
		c.Journal.RetentionDays = 30
	}

	applyEnvOverrides(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

// applyEnvOverrides lets deployment environments override file settings
// without editing the YAML.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("ENGINE_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
}
