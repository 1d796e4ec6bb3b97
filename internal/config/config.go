// Package config loads daemon configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"agent-roster-lab/internal/domain"
)

// Config holds all daemon configuration.
type Config struct {
	Engine struct {
		WindowDays     int     `yaml:"window_days"`
		RosterSize     int     `yaml:"roster_size"`
		MinAUM         float64 `yaml:"min_aum"`
		AccountPool    int     `yaml:"account_pool"`
		InitialCapital float64 `yaml:"initial_capital"`
		RebalanceEvery int     `yaml:"rebalance_every"`
		Verbose        bool    `yaml:"verbose"`
	} `yaml:"engine"`
	Exit struct {
		DeclineDays int     `yaml:"decline_days"`
		ReturnFloor float64 `yaml:"return_floor"`
	} `yaml:"exit"`
	Capital struct {
		StopLoss        float64 `yaml:"stop_loss"`
		MaxMoveFraction float64 `yaml:"max_move_fraction"`
		ReturnBandMin   float64 `yaml:"return_band_min"`
		ReturnBandMax   float64 `yaml:"return_band_max"`
		FactorBandMin   float64 `yaml:"factor_band_min"`
		FactorBandMax   float64 `yaml:"factor_band_max"`
	} `yaml:"capital"`
	Feed struct {
		URL string `yaml:"url"`
	} `yaml:"feed"`
	Schedule struct {
		DailyCron string `yaml:"daily_cron"`
	} `yaml:"schedule"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	ClickHouse struct {
		DSN string `yaml:"dsn"`
	} `yaml:"clickhouse"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error; the defaults and
// environment alone can fully configure the daemon.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.ClickHouse.DSN = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("DAILY_CRON"); v != "" {
		cfg.Schedule.DailyCron = v
	}
	if v := os.Getenv("WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.WindowDays = n
		}
	}
	if v := os.Getenv("ROSTER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.RosterSize = n
		}
	}

	// Defaults
	if cfg.Engine.WindowDays == 0 {
		cfg.Engine.WindowDays = domain.DefaultWindowDays
	}
	if cfg.Engine.RosterSize == 0 {
		cfg.Engine.RosterSize = domain.DefaultRosterSize
	}
	if cfg.Engine.MinAUM == 0 {
		cfg.Engine.MinAUM = domain.DefaultMinAUM
	}
	if cfg.Engine.AccountPool == 0 {
		cfg.Engine.AccountPool = domain.DefaultAccountPool
	}
	if cfg.Engine.InitialCapital == 0 {
		cfg.Engine.InitialCapital = domain.DefaultInitialCapital
	}
	if cfg.Engine.RebalanceEvery == 0 {
		cfg.Engine.RebalanceEvery = domain.DefaultRebalanceEvery
	}
	if cfg.Exit.DeclineDays == 0 {
		cfg.Exit.DeclineDays = domain.DefaultDeclineExitDays
	}
	if cfg.Exit.ReturnFloor == 0 {
		cfg.Exit.ReturnFloor = domain.DefaultReturnFloor
	}
	if cfg.Capital.StopLoss == 0 {
		cfg.Capital.StopLoss = domain.DefaultStopLoss
	}
	if cfg.Capital.MaxMoveFraction == 0 {
		cfg.Capital.MaxMoveFraction = domain.DefaultMaxMoveFraction
	}
	if cfg.Capital.ReturnBandMin == 0 && cfg.Capital.ReturnBandMax == 0 {
		cfg.Capital.ReturnBandMin = domain.DefaultAgentReturnBand.Min
		cfg.Capital.ReturnBandMax = domain.DefaultAgentReturnBand.Max
	}
	if cfg.Capital.FactorBandMin == 0 && cfg.Capital.FactorBandMax == 0 {
		cfg.Capital.FactorBandMin = domain.DefaultFactorBand.Min
		cfg.Capital.FactorBandMax = domain.DefaultFactorBand.Max
	}
	if cfg.Schedule.DailyCron == "" {
		cfg.Schedule.DailyCron = "0 5 0 * * *" // 00:05 UTC, after the day closes
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if !domain.ValidWindow(c.Engine.WindowDays) {
		return fmt.Errorf("engine.window_days %d is not a supported window", c.Engine.WindowDays)
	}
	if c.Engine.RosterSize <= 0 {
		return fmt.Errorf("engine.roster_size must be positive")
	}
	if c.Engine.AccountPool <= 0 {
		return fmt.Errorf("engine.account_pool must be positive")
	}
	if c.Capital.ReturnBandMin >= c.Capital.ReturnBandMax {
		return fmt.Errorf("capital return band must satisfy min < max")
	}
	if c.Capital.FactorBandMin >= c.Capital.FactorBandMax {
		return fmt.Errorf("capital factor band must satisfy min < max")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	return nil
}

// ReturnBand returns the configured agent-return clamp band.
func (c *Config) ReturnBand() domain.ClampBand {
	return domain.ClampBand{Min: c.Capital.ReturnBandMin, Max: c.Capital.ReturnBandMax}
}

// FactorBand returns the configured balance-factor clamp band.
func (c *Config) FactorBand() domain.ClampBand {
	return domain.ClampBand{Min: c.Capital.FactorBandMin, Max: c.Capital.FactorBandMax}
}
