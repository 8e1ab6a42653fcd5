package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	MarketData struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"market_data"`
	Ingest struct {
		RetentionYears int `yaml:"retention_years"`
	} `yaml:"ingest"`
	Screener struct {
		MaxBelowHighRatio float64 `yaml:"max_below_high_ratio"`
		MinBelowHighRatio float64 `yaml:"min_below_high_ratio"`
		VolumeRatio       float64 `yaml:"volume_ratio"`
		PriceFloor        float64 `yaml:"price_floor"`
		DaysThreshold     int     `yaml:"days_threshold"`
	} `yaml:"screener"`
	Schedule struct {
		IngestCron    string `yaml:"ingest_cron"`
		WatchlistCron string `yaml:"watchlist_cron"`
		Timezone      string `yaml:"timezone"`
	} `yaml:"schedule"`
	LogLevel string `yaml:"log_level"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
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
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("MARKET_DATA_BASE_URL"); v != "" {
		cfg.MarketData.BaseURL = v
	}
	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		cfg.MarketData.APIKey = v
	}
	if v := os.Getenv("RETENTION_YEARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.RetentionYears = n
		}
	}
	if v := os.Getenv("CRON_INGEST"); v != "" {
		cfg.Schedule.IngestCron = v
	}
	if v := os.Getenv("CRON_WATCHLIST"); v != "" {
		cfg.Schedule.WatchlistCron = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Defaults
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.MarketData.BaseURL == "" {
		cfg.MarketData.BaseURL = "https://api.tiingo.com/tiingo"
	}
	if cfg.Ingest.RetentionYears == 0 {
		cfg.Ingest.RetentionYears = 5
	}
	if cfg.Screener.MaxBelowHighRatio == 0 {
		cfg.Screener.MaxBelowHighRatio = 0.75
	}
	if cfg.Screener.MinBelowHighRatio == 0 {
		cfg.Screener.MinBelowHighRatio = 0.70
	}
	if cfg.Screener.VolumeRatio == 0 {
		cfg.Screener.VolumeRatio = 1.5
	}
	if cfg.Screener.PriceFloor == 0 {
		cfg.Screener.PriceFloor = 85
	}
	if cfg.Screener.DaysThreshold == 0 {
		cfg.Screener.DaysThreshold = 90
	}
	if cfg.Schedule.IngestCron == "" {
		// Hourly on weekdays; the scheduler gates to business hours.
		cfg.Schedule.IngestCron = "0 * * * 1-5"
	}
	if cfg.Schedule.WatchlistCron == "" {
		// Shortly after market close on weekdays.
		cfg.Schedule.WatchlistCron = "30 16 * * 1-5"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "America/New_York"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.MarketData.APIKey == "" {
		return fmt.Errorf("market_data.api_key is required")
	}
	if c.Ingest.RetentionYears <= 0 {
		return fmt.Errorf("ingest.retention_years must be positive")
	}
	if c.Screener.MinBelowHighRatio > c.Screener.MaxBelowHighRatio {
		return fmt.Errorf("screener.min_below_high_ratio must not exceed max_below_high_ratio")
	}
	return nil
}
