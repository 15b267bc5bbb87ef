// Package config loads engine configuration from YAML with ${ENV_VAR}
// placeholder support.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BackupConfig controls periodic SQLite file backups.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// SeedBusiness is reference data inserted by the bootstrap routine.
type SeedBusiness struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
	Timezone string `yaml:"timezone"`
	PayLater bool   `yaml:"pay_later"`

	Resources []SeedResource `yaml:"resources"`
}

// SeedBooking is a demo reservation created through the regular booking
// path. Times are relative offsets so the config never goes stale.
type SeedBooking struct {
	ResourceID    string `yaml:"resource_id"`
	Requester     string `yaml:"requester"`
	StartInDays   int    `yaml:"start_in_days"`
	DurationHours int    `yaml:"duration_hours"`
	Guests        int    `yaml:"guests"`
	Notes         string `yaml:"notes"`
}

// SeedResource is a bootstrap resource definition. Rate is a decimal
// string in major units, e.g. "150.00".
type SeedResource struct {
	ID       string `yaml:"id"`
	Kind     string `yaml:"kind"`
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
	Rate     string `yaml:"rate"`
	PayLater bool   `yaml:"pay_later"`
}

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Gateway struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"gateway"`

	Booking struct {
		LockTimeoutMillis   int `yaml:"lock_timeout_millis"`
		MaxAdvanceDays      int `yaml:"max_advance_days"`
		TableSeatingMinutes int `yaml:"table_seating_minutes"`
	} `yaml:"booking"`

	Notify struct {
		TelegramToken  string  `yaml:"telegram_token"`
		OperatorChatID int64   `yaml:"operator_chat_id"`
		RatePerSecond  float64 `yaml:"rate_per_second"`
		Burst          int     `yaml:"burst"`
		MaxConcurrent  int     `yaml:"max_concurrent"`
	} `yaml:"notify"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"audit"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	API struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"api"`

	Seed struct {
		Enabled    bool           `yaml:"enabled"`
		Businesses []SeedBusiness `yaml:"businesses"`
		Bookings   []SeedBooking  `yaml:"bookings"`
	} `yaml:"seed"`
}

// Load reads and parses config from path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/bookingpro.db"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LockTimeout returns the per-resource lock acquisition bound.
func (c *Config) LockTimeout() time.Duration {
	if c.Booking.LockTimeoutMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Booking.LockTimeoutMillis) * time.Millisecond
}

// BookingMaxAdvance returns how far ahead bookings may start.
func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 365 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

// TableSeating returns the implied duration applied when a table
// booking request omits an end time.
func (c *Config) TableSeating() time.Duration {
	if c.Booking.TableSeatingMinutes <= 0 {
		return 90 * time.Minute
	}
	return time.Duration(c.Booking.TableSeatingMinutes) * time.Minute
}

// CacheTTL returns the catalog cache TTL; zero disables caching.
func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
