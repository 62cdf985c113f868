package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileEnv = "POWERDASH_CONFIG_FILE"

// Config is the process configuration shared by the server, the worker and
// the CLI.
type Config struct {
	Port string `yaml:"port"`

	// BackendHTTPURL is the base URL of the telemetry backend.
	BackendHTTPURL string `yaml:"backend_http_url"`
	// BackendWSURL is the live feed URL. Empty derives it from
	// BackendHTTPURL; "disabled" turns the feed off.
	BackendWSURL string        `yaml:"backend_ws_url"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	// DeviceID selects one meter on a multi-device backend.
	DeviceID string `yaml:"device_id"`

	DefaultSchedule string `yaml:"default_schedule"`
	SchedulesFile   string `yaml:"schedules_file"`

	// TodayEstimateHours is the assumed daily usage when today's cost has to
	// be estimated from an instantaneous power reading.
	TodayEstimateHours float64 `yaml:"today_estimate_hours"`
	// WeeklyEstimateHours is the assumed daily usage for the weekly series.
	WeeklyEstimateHours float64 `yaml:"weekly_estimate_hours"`

	// RefreshInterval is integer seconds or a standard cron expression.
	RefreshInterval string `yaml:"refresh_interval"`

	DBDriver    string `yaml:"db_driver"`
	DBDSN       string `yaml:"db_dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`

	// DailyBudget is the cost above which budget alerts fire; 0 disables them.
	DailyBudget float64 `yaml:"daily_budget"`

	AlertWebhookURL  string `yaml:"alert_webhook_url"`
	AlertWebhookType string `yaml:"alert_webhook_type"`

	SendgridAPIKey string `yaml:"sendgrid_api_key"`
	AlertEmailTo   string `yaml:"alert_email_to"`
	AlertEmailFrom string `yaml:"alert_email_from"`

	// AdminToken, when set, is seeded as an admin API token at startup.
	AdminToken string `yaml:"admin_token"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:                "8000",
		BackendHTTPURL:      "https://power-dashboard-backend.onrender.com",
		HTTPTimeout:         30 * time.Second,
		DefaultSchedule:     "bd-residential-2024",
		TodayEstimateHours:  24,
		WeeklyEstimateHours: 8,
		RefreshInterval:     "30",
		DBDriver:            "memory",
		AlertEmailFrom:      "powerdash@localhost",
	}
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// Load reads the YAML file named by POWERDASH_CONFIG_FILE, if any, and then
// applies environment overrides on top of it.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(configFileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the cost service cannot work with.
func (c Config) Validate() error {
	if c.TodayEstimateHours <= 0 || c.TodayEstimateHours > 24 {
		return fmt.Errorf("config: today_estimate_hours must be in (0, 24], got %v", c.TodayEstimateHours)
	}
	if c.WeeklyEstimateHours <= 0 || c.WeeklyEstimateHours > 24 {
		return fmt.Errorf("config: weekly_estimate_hours must be in (0, 24], got %v", c.WeeklyEstimateHours)
	}
	if c.DailyBudget < 0 {
		return fmt.Errorf("config: daily_budget must not be negative")
	}
	return nil
}

func applyEnv(c *Config) {
	setString(&c.Port, "PORT")
	setString(&c.BackendHTTPURL, "POWERDASH_BACKEND_HTTP_URL")
	setString(&c.BackendWSURL, "POWERDASH_BACKEND_WS_URL")
	setDuration(&c.HTTPTimeout, "POWERDASH_HTTP_TIMEOUT")
	setString(&c.DeviceID, "POWERDASH_DEVICE_ID")
	setString(&c.DefaultSchedule, "POWERDASH_DEFAULT_SCHEDULE")
	setString(&c.SchedulesFile, "POWERDASH_SCHEDULES_FILE")
	setFloat(&c.TodayEstimateHours, "POWERDASH_TODAY_ESTIMATE_HOURS")
	setFloat(&c.WeeklyEstimateHours, "POWERDASH_WEEKLY_ESTIMATE_HOURS")
	setString(&c.RefreshInterval, "POWERDASH_REFRESH_INTERVAL")
	setString(&c.DBDriver, "POWERDASH_DB_DRIVER")
	setString(&c.DBDSN, "POWERDASH_DB_DSN")
	setFloat(&c.DailyBudget, "POWERDASH_DAILY_BUDGET")
	setString(&c.AlertWebhookURL, "ALERT_WEBHOOK_URL")
	setString(&c.AlertWebhookType, "ALERT_WEBHOOK_TYPE")
	setString(&c.SendgridAPIKey, "SENDGRID_API_KEY")
	setString(&c.AlertEmailTo, "POWERDASH_ALERT_EMAIL_TO")
	setString(&c.AlertEmailFrom, "POWERDASH_ALERT_EMAIL_FROM")
	setString(&c.AdminToken, "POWERDASH_ADMIN_TOKEN")

	if v := os.Getenv("POWERDASH_AUTO_MIGRATE"); v != "" {
		v = strings.ToLower(v)
		c.AutoMigrate = v == "1" || v == "true" || v == "yes"
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		*dst = time.Duration(secs) * time.Second
	}
}
