// Package config loads service configuration from an optional YAML file and
// the environment. Environment variables always win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	DBMigrate   bool   `yaml:"db_migrate"`
	RedisURL    string `yaml:"redis_url"`

	Google  GoogleConfig  `yaml:"google"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Socrata SocrataConfig `yaml:"socrata"`
	Sheets  SheetsConfig  `yaml:"sheets"`
	Auth    AuthConfig    `yaml:"auth"`

	// LocalTZ is the IANA zone used for a note's local date.
	LocalTZ string `yaml:"local_tz"`
	// UpstreamRPS caps requests per second to each external provider.
	UpstreamRPS float64 `yaml:"upstream_rps"`
	CacheTTL    string  `yaml:"cache_ttl"`

	Logging LoggingConfig `yaml:"logging"`
}

type GoogleConfig struct {
	MapsAPIKey string `yaml:"maps_api_key"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type SocrataConfig struct {
	AppToken string `yaml:"app_token"`
	Dataset  string `yaml:"dataset"`
}

type SheetsConfig struct {
	ID    string `yaml:"id"`
	Range string `yaml:"range"`
}

type AuthConfig struct {
	Mode       string `yaml:"mode"` // dev, hmac
	HMACSecret string `yaml:"hmac_secret"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:        "8080",
		DBMigrate:   true,
		Gemini:      GeminiConfig{Model: "gemini-2.5-flash"},
		Socrata:     SocrataConfig{Dataset: "naix-2893"},
		Sheets:      SheetsConfig{Range: "Sheet1!A:F"},
		Auth:        AuthConfig{Mode: "dev"},
		LocalTZ:     "America/Chicago",
		UpstreamRPS: 10,
		CacheTTL:    "10m",
		Logging:     LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (if any) and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// FromEnv loads the file named by PROSPECTOR_CONFIG, then the environment.
func FromEnv() (*Config, error) {
	return Load(os.Getenv("PROSPECTOR_CONFIG"))
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.Port, "PORT")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.Google.MapsAPIKey, "GOOGLE_MAPS_API_KEY")
	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Gemini.Model, "GEMINI_MODEL")
	setString(&c.Socrata.AppToken, "SOCRATA_APP_TOKEN")
	setString(&c.Socrata.Dataset, "SOCRATA_DATASET")
	setString(&c.Sheets.ID, "SHEETS_ID")
	setString(&c.Sheets.Range, "SHEETS_RANGE")
	setString(&c.Auth.Mode, "AUTH_MODE")
	setString(&c.Auth.HMACSecret, "AUTH_HMAC_SECRET")
	setString(&c.LocalTZ, "LOCAL_TZ")
	setString(&c.CacheTTL, "CACHE_TTL")
	setString(&c.Logging.Level, "LOG_LEVEL")

	if v := os.Getenv("DB_MIGRATE"); v != "" {
		c.DBMigrate = v != "false"
	}
	if v := os.Getenv("UPSTREAM_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.UpstreamRPS = f
		}
	}
	c.Auth.Mode = strings.ToLower(c.Auth.Mode)
}

// GetCacheTTL returns the upstream cache TTL; an unparseable value disables caching.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Location returns the zone for note local dates, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.LocalTZ == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.LocalTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr is the listen address.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
