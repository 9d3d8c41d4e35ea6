// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/weatherdash/weatherdash/internal/weather"
)

// Config holds the full application configuration for both the ingestion
// worker and the read API.
type Config struct {
	// OpenWeatherAPIKey authenticates against the weather provider.
	// The process refuses to start without it.
	OpenWeatherAPIKey string `validate:"required"`

	// ProviderBaseURL overrides the provider endpoint, mainly for tests.
	ProviderBaseURL string

	// ProviderUnits is the temperature unit mode: "metric" or "standard".
	ProviderUnits string `validate:"oneof=metric standard"`

	// Keys are the cities to ingest.
	Keys []weather.CityKey `validate:"required,min=1,dive"`

	// FetchInterval is the tick period of the ingestion loop.
	FetchInterval time.Duration `validate:"required,min=1m"`

	// MinInterval is the minimum gap between stored readings per city.
	MinInterval time.Duration `validate:"required,min=1m"`

	// RetentionDays bounds how long rows are kept.
	RetentionDays int `validate:"required,min=1"`

	// Concurrency is the number of cities fetched in parallel.
	Concurrency int `validate:"required,min=1"`

	// Timezone is the civil timezone name used to stamp readings.
	Timezone string `validate:"required"`

	// Port is the HTTP listen port of the read API.
	Port string `validate:"required"`

	// LogLevel is the zerolog level name.
	LogLevel string
}

// Load reads configuration from the environment. A .env file, when present,
// seeds the environment first. Validation failures are fatal for callers.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		ProviderBaseURL:   os.Getenv("OPENWEATHER_BASE_URL"),
		ProviderUnits:     getenvDefault("OPENWEATHER_UNITS", "metric"),
		RetentionDays:     getenvInt("RETENTION_DAYS", 7),
		Concurrency:       getenvInt("FETCH_CONCURRENCY", 3),
		Timezone:          getenvDefault("TIMEZONE", "UTC"),
		Port:              getenvDefault("PORT", "8080"),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MinInterval, err = getenvDuration("MIN_FETCH_INTERVAL", cfg.FetchInterval); err != nil {
		return nil, err
	}

	if cfg.Keys, err = parseCities(getenvDefault("CITIES", "Hyderabad,IN")); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	return cfg, nil
}

// Location resolves the configured timezone name.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// parseCities parses "City,CC;City,CC" into city keys.
func parseCities(raw string) ([]weather.CityKey, error) {
	var keys []weather.CityKey
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid city entry %q, want City,CC", entry)
		}
		key := weather.CityKey{
			City:    strings.TrimSpace(parts[0]),
			Country: strings.ToUpper(strings.TrimSpace(parts[1])),
		}
		if err := key.Validate(); err != nil {
			return nil, fmt.Errorf("invalid city entry %q: %w", entry, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
