// Package config loads service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/quakewatch/quakewatch/internal/earthquake"
)

// MaxLimit is the largest page size the FDSN event service accepts.
const MaxLimit = 20000

// Config holds the settings shared by the API server and the worker.
type Config struct {
	Port        string
	Environment string
	LogLevel    zerolog.Level

	Feed FeedConfig

	// PollInterval is how often the worker refreshes the feed.
	PollInterval time.Duration

	OTelEnabled     bool
	OTLPEndpoint    string
	OTelSampleRatio float64

	// AdminJWTSigningKey signs the tokens accepted by admin endpoints.
	AdminJWTSigningKey string
	AdminJWTIssuer     string

	PubSubProjectID    string
	PubSubSubscription string
}

// FeedConfig holds the upstream feed settings.
type FeedConfig struct {
	BaseURL        string
	Query          earthquake.QueryConfig
	TimeZone       string
	Location       *time.Location
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	BreakerEnabled bool
}

// FromEnv reads the configuration from the environment. Unset variables take
// their defaults; values that do not parse are reported together.
func FromEnv() (Config, error) {
	var errs []error

	limit, err := strconv.Atoi(getEnvOrDefault("QUAKE_LIMIT", "20"))
	errs = append(errs, wrap("QUAKE_LIMIT", err))
	connectTimeout, err := time.ParseDuration(getEnvOrDefault("QUAKE_CONNECT_TIMEOUT", "15s"))
	errs = append(errs, wrap("QUAKE_CONNECT_TIMEOUT", err))
	readTimeout, err := time.ParseDuration(getEnvOrDefault("QUAKE_READ_TIMEOUT", "10s"))
	errs = append(errs, wrap("QUAKE_READ_TIMEOUT", err))
	breakerEnabled, err := strconv.ParseBool(getEnvOrDefault("QUAKE_BREAKER_ENABLED", "true"))
	errs = append(errs, wrap("QUAKE_BREAKER_ENABLED", err))
	pollInterval, err := time.ParseDuration(getEnvOrDefault("QUAKE_POLL_INTERVAL", "5m"))
	errs = append(errs, wrap("QUAKE_POLL_INTERVAL", err))
	sampleRatio, err := strconv.ParseFloat(getEnvOrDefault("OTEL_SAMPLE_RATIO", "1"), 64)
	errs = append(errs, wrap("OTEL_SAMPLE_RATIO", err))
	logLevel, err := zerolog.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	errs = append(errs, wrap("LOG_LEVEL", err))

	tz := getEnvOrDefault("QUAKE_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	errs = append(errs, wrap("QUAKE_TIMEZONE", err))

	cfg := Config{
		Port:        getEnvOrDefault("APP_PORT", "8080"),
		Environment: getEnvOrDefault("APP_ENV", "development"),
		LogLevel:    logLevel,
		Feed: FeedConfig{
			BaseURL: getEnvOrDefault("QUAKE_BASE_URL", earthquake.DefaultBaseURL),
			Query: earthquake.QueryConfig{
				MinMagnitude: getEnvOrDefault("QUAKE_MIN_MAGNITUDE", "6"),
				OrderBy:      getEnvOrDefault("QUAKE_ORDER_BY", earthquake.OrderByMagnitude),
				Limit:        limit,
				Format:       "geojson",
			},
			TimeZone:       tz,
			Location:       loc,
			ConnectTimeout: connectTimeout,
			ReadTimeout:    readTimeout,
			BreakerEnabled: breakerEnabled,
		},
		PollInterval:       pollInterval,
		OTelEnabled:        os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:       getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio:    sampleRatio,
		AdminJWTSigningKey: os.Getenv("ADMIN_JWT_SIGNING_KEY"),
		AdminJWTIssuer:     getEnvOrDefault("ADMIN_JWT_ISSUER", "quakewatch"),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "quakewatch-feed-jobs"),
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("APP_PORT must not be empty"))
	}
	if _, err := earthquake.BuildURL(c.Feed.BaseURL, c.Feed.Query); err != nil {
		errs = append(errs, fmt.Errorf("QUAKE_BASE_URL: %w", err))
	}
	if c.Feed.Query.Limit < 1 || c.Feed.Query.Limit > MaxLimit {
		errs = append(errs, fmt.Errorf("QUAKE_LIMIT must be between 1 and %d, got %d", MaxLimit, c.Feed.Query.Limit))
	}
	if !ValidOrderBy(c.Feed.Query.OrderBy) {
		errs = append(errs, fmt.Errorf("QUAKE_ORDER_BY %q is not one of time, time-asc, magnitude, magnitude-asc", c.Feed.Query.OrderBy))
	}
	if _, err := strconv.ParseFloat(c.Feed.Query.MinMagnitude, 64); err != nil {
		errs = append(errs, fmt.Errorf("QUAKE_MIN_MAGNITUDE %q is not a number", c.Feed.Query.MinMagnitude))
	}
	if c.Feed.Location == nil {
		errs = append(errs, errors.New("QUAKE_TIMEZONE is not a known time zone"))
	}
	if c.Feed.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("QUAKE_CONNECT_TIMEOUT must be positive"))
	}
	if c.Feed.ReadTimeout <= 0 {
		errs = append(errs, errors.New("QUAKE_READ_TIMEOUT must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("QUAKE_POLL_INTERVAL must be positive"))
	}
	if c.IsProduction() && c.AdminJWTSigningKey == "" {
		errs = append(errs, errors.New("ADMIN_JWT_SIGNING_KEY is required in production"))
	}

	return errors.Join(errs...)
}

// ValidOrderBy reports whether s is an order accepted by the feed.
func ValidOrderBy(s string) bool {
	switch s {
	case earthquake.OrderByTime, earthquake.OrderByTimeAsc, earthquake.OrderByMagnitude, earthquake.OrderByMagnitudeAsc:
		return true
	default:
		return false
	}
}

func wrap(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key, err)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
