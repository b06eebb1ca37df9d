// Package config resolves the dexcom-sync settings once, at process start
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// ProductionURL is the Dexcom API used with real accounts
	ProductionURL = "https://api.dexcom.com"
	// SandboxURL is the Dexcom test environment with synthetic data
	SandboxURL = "https://sandbox-api.dexcom.com"

	defaultSweepInterval    = 15 * time.Minute
	defaultRateLimitCeiling = 60000
	defaultRateLimitWindow  = time.Hour
	defaultHTTPTimeout      = 30 * time.Second
	defaultRegion           = "eu-west-1"
)

// Config holds everything the components need, passed to their constructors
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// Sandbox selects the Dexcom sandbox environment
	Sandbox bool
	// BaseURL overrides the Dexcom API url deduced from Sandbox
	BaseURL string
	// Location is the zone used to format the vendor wire dates
	Location    *time.Location
	FrontendURL string
	HTTPTimeout time.Duration

	SweepInterval time.Duration

	RateLimitCeiling int
	RateLimitWindow  time.Duration

	// RateLimiterFailOpen admits calls when the rate ledger cannot be read
	RateLimiterFailOpen bool
	// OAuthPersistBestEffort reports an OAuth success even if the credential could not be stored
	OAuthPersistBestEffort bool

	// ExportBucketSuffix enables the reading export when set
	ExportBucketSuffix string
	Region             string
	S3EndpointURL      string
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	var err error
	cfg := &Config{
		ClientID:           os.Getenv("DEXCOM_CLIENT_ID"),
		ClientSecret:       os.Getenv("DEXCOM_CLIENT_SECRET"),
		RedirectURI:        os.Getenv("DEXCOM_REDIRECT_URI"),
		BaseURL:            os.Getenv("DEXCOM_API_URL"),
		FrontendURL:        os.Getenv("FRONTEND_URL"),
		ExportBucketSuffix: os.Getenv("EXPORT_BUCKET_SUFFIX"),
		Region:             os.Getenv("REGION"),
		S3EndpointURL:      os.Getenv("S3_ENDPOINT_URL"),
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	if cfg.Sandbox, err = boolFromEnv("DEXCOM_SANDBOX", false); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ProductionURL
		if cfg.Sandbox {
			cfg.BaseURL = SandboxURL
		}
	}

	timezone := os.Getenv("DEXCOM_TIMEZONE")
	if timezone == "" {
		timezone = "UTC"
	}
	if cfg.Location, err = time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("invalid DEXCOM_TIMEZONE %q: %w", timezone, err)
	}

	if cfg.HTTPTimeout, err = durationFromEnv("DEXCOM_HTTP_TIMEOUT", defaultHTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationFromEnv("SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = durationFromEnv("RATE_LIMIT_WINDOW", defaultRateLimitWindow); err != nil {
		return nil, err
	}
	if cfg.RateLimitCeiling, err = intFromEnv("RATE_LIMIT_CEILING", defaultRateLimitCeiling); err != nil {
		return nil, err
	}
	if cfg.RateLimiterFailOpen, err = boolFromEnv("RATE_LIMITER_FAIL_OPEN", true); err != nil {
		return nil, err
	}
	if cfg.OAuthPersistBestEffort, err = boolFromEnv("OAUTH_PERSIST_BEST_EFFORT", true); err != nil {
		return nil, err
	}
	if cfg.RateLimitCeiling <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_CEILING must be positive, got %d", cfg.RateLimitCeiling)
	}
	if cfg.SweepInterval <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL and RATE_LIMIT_WINDOW must be positive")
	}
	return cfg, nil
}

// VendorConfigured is true when the Dexcom client credentials are set
func (c *Config) VendorConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func boolFromEnv(name string, def bool) (bool, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return b, nil
}

func intFromEnv(name string, def int) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return i, nil
}

func durationFromEnv(name string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}
