// Package config builds the immutable runtime configuration for the
// WhaleTrack binaries. Values come from defaults, an optional YAML file,
// and environment variables, in that order of precedence (env wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings for ingestion and signal computation.
type Config struct {
	// Database
	DatabaseURL     string        `yaml:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`

	// Tracked assets. Fixed for now; HYPE, BTC, ETH.
	Assets []string `yaml:"assets"`

	// Exchange client
	StatsURL          string        `yaml:"stats_url"`
	APIURL            string        `yaml:"api_url"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`

	// Cadences
	UniverseSize         int           `yaml:"universe_size"`
	UniverseRefreshEvery time.Duration `yaml:"universe_refresh_every"`
	SnapshotInterval     time.Duration `yaml:"snapshot_interval"`
	SignalInterval       time.Duration `yaml:"signal_interval"`

	// Health
	StaleThreshold time.Duration `yaml:"stale_threshold"`

	// Ops endpoint (/metrics, /healthz). Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the baseline configuration before file and env overlays.
func Default() Config {
	return Config{
		DatabaseURL:     "postgres://localhost:5432/whaletrack?sslmode=disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    30 * time.Second,

		Assets: []string{"HYPE", "BTC", "ETH"},

		StatsURL:          "https://stats-data.hyperliquid.xyz",
		APIURL:            "https://api.hyperliquid.xyz",
		MaxConcurrency:    8,
		RequestTimeout:    15 * time.Second,
		RequestsPerSecond: 10,

		UniverseSize:         200,
		UniverseRefreshEvery: 6 * time.Hour,
		SnapshotInterval:     60 * time.Second,
		SignalInterval:       5 * time.Minute,

		StaleThreshold: 3 * time.Minute,

		MetricsAddr: "",
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// the environment. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString("DATABASE_URL", &c.DatabaseURL)
	setString("HYPERLIQUID_STATS_URL", &c.StatsURL)
	setString("HYPERLIQUID_API_URL", &c.APIURL)
	setString("METRICS_ADDR", &c.MetricsAddr)

	if err := setInt("MAX_CONCURRENCY", &c.MaxConcurrency); err != nil {
		return err
	}
	if err := setInt("UNIVERSE_SIZE", &c.UniverseSize); err != nil {
		return err
	}
	if err := setSeconds("REQUEST_TIMEOUT_SEC", &c.RequestTimeout); err != nil {
		return err
	}
	if err := setSeconds("SNAPSHOT_INTERVAL_SEC", &c.SnapshotInterval); err != nil {
		return err
	}
	if err := setSeconds("SIGNAL_INTERVAL_SEC", &c.SignalInterval); err != nil {
		return err
	}
	if err := setHours("UNIVERSE_REFRESH_HOURS", &c.UniverseRefreshEvery); err != nil {
		return err
	}
	if err := setMinutes("STALE_THRESHOLD_MINUTES", &c.StaleThreshold); err != nil {
		return err
	}
	return nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.UniverseSize < 1 {
		return fmt.Errorf("universe size must be at least 1, got %d", c.UniverseSize)
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("at least one tracked asset is required")
	}
	return nil
}

func setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setSeconds(key string, dst *time.Duration) error {
	var n int
	if err := setInt(key, &n); err != nil {
		return err
	}
	if n > 0 {
		*dst = time.Duration(n) * time.Second
	}
	return nil
}

func setMinutes(key string, dst *time.Duration) error {
	var n int
	if err := setInt(key, &n); err != nil {
		return err
	}
	if n > 0 {
		*dst = time.Duration(n) * time.Minute
	}
	return nil
}

func setHours(key string, dst *time.Duration) error {
	var n int
	if err := setInt(key, &n); err != nil {
		return err
	}
	if n > 0 {
		*dst = time.Duration(n) * time.Hour
	}
	return nil
}
