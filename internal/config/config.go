// Package config loads dailybar configuration from YAML, a .env file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Extract  Extract  `yaml:"extract"`
	Schedule Schedule `yaml:"schedule"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir       string `yaml:"data_dir"`
	SQLitePath    string `yaml:"sqlite_path"`
	ParquetMirror bool   `yaml:"parquet_mirror"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Extract controls what is fetched and how the history is summarized.
type Extract struct {
	Symbol          string `yaml:"symbol"`
	Provider        string `yaml:"provider"`
	LookbackDays    int    `yaml:"lookback_days"`
	WindowSize      int    `yaml:"window_size"`
	Timezone        string `yaml:"timezone"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	Enrich          *bool  `yaml:"enrich"`
}

// Schedule configures the daemon.
type Schedule struct {
	Cron string `yaml:"cron"`
}

// Provider names accepted by Extract.Provider.
const (
	ProviderAuto   = "auto"
	ProviderAlpaca = "alpaca"
	ProviderYahoo  = "yahoo"
)

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is present.
func Default() *Config {
	enrich := true
	return &Config{
		Storage: Storage{DataDir: "data"},
		Logging: Logging{Level: "info", Format: "json"},
		Extract: Extract{
			Symbol:       "AMD",
			Provider:     ProviderAuto,
			LookbackDays: 7,
			WindowSize:   30,
			Timezone:     "America/New_York",
			Enrich:       &enrich,
		},
		Schedule: Schedule{Cron: "0 30 20 * * MON-FRI"},
	}
}

// EnrichEnabled reports whether ticker metadata should be fetched.
func (e Extract) EnrichEnabled() bool {
	return e.Enrich == nil || *e.Enrich
}

// Location resolves Extract.Timezone.
func (e Extract) Location() (*time.Location, error) {
	return time.LoadLocation(e.Timezone)
}

// ResolvedProvider returns the concrete provider for "auto": Alpaca when
// credentials are configured, Yahoo otherwise.
func (c *Config) ResolvedProvider() string {
	p := strings.ToLower(c.Extract.Provider)
	if p != ProviderAuto && p != "" {
		return p
	}
	if c.Alpaca.APIKey != "" && c.Alpaca.APISecret != "" {
		return ProviderAlpaca
	}
	return ProviderYahoo
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, then applies .env and environment variable overrides. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	loadDotEnv()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads ENV_FILE (or ./.env) into the process environment
// without overriding variables that are already set. NO_DOTENV=1 disables it.
func loadDotEnv() {
	if v := os.Getenv("NO_DOTENV"); v == "1" || strings.EqualFold(v, "true") {
		return
	}
	if p := os.Getenv("ENV_FILE"); p != "" {
		_ = godotenv.Load(p)
		return
	}
	_ = godotenv.Load()
}

// applyDefaults fills zero values a partial YAML file may leave behind.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = def.Storage.DataDir
	}
	if cfg.Extract.Symbol == "" {
		cfg.Extract.Symbol = def.Extract.Symbol
	}
	if cfg.Extract.Provider == "" {
		cfg.Extract.Provider = def.Extract.Provider
	}
	if cfg.Extract.LookbackDays == 0 {
		cfg.Extract.LookbackDays = def.Extract.LookbackDays
	}
	if cfg.Extract.WindowSize == 0 {
		cfg.Extract.WindowSize = def.Extract.WindowSize
	}
	if cfg.Extract.Timezone == "" {
		cfg.Extract.Timezone = def.Extract.Timezone
	}
	if cfg.Schedule.Cron == "" {
		cfg.Schedule.Cron = def.Schedule.Cron
	}
	cfg.Extract.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Extract.Symbol))
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("DAILYBAR_SYMBOL"); v != "" {
		cfg.Extract.Symbol = v
	}

	if v := os.Getenv("DAILYBAR_PROVIDER"); v != "" {
		cfg.Extract.Provider = v
	}

	if v := os.Getenv("DAILYBAR_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Extract.WindowSize = n
		}
	}

	if v := os.Getenv("DAILYBAR_CRON"); v != "" {
		cfg.Schedule.Cron = v
	}

	// Standard Alpaca env vars take priority: they are the names the SDK reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Validate reports configuration errors that would make a run meaningless.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Extract.Provider) {
	case ProviderAuto, ProviderAlpaca, ProviderYahoo:
	default:
		errs = append(errs, fmt.Errorf("extract.provider %q: want auto, alpaca or yahoo", c.Extract.Provider))
	}
	if c.ResolvedProvider() == ProviderAlpaca && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		errs = append(errs, errors.New("alpaca provider requires api_key and api_secret"))
	}
	if c.Extract.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("extract.window_size must be positive, got %d", c.Extract.WindowSize))
	}
	if c.Extract.LookbackDays <= 0 {
		errs = append(errs, fmt.Errorf("extract.lookback_days must be positive, got %d", c.Extract.LookbackDays))
	}
	if c.Extract.RateLimitPerMin < 0 {
		errs = append(errs, fmt.Errorf("extract.rate_limit_per_min must not be negative, got %d", c.Extract.RateLimitPerMin))
	}
	if _, err := c.Extract.Location(); err != nil {
		errs = append(errs, fmt.Errorf("extract.timezone: %w", err))
	}
	if c.Extract.Symbol == "" {
		errs = append(errs, errors.New("extract.symbol is empty"))
	}
	return errors.Join(errs...)
}
