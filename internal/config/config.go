// Package config provides configuration management for the wheel tracker.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

const (
	defaultPort              = 8080
	defaultRequestTimeout    = "30s"
	defaultShutdownTimeout   = "10s"
	defaultQuoteTimeout      = "3s"
	defaultQuoteCacheTTL     = "30s"
	defaultMaxUploadBytes    = 5 << 20
	defaultImportRate        = 2.0
	defaultImportBurst       = 5
	defaultImportMaxRows     = 10000
	defaultManagementDTE     = 21
	defaultStoragePath       = "data/ledger.json"
	defaultSQLitePath        = "data/ledger.db"
	defaultTradierSandbox    = "https://sandbox.tradier.com/v1"
	defaultTradierProduction = "https://api.tradier.com/v1"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Quotes      QuotesConfig      `yaml:"quotes"`
	Import      ImportConfig      `yaml:"import"`
	Wheel       WheelConfig       `yaml:"wheel"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode      string `yaml:"mode"`       // development | production
	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // text | json
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port            int    `yaml:"port"`
	AuthToken       string `yaml:"auth_token"`
	RequestTimeout  string `yaml:"request_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StorageConfig defines where the ledger lives.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory | json | sqlite
	Path   string `yaml:"path"`
}

// QuotesConfig defines the market data provider chain.
type QuotesConfig struct {
	Provider       string               `yaml:"provider"` // none | mock | tradier
	APIKey         string               `yaml:"api_key"`
	APIEndpoint    string               `yaml:"api_endpoint"`
	Sandbox        bool                 `yaml:"sandbox"`
	Timeout        string               `yaml:"timeout"`
	CacheTTL       string               `yaml:"cache_ttl"`
	MaxRetries     int                  `yaml:"max_retries"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig mirrors broker.CircuitBreakerSettings.
type CircuitBreakerConfig struct {
	MaxRequests  uint32  `yaml:"max_requests"`
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	MinRequests  uint32  `yaml:"min_requests"`
	FailureRatio float64 `yaml:"failure_ratio"`
}

// ImportConfig bounds CSV uploads.
type ImportConfig struct {
	MaxUploadBytes int64   `yaml:"max_upload_bytes"`
	MaxRows        int     `yaml:"max_rows"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	Burst          int     `yaml:"burst"`
}

// WheelConfig holds strategy display settings.
type WheelConfig struct {
	ManagementDTE int `yaml:"management_dte"`
}

// Load reads and parses the configuration file from the specified path.
// A .env file next to the config, then one in the working directory, is
// loaded first so ${VAR} references can resolve secrets kept out of YAML.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	for _, envFile := range []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"} {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML with environment expansion and validates the result.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Default returns a validated configuration for local use: in-memory storage
// and no quote provider.
func Default() *Config {
	c := &Config{}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

// Validate fills defaults and checks that all values are valid and consistent.
func (c *Config) Validate() error {
	c.normalize()

	// Environment validation
	switch c.Environment.Mode {
	case "development", "production":
	default:
		return fmt.Errorf("environment.mode must be 'development' or 'production'")
	}
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}
	if c.Environment.LogFormat != "text" && c.Environment.LogFormat != "json" {
		return fmt.Errorf("environment.log_format must be 'text' or 'json'")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if err := positiveDuration("server.request_timeout", c.Server.RequestTimeout); err != nil {
		return err
	}
	if err := positiveDuration("server.shutdown_timeout", c.Server.ShutdownTimeout); err != nil {
		return err
	}
	if c.IsProduction() && c.Server.AuthToken == "" {
		return fmt.Errorf("server.auth_token is required in production mode")
	}

	// Storage validation
	switch c.Storage.Driver {
	case "memory":
	case "json", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, json, sqlite")
	}

	// Quotes validation
	switch c.Quotes.Provider {
	case "none", "mock":
	case "tradier":
		if c.Quotes.APIKey == "" {
			return fmt.Errorf("quotes.api_key is required for the tradier provider")
		}
	default:
		return fmt.Errorf("quotes.provider must be one of none, mock, tradier")
	}
	if err := positiveDuration("quotes.timeout", c.Quotes.Timeout); err != nil {
		return err
	}
	if err := positiveDuration("quotes.cache_ttl", c.Quotes.CacheTTL); err != nil {
		return err
	}
	if c.Quotes.MaxRetries < 0 || c.Quotes.MaxRetries > 5 {
		return fmt.Errorf("quotes.max_retries must be between 0 and 5")
	}
	cb := c.Quotes.CircuitBreaker
	if cb.FailureRatio < 0 || cb.FailureRatio > 1 {
		return fmt.Errorf("quotes.circuit_breaker.failure_ratio must be between 0 and 1")
	}
	for name, v := range map[string]string{
		"quotes.circuit_breaker.interval": cb.Interval,
		"quotes.circuit_breaker.timeout":  cb.Timeout,
	} {
		if v == "" {
			continue
		}
		if err := positiveDuration(name, v); err != nil {
			return err
		}
	}

	// Import validation
	if c.Import.MaxUploadBytes <= 0 {
		return fmt.Errorf("import.max_upload_bytes must be > 0")
	}
	if c.Import.MaxRows <= 0 {
		return fmt.Errorf("import.max_rows must be > 0")
	}
	if c.Import.RatePerSecond <= 0 {
		return fmt.Errorf("import.rate_per_second must be > 0")
	}
	if c.Import.Burst <= 0 {
		return fmt.Errorf("import.burst must be > 0")
	}

	if c.Wheel.ManagementDTE <= 0 {
		return fmt.Errorf("wheel.management_dte must be > 0")
	}
	return nil
}

// normalize sets default values for unset fields
func (c *Config) normalize() {
	if c.Environment.Mode == "" {
		c.Environment.Mode = "development"
	}
	c.Environment.LogLevel = strings.ToLower(c.Environment.LogLevel)
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Environment.LogFormat == "" {
		c.Environment.LogFormat = "text"
	}

	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = defaultRequestTimeout
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "json":
			c.Storage.Path = defaultStoragePath
		case "sqlite":
			c.Storage.Path = defaultSQLitePath
		}
	}

	c.Quotes.Provider = strings.ToLower(c.Quotes.Provider)
	if c.Quotes.Provider == "" {
		c.Quotes.Provider = "none"
	}
	if c.Quotes.Provider == "tradier" && c.Quotes.APIEndpoint == "" {
		if c.Quotes.Sandbox {
			c.Quotes.APIEndpoint = defaultTradierSandbox
		} else {
			c.Quotes.APIEndpoint = defaultTradierProduction
		}
	}
	if c.Quotes.Timeout == "" {
		c.Quotes.Timeout = defaultQuoteTimeout
	}
	if c.Quotes.CacheTTL == "" {
		c.Quotes.CacheTTL = defaultQuoteCacheTTL
	}

	if c.Import.MaxUploadBytes == 0 {
		c.Import.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.Import.MaxRows == 0 {
		c.Import.MaxRows = defaultImportMaxRows
	}
	if c.Import.RatePerSecond == 0 {
		c.Import.RatePerSecond = defaultImportRate
	}
	if c.Import.Burst == 0 {
		c.Import.Burst = defaultImportBurst
	}

	if c.Wheel.ManagementDTE == 0 {
		c.Wheel.ManagementDTE = defaultManagementDTE
	}
}

func positiveDuration(name, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be > 0", name)
	}
	return nil
}

// duration parses a value that Validate already checked.
func duration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment.Mode == "production"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// GetRequestTimeout returns the per-request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return duration(c.Server.RequestTimeout, 30*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown budget.
func (c *Config) GetShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 10*time.Second)
}

// GetQuoteTimeout returns the bound on a single quote lookup.
func (c *Config) GetQuoteTimeout() time.Duration {
	return duration(c.Quotes.Timeout, 3*time.Second)
}

// GetQuoteCacheTTL returns how long a quote is reused.
func (c *Config) GetQuoteCacheTTL() time.Duration {
	return duration(c.Quotes.CacheTTL, 30*time.Second)
}

// GetBreakerInterval returns the circuit breaker count reset interval, or zero for the default.
func (c *Config) GetBreakerInterval() time.Duration {
	return duration(c.Quotes.CircuitBreaker.Interval, 0)
}

// GetBreakerTimeout returns how long the breaker stays open, or zero for the default.
func (c *Config) GetBreakerTimeout() time.Duration {
	return duration(c.Quotes.CircuitBreaker.Timeout, 0)
}
