// Package config provides configuration management for positionbook.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"
)

const (
	defaultStoragePath     = "data/positionbook.db"
	defaultBenchmarkSymbol = "^GSPC"
	defaultScanRows        = 20
	defaultMaxSamples      = 10
	defaultDashboardPort   = 8080
	defaultLogLevel        = "info"
)

// Config represents the complete application configuration.
type Config struct {
	Environment    EnvironmentConfig    `yaml:"environment"`
	Storage        StorageConfig        `yaml:"storage"`
	Benchmark      BenchmarkConfig      `yaml:"benchmark"`
	Import         ImportConfig         `yaml:"import"`
	Dashboard      DashboardConfig      `yaml:"dashboard"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// StorageConfig selects the persistence driver.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory | json | sqlite
	Path   string `yaml:"path"`
}

// BenchmarkConfig names the index the NAV series is compared against.
type BenchmarkConfig struct {
	Symbol string `yaml:"symbol"`
}

// ImportConfig tunes format detection.
type ImportConfig struct {
	ScanRows   int `yaml:"scan_rows"`   // rows after the header inspected by detectors
	MaxSamples int `yaml:"max_samples"` // rejected rows kept in an import summary
}

// DashboardConfig defines the HTTP adapter settings.
type DashboardConfig struct {
	AuthToken string `yaml:"auth_token"`
	Port      int    `yaml:"port"`
}

// CircuitBreakerConfig wraps storage with a breaker when Enabled.
type CircuitBreakerConfig struct {
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	FailureRatio float64 `yaml:"failure_ratio"`
	MaxRequests  uint32  `yaml:"max_requests"`
	MinRequests  uint32  `yaml:"min_requests"`
	Enabled      bool    `yaml:"enabled"`
}

// Load reads and parses the configuration file from the specified path.
// A .env file next to the working directory is loaded first when present so
// ${VAR} references can be satisfied from it.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables first.
func Parse(data []byte) (*Config, error) {
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

// Default returns a valid configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.normalize()
	return c
}

// Validate checks that all configuration values are valid and consistent.
// Unset values are defaulted first.
func (c *Config) Validate() error {
	c.normalize()

	if _, err := logrus.ParseLevel(c.Environment.LogLevel); err != nil {
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	switch c.Storage.Driver {
	case "memory":
	case "json", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be 'memory', 'json' or 'sqlite'")
	}

	if strings.TrimSpace(c.Benchmark.Symbol) == "" {
		return fmt.Errorf("benchmark.symbol is required")
	}

	if c.Import.ScanRows < 1 || c.Import.ScanRows > 1000 {
		return fmt.Errorf("import.scan_rows must be between 1 and 1000")
	}
	if c.Import.MaxSamples < 0 {
		return fmt.Errorf("import.max_samples must be >= 0")
	}

	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be between 1 and 65535")
	}

	cb := c.CircuitBreaker
	if cb.Enabled {
		if _, err := time.ParseDuration(cb.Interval); err != nil {
			return fmt.Errorf("circuit_breaker.interval invalid: %w", err)
		}
		if _, err := time.ParseDuration(cb.Timeout); err != nil {
			return fmt.Errorf("circuit_breaker.timeout invalid: %w", err)
		}
		if cb.FailureRatio <= 0 || cb.FailureRatio > 1 {
			return fmt.Errorf("circuit_breaker.failure_ratio must be in (0,1]")
		}
		if cb.MaxRequests == 0 {
			return fmt.Errorf("circuit_breaker.max_requests must be > 0")
		}
	}
	return nil
}

// normalize sets default values for unset fields
func (c *Config) normalize() {
	c.Environment.LogLevel = strings.ToLower(strings.TrimSpace(c.Environment.LogLevel))
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = defaultLogLevel
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" && c.Storage.Driver == "sqlite" {
		c.Storage.Path = defaultStoragePath
	}
	if c.Benchmark.Symbol == "" {
		c.Benchmark.Symbol = defaultBenchmarkSymbol
	}
	if c.Import.ScanRows == 0 {
		c.Import.ScanRows = defaultScanRows
	}
	if c.Import.MaxSamples == 0 {
		c.Import.MaxSamples = defaultMaxSamples
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
	c.normalizeCircuitBreaker()
}

func (c *Config) normalizeCircuitBreaker() {
	cb := &c.CircuitBreaker
	if cb.Interval == "" {
		cb.Interval = "60s"
	}
	if cb.Timeout == "" {
		cb.Timeout = "30s"
	}
	if cb.MaxRequests == 0 {
		cb.MaxRequests = 3
	}
	if cb.MinRequests == 0 {
		cb.MinRequests = 5
	}
	if cb.FailureRatio == 0 {
		cb.FailureRatio = 0.6
	}
}

// LogLevel returns the parsed log level, info when unparseable.
func (c *Config) LogLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Environment.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// BreakerDurations returns the parsed interval and timeout.
func (c *Config) BreakerDurations() (interval, timeout time.Duration) {
	interval, err := time.ParseDuration(c.CircuitBreaker.Interval)
	if err != nil {
		interval = 60 * time.Second
	}
	timeout, err = time.ParseDuration(c.CircuitBreaker.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}
	return interval, timeout
}
