package lifecycle

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"gopkg.in/yaml.v3"

	"github.com/comalice/hsm/internal/extensibility"
)

// Backoff strategies between DirtyShutdown retries.
const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// Config tunes the dirty shutdown retry loop.
type Config struct {
	// MaxRetryCount is the number of timeouts tolerated before the service
	// is declared Failed.
	MaxRetryCount int `yaml:"maxRetryCount"`
	// RetryInterval is the delay before the first timeout, and between
	// timeouts with the constant strategy.
	RetryInterval time.Duration `yaml:"retryInterval"`
	// Backoff is "constant" or "exponential".
	Backoff string `yaml:"backoff"`
	// MaxRetryInterval caps the exponential delay.
	MaxRetryInterval time.Duration `yaml:"maxRetryInterval"`
}

// DefaultConfig returns the stock retry settings.
func DefaultConfig() Config {
	return Config{
		MaxRetryCount:    10,
		RetryInterval:    2 * time.Second,
		Backoff:          BackoffConstant,
		MaxRetryInterval: 30 * time.Second,
	}
}

// ParseConfig decodes YAML over the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse lifecycle config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read lifecycle config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.MaxRetryCount < 0 {
		return fmt.Errorf("maxRetryCount must not be negative, got %d", c.MaxRetryCount)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retryInterval must be positive, got %s", c.RetryInterval)
	}
	switch c.Backoff {
	case BackoffConstant:
	case BackoffExponential:
		if c.MaxRetryInterval < c.RetryInterval {
			return fmt.Errorf("maxRetryInterval %s is shorter than retryInterval %s", c.MaxRetryInterval, c.RetryInterval)
		}
	default:
		return fmt.Errorf("unknown backoff %q", c.Backoff)
	}
	return nil
}

// BackOff builds the delay sequence of the retry ticker.
func (c Config) BackOff() backoff.BackOff {
	if c.Backoff == BackoffExponential {
		return extensibility.ExponentialBackOff(c.RetryInterval, c.MaxRetryInterval)
	}
	return extensibility.ConstantBackOff(c.RetryInterval)
}
