package pricefeed

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"broker-api/pkg/confkit"
)

const (
	defaultFetchTimeout = 5 * time.Second
	defaultInterval     = time.Minute
)

// Config describes the external price source and the symbols tracked by the
// ingestion cycle.
type Config struct {
	BaseURL string   `yaml:"base_url"`
	Symbols []string `yaml:"symbols"`

	TimeoutRaw  string        `yaml:"timeout"`
	Timeout     time.Duration `yaml:"-"`
	IntervalRaw string        `yaml:"interval"`
	Interval    time.Duration `yaml:"-"`
	MaxRetries  int           `yaml:"max_retries"`
}

// LoadConfig reads pricefeed configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pricefeed config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads pricefeed configuration from the default project location
// and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/pricefeed.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pricefeed config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal pricefeed config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	c.BaseURL = strings.TrimSpace(os.ExpandEnv(c.BaseURL))
	for i, sym := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(os.ExpandEnv(sym)))
	}

	c.Timeout = defaultFetchTimeout
	if raw := strings.TrimSpace(os.ExpandEnv(c.TimeoutRaw)); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("pricefeed: invalid timeout %q: %w", raw, err)
		}
		c.Timeout = d
	}

	c.Interval = defaultInterval
	if raw := strings.TrimSpace(os.ExpandEnv(c.IntervalRaw)); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("pricefeed: invalid interval %q: %w", raw, err)
		}
		c.Interval = d
	}
	return nil
}

// Validate checks the configuration for required values.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("pricefeed: at least one symbol is required")
	}
	for _, sym := range c.Symbols {
		if sym == "" {
			return fmt.Errorf("pricefeed: empty symbol in symbols list")
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("pricefeed: timeout must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("pricefeed: interval must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("pricefeed: max_retries must not be negative")
	}
	return nil
}

// BuildClient constructs a Client from the configuration.
func (c *Config) BuildClient() *Client {
	opts := []Option{
		WithMaxRetries(c.MaxRetries),
		WithHTTPClient(&http.Client{Timeout: c.Timeout}),
	}
	if c.BaseURL != "" {
		opts = append(opts, WithBaseURL(c.BaseURL))
	}
	return NewClient(opts...)
}
