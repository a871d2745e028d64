// Package config loads the daemon configuration from YAML and applies the
// defaults and validation the rest of the service relies on.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Duration wraps time.Duration so YAML values like "24h" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Store selects the persistence backend for the exposure ledger.
type Store struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// RateLimit shapes the HTTP intake.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type Config struct {
	Service       string    `yaml:"service"`
	Environment   string    `yaml:"environment"`
	ListenAddress string    `yaml:"listen_address"`
	Store         Store     `yaml:"store"`
	MaxDepth      int       `yaml:"max_depth"`
	StaleAfter    Duration  `yaml:"stale_after"`
	RateLimit     RateLimit `yaml:"rate_limit"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Service:       "pricevaultd",
		ListenAddress: ":8080",
		Store:         Store{Backend: BackendMemory},
		MaxDepth:      5,
		StaleAfter:    Duration(7 * 24 * time.Hour),
		RateLimit:     RateLimit{RequestsPerSecond: 50, Burst: 100},
	}
}

// Load reads the file at path, fills unset fields with defaults and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Service = strings.TrimSpace(c.Service)
	if c.Service == "" {
		c.Service = "pricevaultd"
	}
	c.Environment = strings.TrimSpace(c.Environment)
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	c.Store.Path = strings.TrimSpace(c.Store.Path)
	if c.MaxDepth <= 0 {
		c.MaxDepth = 5
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = Duration(7 * 24 * time.Hour)
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 50
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 100
	}
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendLevelDB, BackendBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("config: store backend %q requires a path", c.Store.Backend)
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.MaxDepth > 16 {
		return fmt.Errorf("config: max_depth %d unreasonably large", c.MaxDepth)
	}
	return nil
}
