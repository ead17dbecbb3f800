// Package config loads the engine configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/riskrun/internal/cv"
	"github.com/sawpanic/riskrun/internal/fusion"
	"github.com/sawpanic/riskrun/internal/lifecycle"
	"github.com/sawpanic/riskrun/internal/risk"
)

// Config is the full engine configuration.
type Config struct {
	Risk        risk.ControllerConfig  `yaml:"risk"`
	Correlation risk.CorrelationConfig `yaml:"correlation"`
	ReEntry     risk.ReEntryConfig     `yaml:"reentry"`
	WalkForward cv.WalkForwardConfig   `yaml:"walk_forward"`
	CPCV        cv.CombinatorialConfig `yaml:"cpcv"`
	Lifecycle   lifecycle.Config       `yaml:"lifecycle"`
	Fusion      fusion.Config          `yaml:"fusion"`

	Store struct {
		PostgresDSN string `yaml:"postgres_dsn"`
		RedisAddr   string `yaml:"redis_addr"`
		RedisDB     int    `yaml:"redis_db"`
		CacheTTLSec int    `yaml:"cache_ttl_seconds"`
	} `yaml:"store"`

	Alerts struct {
		WebhookURL    string  `yaml:"webhook_url"`
		RatePerMinute float64 `yaml:"rate_per_minute"`
	} `yaml:"alerts"`

	Ops struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"ops"`
}

// Default returns the production defaults for every component.
func Default() *Config {
	c := &Config{
		Risk:        risk.DefaultControllerConfig(),
		Correlation: risk.DefaultCorrelationConfig(),
		ReEntry:     risk.DefaultReEntryConfig(),
		WalkForward: cv.DefaultWalkForwardConfig(),
		CPCV:        cv.DefaultCombinatorialConfig(),
		Lifecycle:   lifecycle.DefaultConfig(),
		Fusion:      fusion.DefaultConfig(),
	}
	c.Store.CacheTTLSec = 3600
	c.Alerts.RatePerMinute = 30
	c.Ops.ListenAddr = ":8090"
	return c
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}
