// Package config loads the lineage service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/lineage-bridge/internal/stage"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	MonitoringOrganization string        `yaml:"monitoring_organization"`
	Stages                 []StageConfig `yaml:"stages"`
	CatalogDatabase        string        `yaml:"catalog_database"`
	IdentityDatabase       string        `yaml:"identity_database"`
	LineageLogDatabase     string        `yaml:"lineage_log_database"`
	WaveformLead           time.Duration `yaml:"waveform_lead"`
	WaveformLag            time.Duration `yaml:"waveform_lag"`
	Cache                  CacheConfig   `yaml:"cache"`
	GRPC                   GRPCConfig    `yaml:"grpc"`
	Metrics                MetricsConfig `yaml:"metrics"`
	LogLevel               string        `yaml:"log_level"`
}

// StageConfig is one review stage and the database holding its tables.
type StageConfig struct {
	Name     string `yaml:"name"`
	Account  string `yaml:"account"`
	Database string `yaml:"database"`
}

type CacheConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads path, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML document the same way Load does.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.WaveformLead == 0 {
		c.WaveformLead = 500 * time.Millisecond
	}
	if c.WaveformLag == 0 {
		c.WaveformLag = 300 * time.Millisecond
	}
	if c.CatalogDatabase == "" {
		c.CatalogDatabase = "./data/catalog.db"
	}
	if c.IdentityDatabase == "" {
		c.IdentityDatabase = "./data/identity.db"
	}
	if c.LineageLogDatabase == "" {
		c.LineageLogDatabase = "./data/lineage.db"
	}
	if c.Cache.Path == "" && !c.Cache.InMemory {
		c.Cache.Path = "./data/wfid-cache"
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":50061"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9109"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("%w: at least one stage is required", ErrInvalid)
	}
	for i, s := range c.Stages {
		if s.Name == "" || s.Account == "" {
			return fmt.Errorf("%w: stages[%d] needs name and account", ErrInvalid, i)
		}
		if s.Database == "" {
			return fmt.Errorf("%w: stage %s has no database", ErrInvalid, s.Name)
		}
	}
	if c.WaveformLead < 0 || c.WaveformLag < 0 {
		return fmt.Errorf("%w: waveform lead and lag must not be negative", ErrInvalid)
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.LogLevel)
	}
	// duplicate names and accounts are caught by the registry itself
	if _, err := stage.NewRegistry(c.StageOrder()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// StageOrder returns the configured stages in pipeline order.
func (c *Config) StageOrder() []stage.Stage {
	out := make([]stage.Stage, len(c.Stages))
	for i, s := range c.Stages {
		out[i] = stage.Stage{Name: s.Name, Account: s.Account}
	}
	return out
}

// Level is the slog level named by log_level.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// ApplyEnv overrides the listen address from LINEAGE_GRPC_ADDR.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LINEAGE_GRPC_ADDR"); v != "" {
		c.GRPC.Addr = v
	}
}
