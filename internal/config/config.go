// Package config holds the immutable settings snapshot injected into every
// control-plane component. Files are YAML or TOML and overlay the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/probeplane/internal/access"
	"github.com/ppiankov/probeplane/internal/alert"
)

// Defaults are the platform-wide values layered under every probe overlay.
type Defaults struct {
	HeartbeatIntervalSeconds int    `yaml:"heartbeat_interval_seconds" toml:"heartbeat_interval_seconds"`
	DeploymentTopic          string `yaml:"deployment_topic"           toml:"deployment_topic"`
}

// SDK declares the platform's supported probe SDK range.
type SDK struct {
	MinVersion    string `yaml:"min_version"    toml:"min_version"`
	TargetVersion string `yaml:"target_version" toml:"target_version"`
}

// Scheduler configures window derivation.
type Scheduler struct {
	DefaultCron string   `yaml:"default_cron" toml:"default_cron"`
	EventWindow Duration `yaml:"event_window" toml:"event_window"`
	AdhocWindow Duration `yaml:"adhoc_window" toml:"adhoc_window"`
}

// Pagination bounds list queries.
type Pagination struct {
	DefaultLimit int `yaml:"default_limit" toml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"     toml:"max_limit"`
}

// Store selects the persistence backend.
type Store struct {
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"    toml:"dsn"`
}

// Events sizes the in-process event bus.
type Events struct {
	Buffer int `yaml:"buffer" toml:"buffer"`
}

// Audit locates the hash-chained evidence log. Empty disables it.
type Audit struct {
	Path string `yaml:"path" toml:"path"`
}

// Access lists the grants checked by inbound adapters. No grants allows all.
type Access struct {
	Grants []access.Grant `yaml:"grants" toml:"grants"`
}

// Listener is a network listen address.
type Listener struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Config is the full settings snapshot.
type Config struct {
	Defaults   Defaults            `yaml:"defaults"   toml:"defaults"`
	SDK        SDK                 `yaml:"sdk"        toml:"sdk"`
	Scheduler  Scheduler           `yaml:"scheduler"  toml:"scheduler"`
	Pagination Pagination          `yaml:"pagination" toml:"pagination"`
	Store      Store               `yaml:"store"      toml:"store"`
	Events     Events              `yaml:"events"     toml:"events"`
	Alerts     []alert.AlertConfig `yaml:"alerts"     toml:"alerts"`
	Audit      Audit               `yaml:"audit"      toml:"audit"`
	Access     Access              `yaml:"access"     toml:"access"`
	HTTP       Listener            `yaml:"http"       toml:"http"`
	GRPC       Listener            `yaml:"grpc"       toml:"grpc"`
	Log        Log                 `yaml:"log"        toml:"log"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Defaults: Defaults{
			HeartbeatIntervalSeconds: 300,
			DeploymentTopic:          "probe.deployments",
		},
		SDK: SDK{
			MinVersion:    "1.0.0",
			TargetVersion: "1.4.0",
		},
		Scheduler: Scheduler{
			DefaultCron: "0 * * * *",
			EventWindow: Duration{15 * time.Minute},
			AdhocWindow: Duration{5 * time.Minute},
		},
		Pagination: Pagination{
			DefaultLimit: 20,
			MaxLimit:     100,
		},
		Store: Store{
			Driver: "sqlite",
			DSN:    filepath.Join(homeDir(), "probeplane.db"),
		},
		Events: Events{Buffer: 256},
		HTTP:   Listener{Addr: ":8080"},
		GRPC:   Listener{Addr: ":9090"},
		Log:    Log{Level: "info", Format: "text"},
	}
}

// DefaultPath is ~/.probeplane/config.yaml.
func DefaultPath() string {
	return filepath.Join(homeDir(), "config.yaml")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".probeplane"
	}
	return filepath.Join(home, ".probeplane")
}

// LoadConfig loads configuration from a YAML or TOML file.
// Empty path falls back to ~/.probeplane/config.yaml.
// Missing file returns defaults. The file overwrites only the fields it sets.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse toml: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse yaml: %w", err)
		}
	default:
		return fmt.Errorf("config: unsupported format %q", ext)
	}
	return nil
}

// Validate checks internal consistency of the snapshot.
func (c *Config) Validate() error {
	var errs []error

	if c.Defaults.HeartbeatIntervalSeconds <= 0 {
		errs = append(errs, errors.New("defaults.heartbeat_interval_seconds must be positive"))
	}
	if strings.TrimSpace(c.Defaults.DeploymentTopic) == "" {
		errs = append(errs, errors.New("defaults.deployment_topic is required"))
	}

	minV, okMin := CanonicalVersion(c.SDK.MinVersion)
	targetV, okTarget := CanonicalVersion(c.SDK.TargetVersion)
	if !okMin {
		errs = append(errs, fmt.Errorf("sdk.min_version %q is not a semantic version", c.SDK.MinVersion))
	}
	if !okTarget {
		errs = append(errs, fmt.Errorf("sdk.target_version %q is not a semantic version", c.SDK.TargetVersion))
	}
	if okMin && okTarget && CompareVersions(targetV, minV) < 0 {
		errs = append(errs, errors.New("sdk.target_version must not be below sdk.min_version"))
	}

	if _, err := cron.ParseStandard(c.Scheduler.DefaultCron); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.default_cron: %w", err))
	}
	if c.Scheduler.EventWindow.Duration <= 0 || c.Scheduler.AdhocWindow.Duration <= 0 {
		errs = append(errs, errors.New("scheduler windows must be positive"))
	}

	if c.Pagination.MaxLimit < 1 {
		errs = append(errs, errors.New("pagination.max_limit must be at least 1"))
	}
	if c.Pagination.DefaultLimit < 1 || c.Pagination.DefaultLimit > c.Pagination.MaxLimit {
		errs = append(errs, errors.New("pagination.default_limit must be within [1, max_limit]"))
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}

	for i, a := range c.Alerts {
		if a.URL == "" {
			errs = append(errs, fmt.Errorf("alerts[%d].url is required", i))
		}
	}

	for i, g := range c.Access.Grants {
		if g.Actor == "" || len(g.Operations) == 0 {
			errs = append(errs, fmt.Errorf("access.grants[%d] needs actor and operations", i))
		}
	}

	if err := c.Log.validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
