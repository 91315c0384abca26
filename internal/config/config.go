// Package config loads and validates the catalog daemon's YAML
// configuration, with environment-variable overrides applied after
// file load so operators can override secrets/paths without editing
// the file on disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StateBackendKind selects the association-state persistence strategy.
type StateBackendKind string

const (
	StateBackendDatabase   StateBackendKind = "database"
	StateBackendFilesystem StateBackendKind = "filesystem"
)

// Config holds every externally configurable key named in the
// catalog's external-interfaces contract.
type Config struct {
	DatabaseURL string `yaml:"database_url"`

	// RegistryURL is the external acquisition-registry database the
	// completion detector polls; empty disables the completion
	// subcommand rather than failing config load.
	RegistryURL   string `yaml:"registry_url"`
	RegistryTable string `yaml:"registry_table"`

	LocationLabel   string `yaml:"location_label"`
	LocationRootURI string `yaml:"location_root_uri"`

	ValidationTimeoutSeconds int   `yaml:"validation_timeout_seconds"`
	MaxInterfaceCount        int   `yaml:"max_interface_count"`
	DisabledInterfaces       []int `yaml:"disabled_interfaces"`

	SensorPollIntervalSeconds int `yaml:"sensor_poll_interval_seconds"`
	BatchSize                 int `yaml:"batch_size"`

	CommitInterval    int `yaml:"commit_interval"`
	CommitBatchSize   int `yaml:"commit_batch_size"`

	SkipExisting bool `yaml:"skip_existing"`
	Incremental  bool `yaml:"incremental"`

	StateBackend StateBackendKind `yaml:"state_backend"`
	StateDir     string           `yaml:"state_dir"`

	// DSL wildcard materialization bounds (Open Question 1 — left
	// configurable rather than hard-coded).
	SubobsnumSliceBound int `yaml:"subobsnum_slice_bound"`
	ScannumSliceBound   int `yaml:"scannum_slice_bound"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig selects zap's output encoding and level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "console"
}

// DefaultConfig returns the documented defaults from the external
// interfaces contract.
func DefaultConfig() *Config {
	return &Config{
		DatabaseURL: "sqlite://./toltec-catalog.db",

		RegistryURL:   "",
		RegistryTable: "toltec_files",

		LocationLabel:   "default",
		LocationRootURI: "file:///data_lmt",

		ValidationTimeoutSeconds: 30,
		MaxInterfaceCount:        13,
		DisabledInterfaces:       nil,

		SensorPollIntervalSeconds: 10,
		BatchSize:                 50,

		CommitInterval:  100,
		CommitBatchSize: 100,

		SkipExisting: true,
		Incremental:  true,

		StateBackend: StateBackendDatabase,
		StateDir:     "",

		SubobsnumSliceBound: 100,
		ScannumSliceBound:   10000,

		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads path as YAML over the defaults, then applies environment
// overrides. A missing file is not an error — the defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TOLTECA_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("TOLTECA_REGISTRY_URL"); v != "" {
		c.RegistryURL = v
	}
	if v := os.Getenv("TOLTECA_LOCATION_LABEL"); v != "" {
		c.LocationLabel = v
	}
	if v := os.Getenv("TOLTECA_LOCATION_ROOT_URI"); v != "" {
		c.LocationRootURI = v
	}
	if v := os.Getenv("TOLTECA_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("TOLTECA_STATE_BACKEND"); v != "" {
		c.StateBackend = StateBackendKind(v)
	}
	if v := os.Getenv("TOLTECA_VALIDATION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ValidationTimeoutSeconds = n
		}
	}
	if v := os.Getenv("TOLTECA_DISABLED_INTERFACES"); v != "" {
		c.DisabledInterfaces = parseIntList(v)
	}
	if v := os.Getenv("TOLTECA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseIntList(s string) []int {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// ValidationTimeout returns ValidationTimeoutSeconds as a Duration.
func (c *Config) ValidationTimeout() time.Duration {
	return time.Duration(c.ValidationTimeoutSeconds) * time.Second
}

// SensorPollInterval returns SensorPollIntervalSeconds as a Duration.
func (c *Config) SensorPollInterval() time.Duration {
	return time.Duration(c.SensorPollIntervalSeconds) * time.Second
}

// ExpectedInterfaceCount returns max_interface_count minus the
// disabled-interface count, per §4.7's all-expected rule.
func (c *Config) ExpectedInterfaceCount() int {
	return c.MaxInterfaceCount - len(c.DisabledInterfaces)
}

// DisabledInterfaceSet returns DisabledInterfaces as a lookup set.
func (c *Config) DisabledInterfaceSet() map[int]bool {
	set := make(map[int]bool, len(c.DisabledInterfaces))
	for _, i := range c.DisabledInterfaces {
		set[i] = true
	}
	return set
}

// Validate checks the closed set of required keys.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.LocationLabel == "" {
		return fmt.Errorf("location_label is required")
	}
	if c.StateBackend == StateBackendFilesystem && c.StateDir == "" {
		return fmt.Errorf("state_dir is required when state_backend=filesystem")
	}
	if c.StateBackend != StateBackendDatabase && c.StateBackend != StateBackendFilesystem {
		return fmt.Errorf("invalid state_backend: %s", c.StateBackend)
	}
	return nil
}
