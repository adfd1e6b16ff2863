// Package config loads the recorder configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Reconnect   ReconnectConfig   `yaml:"reconnect"`
	Storage     StorageConfig     `yaml:"storage"`
	Logger      LoggerConfig      `yaml:"logger"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// DeviceConfig selects which caliper to connect to.
type DeviceConfig struct {
	NamePattern string        `yaml:"name_pattern"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	// Address pins a specific device; empty means the first match.
	Address string `yaml:"address"`
}

// AcquisitionConfig holds the defaults for a measurement run.
type AcquisitionConfig struct {
	Count    int           `yaml:"count"`
	Interval time.Duration `yaml:"interval"`
	Output   string        `yaml:"output"`
	Format   string        `yaml:"format"`
}

// ReconnectConfig controls recovery from a dropped link.
type ReconnectConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	MaxFailures uint32        `yaml:"max_failures"`
}

// StorageConfig holds sqlite settings.
type StorageConfig struct {
	DBPath  string `yaml:"db_path"`
	Persist bool   `yaml:"persist"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig holds the prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		Device: DeviceConfig{
			NamePattern: "SY289",
			ScanTimeout: 5 * time.Second,
		},
		Acquisition: AcquisitionConfig{
			Count:    10,
			Interval: time.Second,
			Output:   "mediciones.csv",
			Format:   "csv",
		},
		Reconnect: ReconnectConfig{
			Enabled:     true,
			Interval:    2 * time.Second,
			MaxFailures: 5,
		},
		Storage: StorageConfig{
			Persist: true,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// DefaultPath returns ~/.sylvac_recorder/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".sylvac_recorder", "config.yaml")
}

// Load reads a YAML config file and applies env var overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps SYLVAC_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SYLVAC_DEVICE_NAME_PATTERN"); v != "" {
		cfg.Device.NamePattern = v
	}
	if v := os.Getenv("SYLVAC_DEVICE_ADDRESS"); v != "" {
		cfg.Device.Address = v
	}
	if v := os.Getenv("SYLVAC_DEVICE_SCAN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Device.ScanTimeout = d
		}
	}
	if v := os.Getenv("SYLVAC_ACQUISITION_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Acquisition.Count = n
		}
	}
	if v := os.Getenv("SYLVAC_ACQUISITION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Acquisition.Interval = d
		}
	}
	if v := os.Getenv("SYLVAC_ACQUISITION_OUTPUT"); v != "" {
		cfg.Acquisition.Output = v
	}
	if v := os.Getenv("SYLVAC_ACQUISITION_FORMAT"); v != "" {
		cfg.Acquisition.Format = v
	}
	if v := os.Getenv("SYLVAC_RECONNECT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reconnect.Enabled = b
		}
	}
	if v := os.Getenv("SYLVAC_STORAGE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("SYLVAC_STORAGE_PERSIST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Storage.Persist = b
		}
	}
	if v := os.Getenv("SYLVAC_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SYLVAC_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SYLVAC_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}
