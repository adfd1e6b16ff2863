package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateDevice(cfg, ve)
	validateAcquisition(cfg, ve)
	validateReconnect(cfg, ve)
	validateLogger(cfg, ve)
	validateMetrics(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateDevice(cfg *Config, ve *ValidationError) {
	if cfg.Device.NamePattern == "" && cfg.Device.Address == "" {
		ve.Add("device.name_pattern or device.address is required")
	}
	if cfg.Device.ScanTimeout <= 0 {
		ve.Add("device.scan_timeout must be positive, got %s", cfg.Device.ScanTimeout)
	}
}

func validateAcquisition(cfg *Config, ve *ValidationError) {
	a := cfg.Acquisition
	if a.Count <= 0 {
		ve.Add("acquisition.count must be positive, got %d", a.Count)
	}
	if a.Interval < 0 {
		ve.Add("acquisition.interval must not be negative, got %s", a.Interval)
	}
	if a.Output == "" {
		ve.Add("acquisition.output is required")
	}
	switch strings.ToLower(a.Format) {
	case "csv", "json":
	default:
		ve.Add("acquisition.format must be csv or json, got %q", a.Format)
	}
}

func validateReconnect(cfg *Config, ve *ValidationError) {
	if !cfg.Reconnect.Enabled {
		return
	}
	if cfg.Reconnect.Interval <= 0 {
		ve.Add("reconnect.interval must be positive, got %s", cfg.Reconnect.Interval)
	}
	if cfg.Reconnect.MaxFailures == 0 {
		ve.Add("reconnect.max_failures must be at least 1")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format must be text or json, got %q", cfg.Logger.Format)
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if cfg.Metrics.Addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
		ve.Add("metrics.addr %q: %v", cfg.Metrics.Addr, err)
	}
}
