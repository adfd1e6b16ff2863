package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "SY289", cfg.Device.NamePattern)
	assert.Equal(t, 5*time.Second, cfg.Device.ScanTimeout)
	assert.Equal(t, 10, cfg.Acquisition.Count)
	assert.Equal(t, time.Second, cfg.Acquisition.Interval)
	assert.Equal(t, "mediciones.csv", cfg.Acquisition.Output)
	assert.Equal(t, "csv", cfg.Acquisition.Format)
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, uint32(5), cfg.Reconnect.MaxFailures)
	assert.True(t, cfg.Storage.Persist)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.NoError(t, Validate(cfg))
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
device:
  name_pattern: SY304
  scan_timeout: 12s
acquisition:
  count: 25
  interval: 250ms
  output: out/data.json
  format: json
reconnect:
  enabled: false
logger:
  level: debug
  format: json
metrics:
  addr: ":9289"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "SY304", cfg.Device.NamePattern)
	assert.Equal(t, 12*time.Second, cfg.Device.ScanTimeout)
	assert.Equal(t, 25, cfg.Acquisition.Count)
	assert.Equal(t, 250*time.Millisecond, cfg.Acquisition.Interval)
	assert.Equal(t, "json", cfg.Acquisition.Format)
	assert.False(t, cfg.Reconnect.Enabled)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, ":9289", cfg.Metrics.Addr)

	// Untouched sections keep their defaults.
	assert.True(t, cfg.Storage.Persist)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.Interval)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "device: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SYLVAC_ACQUISITION_COUNT", "3")
	t.Setenv("SYLVAC_ACQUISITION_INTERVAL", "500ms")
	t.Setenv("SYLVAC_DEVICE_ADDRESS", "AA:BB:CC:DD:EE:FF")
	t.Setenv("SYLVAC_STORAGE_PERSIST", "false")
	t.Setenv("SYLVAC_LOGGER_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "acquisition:\n  count: 99\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Acquisition.Count)
	assert.Equal(t, 500*time.Millisecond, cfg.Acquisition.Interval)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Device.Address)
	assert.False(t, cfg.Storage.Persist)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Acquisition.Count = 0
	cfg.Acquisition.Interval = -time.Second
	cfg.Acquisition.Format = "xml"
	cfg.Logger.Level = "loud"
	cfg.Metrics.Addr = "no-port"

	err := Validate(cfg)
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 5)
	assert.Contains(t, err.Error(), "acquisition.count")
}

func TestValidate_ReconnectOnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Reconnect.Interval = 0
	assert.Error(t, Validate(cfg))

	cfg.Reconnect.Enabled = false
	assert.NoError(t, Validate(cfg))
}
