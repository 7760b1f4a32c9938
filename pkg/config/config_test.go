package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/gatt"
	"github.com/srg/bletx/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "goble", cfg.Backend)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ScanWindow)
	assert.True(t, cfg.ActiveScan)
	assert.Equal(t, time.Second, cfg.SendInterval)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "6e400002-b5a3-f393-e0a9-e50e24dcca9e", cfg.TargetCharacteristic)
	assert.Equal(t, gatt.PreferWithoutResponse, cfg.Policy())
	assert.Equal(t, schedule.Automatic, cfg.Mode())
	assert.Equal(t, 256, cfg.EventBuffer)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesOnlyPresentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bletx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: tinygo
active_scan: false
scan_window: 2500ms
initial_mode: manual
write_policy: prefer-with-response
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tinygo", cfg.Backend)
	assert.False(t, cfg.ActiveScan, "explicit false MUST survive defaults")
	assert.Equal(t, 2500*time.Millisecond, cfg.ScanWindow)
	assert.Equal(t, schedule.Manual, cfg.Mode())
	assert.Equal(t, gatt.PreferWithResponse, cfg.Policy())
	assert.Equal(t, time.Second, cfg.SendInterval, "absent keys MUST keep defaults")
	assert.NoError(t, cfg.Validate())
}

func TestLoadEmptyPathAndEmptyFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan_windw: 1s\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "bluez"
	cfg.LogLevel = "loud"
	cfg.TargetCharacteristic = "xyz"
	cfg.WritePolicy = "sometimes"
	cfg.InitialMode = "idle"
	cfg.ScanWindow = 0
	cfg.EventBuffer = -1

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"backend", "log_level", "target_characteristic", "write_policy", "initial_mode", "scan_window", "event_buffer"} {
		assert.Contains(t, err.Error(), field+":")
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{"creates logger with debug level", "debug", logrus.DebugLevel},
		{"creates logger with warn level", "warn", logrus.WarnLevel},
		{"falls back to info", "bogus", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()
			assert.Equal(t, tt.want, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
