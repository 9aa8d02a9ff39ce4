package grid

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaults(t *testing.T) {
	settings := &Settings{}
	require.NoError(t, settings.ValidateAndDefault())

	assert.Equal(t, DefaultWorkerPollInterval, settings.Worker.PollInterval)
	assert.Equal(t, DefaultWorkerRegisterAttempts, settings.Worker.RegisterAttempts)
	assert.False(t, settings.Worker.ImmediateResults)
	assert.Equal(t, "info", settings.Logging.Level)
	assert.NotEmpty(t, settings.Supervisor.BasePath)
	assert.Zero(t, settings.Broker.StatusPort)
}

func TestSettingsValidation(t *testing.T) {
	for name, settings := range map[string]Settings{
		"NegativePollInterval":   {Worker: WorkerConfig{PollInterval: -time.Second}},
		"NegativeAttempts":       {Worker: WorkerConfig{RegisterAttempts: -1}},
		"StatusPortOutOfRange":   {Broker: BrokerConfig{StatusPort: 1 << 16}},
		"UnknownLogLevel":        {Logging: LoggingConfig{Level: "chatty"}},
		"NegativeStatusPortPort": {Broker: BrokerConfig{StatusPort: -2}},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, settings.ValidateAndDefault())
		})
	}
}

func TestNewSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grid.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
broker:
  status_port: 8080
supervisor:
  base_path: /opt/grid
worker:
  poll_interval: 250ms
  immediate_results: true
logging:
  level: debug
  prefix: /var/log/grid
`), 0644))

	settings, err := NewSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, settings.Broker.StatusPort)
	assert.Equal(t, "/opt/grid", settings.Supervisor.BasePath)
	assert.Equal(t, 250*time.Millisecond, settings.Worker.PollInterval)
	assert.True(t, settings.Worker.ImmediateResults)
	assert.Equal(t, DefaultWorkerRegisterAttempts, settings.Worker.RegisterAttempts)
	assert.Equal(t, "debug", settings.Logging.Level)
	assert.Equal(t, "/var/log/grid", settings.Logging.Prefix)
}

func TestNewSettingsMissingFile(t *testing.T) {
	_, err := NewSettings(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestApplyEnvironment(t *testing.T) {
	settings := &Settings{Logging: LoggingConfig{Level: "warning"}}
	require.NoError(t, settings.ApplyEnvironment([]string{
		"GRID_WORKER_POLL_INTERVAL=3s",
		"GRID_WORKER_IMMEDIATE_RESULTS=true",
		"GRID_BROKER_STATUS_PORT=9090",
		"GRID_LOGGING_PREFIX=/tmp/grid-worker",
		"GRID_UNKNOWN_KEY=ignored",
		"GRIDLESS=ignored",
		"PATH=/usr/bin",
	}))

	assert.Equal(t, 3*time.Second, settings.Worker.PollInterval)
	assert.True(t, settings.Worker.ImmediateResults)
	assert.Equal(t, 9090, settings.Broker.StatusPort)
	assert.Equal(t, "/tmp/grid-worker", settings.Logging.Prefix)
	assert.Equal(t, "warning", settings.Logging.Level, "keys without an override keep their value")
}

func TestEnvironmentKey(t *testing.T) {
	assert.Equal(t, "GRID_LOGGING_PREFIX", EnvironmentKey("logging", "prefix"))

	settings := &Settings{}
	require.NoError(t, settings.ApplyEnvironment([]string{EnvironmentKey("logging", "level") + "=debug"}))
	assert.Equal(t, "debug", settings.Logging.Level)
}
