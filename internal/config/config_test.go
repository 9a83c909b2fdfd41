package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *Config {
	c := Default()
	c.Target = "0"
	return c
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, SinkGPIOSim, c.Sink)
	assert.Equal(t, "broadway-walk", c.Scenario)
	assert.Equal(t, 0.9, c.Playback.DecayRatio)
	assert.Equal(t, time.Duration(0), c.Playback.MinWait, "no decay floor unless configured")
	assert.Equal(t, TriggerStdin, c.Trigger.Source)
	assert.False(t, c.Influx.Enabled)
	assert.Empty(t, c.Control.HTTPAddr)
	assert.ErrorIs(t, c.Validate(), ErrMissingTarget)
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, `
target: station-a
sink: mqtt
scenario: straight-speedup
playback:
  mode: decay
  decay_ratio: 0.8
  min_wait: 250ms
  iterations: 12
mqtt:
  host: broker
  port: 1884
  connect_timeout: 3s
  codec: msgpack
control:
  http_addr: ":8080"
`)
	c, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "station-a", c.Target)
	assert.Equal(t, SinkMQTT, c.Sink)
	assert.Equal(t, "decay", c.Playback.Mode)
	assert.Equal(t, 0.8, c.Playback.DecayRatio)
	assert.Equal(t, 250*time.Millisecond, c.Playback.MinWait)
	assert.Equal(t, 12, c.Playback.Iterations)
	assert.Equal(t, "broker", c.MQTT.Host)
	assert.Equal(t, 1884, c.MQTT.Port)
	assert.Equal(t, 3*time.Second, c.MQTT.ConnectTimeout)
	assert.Equal(t, "msgpack", c.MQTT.Codec)
	assert.Equal(t, ":8080", c.Control.HTTPAddr)

	// untouched sections keep their defaults
	assert.Equal(t, "guest", c.MQTT.User)
	assert.Equal(t, "info", c.Logging.Level)
	assert.NoError(t, c.Validate())
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "target: [unclosed"))
	assert.Error(t, err)
}

func TestLoadAppliesEnvOverFile(t *testing.T) {
	path := writeFile(t, "target: \"1\"\nscenario: quick-write\n")
	t.Setenv("SIM_TARGET", "3")
	t.Setenv("SIM_MODE", "step")
	t.Setenv("SIM_DECAY_RATIO", "0,75")
	t.Setenv("SIM_MIN_WAIT", "0.5")
	t.Setenv("RABBITMQ_PORT", "not-a-number")
	t.Setenv("INFLUX_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "3", c.Target)
	assert.Equal(t, "quick-write", c.Scenario)
	assert.Equal(t, "step", c.Playback.Mode)
	assert.Equal(t, 0.75, c.Playback.DecayRatio)
	assert.Equal(t, 500*time.Millisecond, c.Playback.MinWait)
	assert.Equal(t, 1883, c.MQTT.Port, "unparsable values keep the previous setting")
	assert.True(t, c.Influx.Enabled)
	assert.Equal(t, "debug", c.Logging.Level)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("SIM_TARGET", "0")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0", c.Target)
	assert.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid gpiosim", func(c *Config) {}, false},
		{"blank target", func(c *Config) { c.Target = "  " }, true},
		{"gpiosim target not a chip", func(c *Config) { c.Target = "station" }, true},
		{"mqtt target may be a name", func(c *Config) { c.Sink = SinkMQTT; c.Target = "station" }, false},
		{"unknown codec", func(c *Config) { c.Sink = SinkMQTT; c.MQTT.Codec = "xml" }, true},
		{"unknown sink", func(c *Config) { c.Sink = "serial" }, true},
		{"empty scenario", func(c *Config) { c.Scenario = "" }, true},
		{"negative pins", func(c *Config) { c.Pins = -1 }, true},
		{"unknown mode", func(c *Config) { c.Playback.Mode = "reverse" }, true},
		{"decay ratio of one", func(c *Config) { c.Playback.Mode = "decay"; c.Playback.DecayRatio = 1 }, true},
		{"decay ratio ignored outside decay", func(c *Config) { c.Playback.Mode = "fixed"; c.Playback.DecayRatio = 3 }, false},
		{"negative min wait", func(c *Config) { c.Playback.MinWait = -time.Second }, true},
		{"negative iterations", func(c *Config) { c.Playback.Iterations = -2 }, true},
		{"http trigger without server", func(c *Config) { c.Trigger.Source = TriggerHTTP }, true},
		{"http trigger with server", func(c *Config) { c.Trigger.Source = TriggerHTTP; c.Control.HTTPAddr = ":0" }, false},
		{"mqtt trigger without topic", func(c *Config) { c.Trigger.Source = TriggerMQTT; c.Trigger.Topic = "" }, true},
		{"unknown trigger", func(c *Config) { c.Trigger.Source = "gpio" }, true},
		{"influx without bucket", func(c *Config) { c.Influx.Enabled = true; c.Influx.Bucket = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNeedsBroker(t *testing.T) {
	c := validConfig()
	assert.False(t, c.NeedsBroker())
	c.Trigger.Source = TriggerMQTT
	assert.True(t, c.NeedsBroker())
	c.Trigger.Source = TriggerStdin
	c.Sink = SinkMQTT
	assert.True(t, c.NeedsBroker())
}
