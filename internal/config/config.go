// Package config loads the simulator configuration.
// Order: defaults -> YAML file -> environment variables -> command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/trackside_sim/internal/logging"
	"github.com/LeonardoBeccarini/trackside_sim/internal/pinbank"
	"github.com/LeonardoBeccarini/trackside_sim/internal/sequencer"
	"github.com/LeonardoBeccarini/trackside_sim/pkg/rabbitmq"
)

var ErrMissingTarget = errors.New("target is required (gpio chip number or mqtt target name)")

const (
	SinkGPIOSim = "gpiosim"
	SinkMQTT    = "mqtt"

	TriggerStdin = "stdin"
	TriggerHTTP  = "http"
	TriggerMQTT  = "mqtt"
)

type Config struct {
	// Target is the gpio-sim chip number for the gpiosim sink, or the
	// target name embedded in MQTT topics.
	Target string `yaml:"target"`
	Sink   string `yaml:"sink"`

	// Scenario is a built-in scenario name or a path to a YAML scenario.
	Scenario string `yaml:"scenario"`
	// Pins overrides the bank size; 0 takes it from the scenario.
	Pins int `yaml:"pins"`

	GPIOSim  GPIOSimConfig  `yaml:"gpiosim"`
	Playback PlaybackConfig `yaml:"playback"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Influx   InfluxConfig   `yaml:"influx"`
	Control  ControlConfig  `yaml:"control"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type GPIOSimConfig struct {
	Root string `yaml:"root"`
}

type PlaybackConfig struct {
	// Mode is fixed, decay or step. Empty uses the scenario's own mode.
	Mode       string        `yaml:"mode"`
	DecayRatio float64       `yaml:"decay_ratio"`
	MinWait    time.Duration `yaml:"min_wait"`
	// Iterations stops after that many cycles; 0 loops forever.
	Iterations int `yaml:"iterations"`
}

type TriggerConfig struct {
	Source string `yaml:"source"`
	Prompt string `yaml:"prompt"`
	// Topic is the MQTT topic that steps a step-mode session.
	Topic string `yaml:"topic"`
}

type MQTTConfig struct {
	rabbitmq.RabbitMQConfig `yaml:",inline"`

	TopicTemplate string `yaml:"topic_template"`
	Codec         string `yaml:"codec"`
}

type InfluxConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
	QueueSize   int    `yaml:"queue_size"`
}

type ControlConfig struct {
	// HTTPAddr serves the status/step API and /metrics. Empty disables it.
	HTTPAddr string `yaml:"http_addr"`
	// GRPCAddr serves grpc.health.v1. Empty disables it.
	GRPCAddr string `yaml:"grpc_addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns a Config with every optional surface disabled.
func Default() *Config {
	return &Config{
		Sink:     SinkGPIOSim,
		Scenario: "broadway-walk",
		GPIOSim:  GPIOSimConfig{Root: pinbank.DefaultGPIOSimRoot},
		Playback: PlaybackConfig{
			DecayRatio: sequencer.DefaultDecayRatio,
			MinWait:    sequencer.NoMinWait,
		},
		Trigger: TriggerConfig{
			Source: TriggerStdin,
			Topic:  "trackside/step",
		},
		MQTT: MQTTConfig{
			RabbitMQConfig: rabbitmq.RabbitMQConfig{
				Host:           "localhost",
				Port:           1883,
				User:           "guest",
				Password:       "guest",
				ClientID:       "trackside-sim",
				ConnectTimeout: 10 * time.Second,
				MaxRetries:     5,
			},
			TopicTemplate: pinbank.DefaultTopicTemplate,
			Codec:         pinbank.CodecJSON,
		},
		Influx: InfluxConfig{
			URL:         "http://localhost:8086",
			Org:         "trackside",
			Bucket:      "stimuli",
			Measurement: "pin_transition",
			QueueSize:   1024,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile reads a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration before anything touches a pin.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target) == "" {
		return ErrMissingTarget
	}
	switch c.Sink {
	case SinkGPIOSim:
		if _, err := strconv.Atoi(c.Target); err != nil {
			return fmt.Errorf("gpiosim target must be a chip number, got %q", c.Target)
		}
	case SinkMQTT:
		if c.MQTT.Codec != pinbank.CodecJSON && c.MQTT.Codec != pinbank.CodecMsgpack {
			return fmt.Errorf("invalid mqtt codec: %s (valid: %s, %s)", c.MQTT.Codec, pinbank.CodecJSON, pinbank.CodecMsgpack)
		}
	default:
		return fmt.Errorf("invalid sink: %s (valid: %s, %s)", c.Sink, SinkGPIOSim, SinkMQTT)
	}
	if c.Scenario == "" {
		return errors.New("scenario is required")
	}
	if c.Pins < 0 {
		return fmt.Errorf("pins must be non-negative, got %d", c.Pins)
	}

	if c.Playback.Mode != "" {
		mode, err := sequencer.ParseMode(c.Playback.Mode)
		if err != nil {
			return err
		}
		if mode == sequencer.ModeDecay {
			p := sequencer.Policy{Mode: mode, Ratio: c.Playback.DecayRatio, MinWait: c.Playback.MinWait}
			if err := p.Validate(); err != nil {
				return err
			}
		}
	}
	if c.Playback.MinWait < 0 {
		return fmt.Errorf("min_wait must be non-negative, got %v", c.Playback.MinWait)
	}
	if c.Playback.Iterations < 0 {
		return fmt.Errorf("iterations must be non-negative, got %d", c.Playback.Iterations)
	}

	switch c.Trigger.Source {
	case TriggerStdin:
	case TriggerHTTP:
		if c.Control.HTTPAddr == "" {
			return errors.New("http trigger needs control.http_addr")
		}
	case TriggerMQTT:
		if c.Trigger.Topic == "" {
			return errors.New("mqtt trigger needs trigger.topic")
		}
	default:
		return fmt.Errorf("invalid trigger source: %s (valid: %s, %s, %s)", c.Trigger.Source, TriggerStdin, TriggerHTTP, TriggerMQTT)
	}

	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "") {
		return errors.New("influx journal needs url, org and bucket")
	}

	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace)", c.Logging.Level)
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}
	return nil
}

// NeedsBroker reports whether any component talks MQTT.
func (c *Config) NeedsBroker() bool {
	return c.Sink == SinkMQTT || c.Trigger.Source == TriggerMQTT
}

// Logger builds the process logger described by the logging section,
// writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	if c.Logging.Format == "json" {
		return logging.NewJSONLogger(c.Logging.Level, w)
	}
	return logging.NewLogger(c.Logging.Level, w)
}

func applyEnvOverrides(c *Config) {
	c.Target = getenv("SIM_TARGET", c.Target)
	c.Sink = getenv("SIM_SINK", c.Sink)
	c.Scenario = getenv("SIM_SCENARIO", c.Scenario)
	c.Pins = getenvInt("SIM_PINS", c.Pins)
	c.GPIOSim.Root = getenv("GPIOSIM_ROOT", c.GPIOSim.Root)

	c.Playback.Mode = getenv("SIM_MODE", c.Playback.Mode)
	c.Playback.DecayRatio = getenvFloat("SIM_DECAY_RATIO", c.Playback.DecayRatio)
	c.Playback.MinWait = getenvDuration("SIM_MIN_WAIT", c.Playback.MinWait)
	c.Playback.Iterations = getenvInt("SIM_ITERATIONS", c.Playback.Iterations)

	c.Trigger.Source = getenv("SIM_TRIGGER", c.Trigger.Source)
	c.Trigger.Topic = getenv("SIM_TRIGGER_TOPIC", c.Trigger.Topic)

	c.MQTT.Host = getenv("RABBITMQ_HOST", c.MQTT.Host)
	c.MQTT.Port = getenvInt("RABBITMQ_PORT", c.MQTT.Port)
	c.MQTT.User = getenv("RABBITMQ_USER", c.MQTT.User)
	c.MQTT.Password = getenv("RABBITMQ_PASSWORD", c.MQTT.Password)
	c.MQTT.ClientID = getenv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Codec = getenv("MQTT_CODEC", c.MQTT.Codec)

	c.Influx.Enabled = getenvBool("INFLUX_ENABLED", c.Influx.Enabled)
	c.Influx.URL = getenv("INFLUX_URL", c.Influx.URL)
	c.Influx.Token = getenv("INFLUX_TOKEN", c.Influx.Token)
	c.Influx.Org = getenv("INFLUX_ORG", c.Influx.Org)
	c.Influx.Bucket = getenv("INFLUX_BUCKET", c.Influx.Bucket)

	c.Control.HTTPAddr = getenv("SIM_HTTP_ADDR", c.Control.HTTPAddr)
	c.Control.GRPCAddr = getenv("SIM_GRPC_ADDR", c.Control.GRPCAddr)

	c.Logging.Level = getenv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getenv("LOG_FORMAT", c.Logging.Format)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvFloat(k string, d float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
	if err != nil {
		return d
	}
	return f
}

func getenvBool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

// getenvDuration accepts Go durations ("1.5s") and bare seconds ("1.5").
func getenvDuration(k string, d time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return d
}
