// Package config loads the daemon configuration.
//
// The file is YAML. Every key is optional; missing keys keep the values
// from Default. Command-line flags are applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/canbus-battery/internal/derive"
	"github.com/sweeney/canbus-battery/internal/gpio"
	"github.com/sweeney/canbus-battery/internal/liveness"
	"github.com/sweeney/canbus-battery/internal/mqtt"
	"github.com/sweeney/canbus-battery/internal/natspub"
	"github.com/sweeney/canbus-battery/internal/pipeline"
	"github.com/sweeney/canbus-battery/internal/sink"
	"github.com/sweeney/canbus-battery/internal/source"
)

// Config is the daemon configuration.
type Config struct {
	// MappingFile is the JSONC file mapping frame ids to value paths.
	MappingFile string `yaml:"mapping_file"`

	// CANInterface is passed to candump.
	CANInterface string `yaml:"can_interface"`

	// CandumpPath is the candump executable.
	CandumpPath string `yaml:"candump_path"`

	// Input replays candump output from a file instead of starting
	// candump. "-" reads standard input.
	Input string `yaml:"input"`

	Window            time.Duration `yaml:"window"`
	Tick              time.Duration `yaml:"tick"`
	Poll              time.Duration `yaml:"poll"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	StallTimeout      time.Duration `yaml:"stall_timeout"`

	MQTT MQTTConfig `yaml:"mqtt"`
	NATS NATSConfig `yaml:"nats"`

	// HTTPAddr is the status server address. Empty disables it.
	HTTPAddr string `yaml:"http_addr"`

	// LEDPin is the GPIO line of the link LED; -1 disables it.
	LEDPin  int    `yaml:"led_pin"`
	LEDChip string `yaml:"led_chip"`

	ConnectedPath string      `yaml:"connected_path"`
	Paths         PathsConfig `yaml:"paths"`

	// Identity values are published once at startup.
	Identity []IdentityValue `yaml:"identity"`

	Log LogConfig `yaml:"log"`
}

// MQTTConfig configures the MQTT sink. An empty broker disables it.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	ClientID       string        `yaml:"client_id"`
	QoS            byte          `yaml:"qos"`
	Retained       bool          `yaml:"retained"`
	Buffer         int           `yaml:"buffer"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// NATSConfig configures the NATS sink. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// PathsConfig names the inputs and outputs of the derived values.
type PathsConfig struct {
	Voltage           string `yaml:"voltage"`
	Current           string `yaml:"current"`
	ModulesOnline     string `yaml:"modules_online"`
	StateOfCharge     string `yaml:"state_of_charge"`
	Power             string `yaml:"power"`
	InstalledCapacity string `yaml:"installed_capacity"`
	AvailableCapacity string `yaml:"available_capacity"`
}

// IdentityValue is one static path. Value must be a bool, number or string.
type IdentityValue struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	p := derive.DefaultPaths()
	return &Config{
		MappingFile:       "/etc/canbus-battery/can-mappings.json",
		CANInterface:      "can1",
		CandumpPath:       source.DefaultCandumpPath,
		Window:            10 * time.Second,
		Tick:              pipeline.DefaultTick,
		Poll:              pipeline.DefaultPoll,
		ConnectionTimeout: liveness.DefaultConnectionTimeout,
		StallTimeout:      liveness.DefaultStallTimeout,
		MQTT: MQTTConfig{
			TopicPrefix:    mqtt.DefaultTopicPrefix,
			QoS:            1,
			Retained:       true,
			Buffer:         mqtt.DefaultBufferSize,
			PublishTimeout: mqtt.DefaultPublishTimeout,
		},
		NATS: NATSConfig{
			SubjectPrefix: natspub.DefaultSubjectPrefix,
		},
		HTTPAddr:      ":8080",
		LEDPin:        gpio.DisabledPin,
		LEDChip:       gpio.DefaultChip,
		ConnectedPath: pipeline.DefaultConnectedPath,
		Paths: PathsConfig{
			Voltage:           p.Voltage,
			Current:           p.Current,
			ModulesOnline:     p.ModulesOnline,
			StateOfCharge:     p.StateOfCharge,
			Power:             p.Power,
			InstalledCapacity: p.InstalledCapacity,
			AvailableCapacity: p.AvailableCapacity,
		},
		Identity: []IdentityValue{
			{Path: "/Mgmt/ProcessName", Value: "canbus-battery"},
			{Path: "/Mgmt/Connection", Value: "BMS-CAN"},
			{Path: "/DeviceInstance", Value: 42},
			{Path: "/ProductId", Value: 0xBA77},
			{Path: "/ProductName", Value: "ELPM482-00005"},
			{Path: "/FirmwareVersion", Value: 0},
			{Path: "/HardwareVersion", Value: 0},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep
// their default value; an identity list in the file replaces the default
// list entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are an error; an empty
// document leaves cfg unchanged.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.MappingFile == "" {
		errs = append(errs, errors.New("mapping_file is required"))
	}
	if c.Input == "" && c.CANInterface == "" {
		errs = append(errs, errors.New("can_interface is required when no input file is set"))
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"window", c.Window},
		{"tick", c.Tick},
		{"poll", c.Poll},
		{"connection_timeout", c.ConnectionTimeout},
		{"stall_timeout", c.StallTimeout},
		{"mqtt.publish_timeout", c.MQTT.PublishTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", d.name, d.d))
		}
	}
	if c.StallTimeout <= c.ConnectionTimeout {
		errs = append(errs, fmt.Errorf("stall_timeout (%v) must be greater than connection_timeout (%v)",
			c.StallTimeout, c.ConnectionTimeout))
	}

	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.MQTT.Buffer < 0 {
		errs = append(errs, fmt.Errorf("mqtt.buffer must not be negative, got %d", c.MQTT.Buffer))
	}
	if c.LEDPin < gpio.DisabledPin {
		errs = append(errs, fmt.Errorf("led_pin must be -1 or a line number, got %d", c.LEDPin))
	}

	for i, id := range c.Identity {
		if id.Path == "" {
			errs = append(errs, fmt.Errorf("identity[%d]: path is required", i))
			continue
		}
		if _, err := sink.ValueOf(id.Value); err != nil {
			errs = append(errs, fmt.Errorf("identity %s: %w", id.Path, err))
		}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// DerivePaths converts the paths section for the pipeline.
func (c *Config) DerivePaths() derive.Paths {
	return derive.Paths{
		Voltage:           c.Paths.Voltage,
		Current:           c.Paths.Current,
		ModulesOnline:     c.Paths.ModulesOnline,
		StateOfCharge:     c.Paths.StateOfCharge,
		Power:             c.Paths.Power,
		InstalledCapacity: c.Paths.InstalledCapacity,
		AvailableCapacity: c.Paths.AvailableCapacity,
	}
}

// PipelineConfig returns the pipeline timings and paths.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Window: c.Window,
		Tick:   c.Tick,
		Poll:   c.Poll,
		Liveness: liveness.Config{
			ConnectionTimeout: c.ConnectionTimeout,
			StallTimeout:      c.StallTimeout,
		},
		ConnectedPath: c.ConnectedPath,
		Paths:         c.DerivePaths(),
	}
}

// IdentityValues converts the identity list. Call Validate first.
func (c *Config) IdentityValues() ([]pipeline.Identity, error) {
	out := make([]pipeline.Identity, 0, len(c.Identity))
	for _, id := range c.Identity {
		v, err := sink.ValueOf(id.Value)
		if err != nil {
			return nil, fmt.Errorf("identity %s: %w", id.Path, err)
		}
		out = append(out, pipeline.Identity{Path: id.Path, Value: v})
	}
	return out, nil
}
