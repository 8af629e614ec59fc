// Package config loads the process bootstrap configuration: where the
// HTTP server listens, where the JSON documents and readings ring live, and
// the tunables for the collector and state machine engines. Grounded on
// the teacher's internal/app/config.Load (YAML + applyDefaults + validate),
// adapted from the OPC UA/Timescale/WAL policy shape to this domain's
// listen/data-dir/engine tunables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level bootstrap document (glint.yml-style single file,
// not to be confused with the per-instrument/per-setup JSON documents C2
// persists under DataDir).
type Config struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	Transport TransportConfig `yaml:"transport"`
	Readings  ReadingsConfig  `yaml:"readings"`
	Engine    EngineConfig    `yaml:"engine"`
}

// TransportConfig tunes the instrument text-command transport (§5).
type TransportConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// ReadingsConfig tunes the bounded readings ring (C3, §3 invariant 6).
type ReadingsConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// EngineConfig tunes the state machine engine's tick cadence (each
// collector's cadence comes from its setup's frequency_hz).
type EngineConfig struct {
	StateMachineTick Duration `yaml:"state_machine_tick"`
}

// Duration unmarshals YAML duration strings ("500ms", "2s") into
// time.Duration, mirroring glint's config.Duration wrapper.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Load reads and validates the bootstrap config at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Transport.Timeout.Duration == 0 {
		c.Transport.Timeout.Duration = 2 * time.Second
	}
	if c.Readings.MaxEntries == 0 {
		c.Readings.MaxEntries = 10_000
	}
	if c.Engine.StateMachineTick.Duration == 0 {
		c.Engine.StateMachineTick.Duration = time.Second
	}
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Transport.Timeout.Duration <= 0 {
		return fmt.Errorf("transport.timeout must be > 0")
	}
	if c.Readings.MaxEntries < 0 {
		return fmt.Errorf("readings.max_entries must be >= 0")
	}
	if c.Engine.StateMachineTick.Duration <= 0 {
		return fmt.Errorf("engine.state_machine_tick must be > 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}
