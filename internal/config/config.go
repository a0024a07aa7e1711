// Package config handles configuration loading for hostmend.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete agent configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Probes    ProbesConfig    `yaml:"probes"`
	Patterns  PatternsConfig  `yaml:"patterns"`
	Server    ServerConfig    `yaml:"server"`
	Forwarder ForwarderConfig `yaml:"forwarder"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AgentConfig holds top-level agent settings.
type AgentConfig struct {
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// BufferConfig holds event buffer settings.
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// ProbesConfig groups the built-in probe settings.
type ProbesConfig struct {
	Network NetworkProbeConfig `yaml:"network"`
	Process ProcessProbeConfig `yaml:"process"`
	Disk    DiskProbeConfig    `yaml:"disk"`
}

// NetworkProbeConfig holds reachability probe settings.
type NetworkProbeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Address     string        `yaml:"address"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ProcessProbeConfig holds critical-process probe settings.
type ProcessProbeConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	Processes []string      `yaml:"processes"`
}

// DiskProbeConfig holds disk-pressure probe settings.
type DiskProbeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Path        string        `yaml:"path"`
	UsedPercent float64       `yaml:"used_percent"` // emit when usage is at or above
}

// PatternsConfig holds pattern registration settings.
type PatternsConfig struct {
	Builtin bool   `yaml:"builtin"` // register the shipped patterns
	Dir     string `yaml:"dir"`     // directory of YAML pattern files
}

// ServerConfig holds the HTTP status API settings.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ForwarderConfig holds the optional Kafka alert forwarder settings.
type ForwarderConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Heartbeat: 30 * time.Second,
		},
		Buffer: BufferConfig{
			Capacity: 1000,
		},
		Probes: ProbesConfig{
			Network: NetworkProbeConfig{
				Enabled:     true,
				Interval:    5 * time.Second,
				Address:     "8.8.8.8:53",
				DialTimeout: 3 * time.Second,
			},
			Process: ProcessProbeConfig{
				Enabled:  true,
				Interval: 10 * time.Second,
				Processes: []string{
					"explorer.exe",
					"dwm.exe",
					"winlogon.exe",
				},
			},
			Disk: DiskProbeConfig{
				Enabled:     true,
				Interval:    10 * time.Minute,
				Path:        os.TempDir(),
				UsedPercent: 90,
			},
		},
		Patterns: PatternsConfig{
			Builtin: true,
			Dir:     "patterns",
		},
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Forwarder: ForwarderConfig{
			Enabled:      false,
			Brokers:      []string{"localhost:9092"},
			Topic:        "hostmend.firings",
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file or returns defaults. The path
// comes from HOSTMEND_CONFIG_PATH, falling back to configs/config.yaml;
// a missing file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("HOSTMEND_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer.capacity must be positive, got %d", c.Buffer.Capacity)
	}
	if c.Agent.Heartbeat <= 0 {
		return fmt.Errorf("agent.heartbeat must be positive, got %v", c.Agent.Heartbeat)
	}
	if c.Probes.Network.Enabled {
		if c.Probes.Network.Interval <= 0 {
			return fmt.Errorf("probes.network.interval must be positive")
		}
		if c.Probes.Network.Address == "" {
			return fmt.Errorf("probes.network.address is required")
		}
	}
	if c.Probes.Process.Enabled {
		if c.Probes.Process.Interval <= 0 {
			return fmt.Errorf("probes.process.interval must be positive")
		}
		if len(c.Probes.Process.Processes) == 0 {
			return fmt.Errorf("probes.process.processes must not be empty")
		}
	}
	if c.Probes.Disk.Enabled {
		if c.Probes.Disk.Interval <= 0 {
			return fmt.Errorf("probes.disk.interval must be positive")
		}
		if c.Probes.Disk.UsedPercent <= 0 || c.Probes.Disk.UsedPercent > 100 {
			return fmt.Errorf("probes.disk.used_percent must be in (0, 100], got %v", c.Probes.Disk.UsedPercent)
		}
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.Forwarder.Enabled {
		if len(c.Forwarder.Brokers) == 0 {
			return fmt.Errorf("forwarder.brokers must not be empty")
		}
		if c.Forwarder.Topic == "" {
			return fmt.Errorf("forwarder.topic is required")
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
