// Package config loads the bridge configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Endpoint describes one serial endpoint of the bridge.
type Endpoint struct {
	Name        string `yaml:"name"`
	Port        string `yaml:"port"`
	BaudRate    uint   `yaml:"baudrate"`
	FlowControl bool   `yaml:"flowcontrol"`
	TimeoutMs   int    `yaml:"timeoutMs"`
}

// Timeout returns the read timeout as a duration.
func (e Endpoint) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// Logs holds the per-subsystem debug switches.
type Logs struct {
	Codec     bool `yaml:"codec"`
	Adapter   bool `yaml:"adapter"`
	Transport bool `yaml:"transport"`
	Bridge    bool `yaml:"bridge"`
}

// Config is the complete bridge configuration.
type Config struct {
	Tester       Endpoint `yaml:"tester"`
	IUT          Endpoint `yaml:"iut"`
	Adapter      string   `yaml:"adapter"`
	Mode         string   `yaml:"mode"`
	RelayDelayUs int      `yaml:"relayDelayUs"`
	Logs         Logs     `yaml:"logs"`
}

// RelayDelay returns the pacing delay of the device-relay listener.
func (c *Config) RelayDelay() time.Duration {
	return time.Duration(c.RelayDelayUs) * time.Microsecond
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Tester: Endpoint{
			Name:      "tester",
			BaudRate:  115200,
			TimeoutMs: 1000,
		},
		IUT: Endpoint{
			Name:      "iut",
			BaudRate:  115200,
			TimeoutMs: 1000,
		},
		Adapter: "twowire",
		Mode:    "synchronous",
	}
}

func (c *Config) validate() error {
	if c.Tester.Port == "" {
		return fmt.Errorf("tester port not set")
	}
	if c.IUT.Port == "" {
		return fmt.Errorf("iut port not set")
	}
	if c.Mode != "synchronous" && c.Mode != "asynchronous" {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Adapter == "" {
		return fmt.Errorf("adapter not set")
	}
	if c.RelayDelayUs < 0 {
		return fmt.Errorf("negative relayDelayUs")
	}
	if c.RelayDelayUs == 0 {
		// Keep the relay listener from starving the translating one,
		// scaled like the IUT read timeout.
		c.RelayDelayUs = c.IUT.TimeoutMs
	}
	return nil
}
