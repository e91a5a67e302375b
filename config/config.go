// Package config loads the per-node YAML configuration named in §4's
// config module: this node's address and role, and override values for
// the protocol constants of §6 (parsed only; see ConstantOverrides).
// Layout and load conventions follow the
// teacher pack's own internal/config package.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tii-ssrc/sensortree/router"
	"github.com/tii-ssrc/sensortree/types"
)

// Config is the unified node configuration. Root-only fields
// (Serial, Monitor) are ignored for sensor nodes.
type Config struct {
	Address  types.NodeAddress `yaml:"-"`
	AddrA    uint8             `yaml:"address_a"`
	AddrB    uint8             `yaml:"address_b"`
	RoleName string            `yaml:"role"` // "root" or "sensor"

	Constants ConstantOverrides `yaml:"constants,omitempty"`

	Serial  SerialConfig  `yaml:"serial,omitempty"`
	Monitor MonitorConfig `yaml:"monitor,omitempty"`
}

// ConstantOverrides holds per-deployment values for the spec §6
// protocol constants as read from the file. Load neither validates nor
// applies them: router uses its package-level constants whatever these
// fields hold.
type ConstantOverrides struct {
	MaxChildren     int           `yaml:"max_children,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	DataTime        time.Duration `yaml:"data_time,omitempty"`
	Retransmission  int           `yaml:"retransmission,omitempty"`
	BeaconBase      time.Duration `yaml:"beacon_base,omitempty"`
	BeaconJitterMax time.Duration `yaml:"beacon_jitter_max,omitempty"`
}

// SerialConfig is the root-only gateway serial device configuration.
// Load defaults Baud to 115200; serial.Open always configures 115200
// and does not read Baud.
type SerialConfig struct {
	Device string `yaml:"device,omitempty"`
	Baud   int    `yaml:"baud,omitempty"`
}

// MonitorConfig is the root-only websocket monitor listen address.
type MonitorConfig struct {
	Enabled       bool   `yaml:"enabled,omitempty"`
	ListenAddress string `yaml:"listen_address,omitempty"`
}

// Load reads and validates a node's YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	addr := types.Address(cfg.AddrA, cfg.AddrB)
	if !addr.InRange() {
		return nil, fmt.Errorf("config: address %s out of range [%d,%d]", addr, types.AddressMin, types.AddressMax)
	}
	cfg.Address = addr

	switch cfg.RoleName {
	case "root", "sensor":
	default:
		return nil, fmt.Errorf("config: role must be \"root\" or \"sensor\", got %q", cfg.RoleName)
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}

	return &cfg, nil
}

// Role resolves the configured role string into a router.Role.
func (c *Config) Role() router.Role {
	if c.RoleName == "root" {
		return router.RoleRoot
	}
	return router.RoleSensor
}
