// Package config loads netcored's static interface configuration from a
// YAML file via viper, the same config layer the rest of this codebase's
// daemons use.
package config

import (
	"fmt"
	"net"

	"github.com/spf13/viper"
)

// InterfaceConfig describes one interface to register and enable at boot.
type InterfaceConfig struct {
	Name     string `mapstructure:"name"`
	Driver   string `mapstructure:"driver"` // "loopback" or "memlink"
	Peer     string `mapstructure:"peer"`   // memlink: name of the interface this one is paired with
	MAC      string `mapstructure:"mac"`
	IPv4     string `mapstructure:"ipv4"`
	Gateway  string `mapstructure:"gateway"`
	Loopback bool   `mapstructure:"loopback"`
}

// Config is netcored's top-level static configuration.
type Config struct {
	LogLevel   string            `mapstructure:"log_level"`
	Interfaces []InterfaceConfig `mapstructure:"interfaces"`
}

// Load reads path (YAML) and fills in defaults for anything the file omits.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("log_level", "info")
	v.SetDefault("interfaces", []map[string]any{
		{"name": "lo", "loopback": true, "driver": "loopback", "ipv4": "127.0.0.1", "mac": "00:00:00:00:00:00"},
	})

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	haveLoopback := false
	names := make(map[string]bool, len(c.Interfaces))
	for _, ic := range c.Interfaces {
		if ic.Name == "" {
			return fmt.Errorf("config: interface entry missing name")
		}
		if names[ic.Name] {
			return fmt.Errorf("config: duplicate interface name %q", ic.Name)
		}
		names[ic.Name] = true
		if ic.IPv4 != "" && net.ParseIP(ic.IPv4) == nil {
			return fmt.Errorf("config: interface %s: invalid ipv4 %q", ic.Name, ic.IPv4)
		}
		if ic.Driver == "memlink" && ic.Peer == "" {
			return fmt.Errorf("config: interface %s: memlink driver requires a peer", ic.Name)
		}
		if ic.Loopback {
			haveLoopback = true
		}
	}
	if !haveLoopback {
		return fmt.Errorf("config: no loopback interface configured")
	}
	return nil
}
