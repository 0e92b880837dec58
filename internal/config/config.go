// Package config loads the agent's startup configuration from a TOML file,
// the way the teacher's daemon loads its group/key TOML files, validating
// everything up front so bad configuration fails fast at exit code 1 rather
// than surfacing later as a runtime error.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/loragw/gateway-agent/internal/xerr"
	"github.com/loragw/gateway-agent/key"
)

// Mode selects the region-fetch strategy: config-service or validator.
// Exactly one of Config / Gateways is set, matching spec §6's "mutually
// exclusive" config-service vs gateways option.
type Mode int

const (
	ModeConfigService Mode = iota
	ModeValidator
)

// Config is the agent's fully-resolved startup configuration.
type Config struct {
	Region     string   `toml:"region"`
	KeypairURI string   `toml:"keypair"`
	Listen     string   `toml:"listen"`
	API        string   `toml:"api"`
	ConfigURI  *keyedURI `toml:"config"`
	Gateways   []keyedURI `toml:"gateways"`
	RouterURI  keyedURI  `toml:"router"`
	LogLevel   string   `toml:"log_level"`
	LogJSON    bool     `toml:"log_json"`
	BeaconPeriodSeconds int `toml:"beacon_period_seconds"`
}

type keyedURI struct {
	URI string `toml:"uri"`
	Key string `toml:"public_key"`
}

// Load reads and validates a TOML config file at path.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", xerr.ErrBadConfig, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Region == "" {
		return fmt.Errorf("%w: region is required", xerr.ErrBadConfig)
	}
	if c.KeypairURI == "" {
		return fmt.Errorf("%w: keypair is required", xerr.ErrBadConfig)
	}
	if c.Listen == "" {
		return fmt.Errorf("%w: listen is required", xerr.ErrBadConfig)
	}
	if (c.ConfigURI == nil) == (len(c.Gateways) == 0) {
		return fmt.Errorf("%w: exactly one of config or gateways must be set", xerr.ErrBadConfig)
	}
	if c.BeaconPeriodSeconds <= 0 {
		c.BeaconPeriodSeconds = 60
	}
	return nil
}

// Mode reports which region-fetch strategy this config selects.
func (c *Config) Mode() Mode {
	if c.ConfigURI != nil {
		return ModeConfigService
	}
	return ModeValidator
}

// ResolveConfigURI parses the config-service KeyedUri. Only valid when
// Mode() == ModeConfigService.
func (c *Config) ResolveConfigURI() (key.KeyedUri, error) {
	return key.ParseKeyedUri(c.ConfigURI.URI, c.ConfigURI.Key)
}

// ResolveGateways parses the validator-mode seed list. Only valid when
// Mode() == ModeValidator.
func (c *Config) ResolveGateways() ([]key.KeyedUri, error) {
	out := make([]key.KeyedUri, 0, len(c.Gateways))
	for _, g := range c.Gateways {
		ku, err := key.ParseKeyedUri(g.URI, g.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: unresolvable gateway seed: %v", xerr.ErrUnresolvableURI, err)
		}
		out = append(out, ku)
	}
	return out, nil
}

// ResolveRouterURI parses the packet-router / poc_lora endpoint's KeyedUri.
// The same cloud host serves packet_router.Route and poc_lora's entropy and
// report RPCs by convention; the spec's enumerated config options are
// silent on this address, so this agent resolves it from one "router" key,
// documented as an Open Question resolution in DESIGN.md.
func (c *Config) ResolveRouterURI() (key.KeyedUri, error) {
	return key.ParseKeyedUri(c.RouterURI.URI, c.RouterURI.Key)
}
