// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server's tunables. Zero values take defaults.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// LiveInterval is the healthy telemetry push period.
	LiveInterval time.Duration
	// FrozenInterval is the push period while halted, faster so the
	// downtime counter feels live.
	FrozenInterval time.Duration
	// StepPause is the delay between streamed orchestration steps.
	StepPause time.Duration

	// Units pre-seeds the simulator.
	Units []string
	// InitialRUL is the simulator's starting RUL per unit.
	InitialRUL float64
}

// DefaultConfig returns the standalone-demo defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":8000",
		LiveInterval:   5 * time.Second,
		FrozenInterval: 2 * time.Second,
		StepPause:      2500 * time.Millisecond,
		Units:          []string{"ENGINE-001", "ENGINE-002", "ENGINE-003"},
		InitialRUL:     125,
	}
}

// rawConfig is the yaml shape of Config. Durations are strings in
// time.ParseDuration syntax; yaml has no native duration type.
type rawConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	LiveInterval   string   `yaml:"live_interval"`
	FrozenInterval string   `yaml:"frozen_interval"`
	StepPause      string   `yaml:"step_pause"`
	Units          []string `yaml:"units"`
	InitialRUL     float64  `yaml:"initial_rul"`
}

// LoadConfig reads a yaml config file, applies defaults, and
// validates.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("twin: reading config %s: %w", path, err)
	}

	raw := rawConfig{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("twin: parsing config %s: %w", path, err)
	}

	config := Config{
		ListenAddr: raw.ListenAddr,
		Units:      raw.Units,
		InitialRUL: raw.InitialRUL,
	}
	durations := []struct {
		name  string
		value string
		out   *time.Duration
	}{
		{"live_interval", raw.LiveInterval, &config.LiveInterval},
		{"frozen_interval", raw.FrozenInterval, &config.FrozenInterval},
		{"step_pause", raw.StepPause, &config.StepPause},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, fmt.Errorf("twin: parsing config %s: %s: %w", path, d.name, err)
		}
		*d.out = parsed
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if c.LiveInterval == 0 {
		c.LiveInterval = defaults.LiveInterval
	}
	if c.FrozenInterval == 0 {
		c.FrozenInterval = defaults.FrozenInterval
	}
	if c.StepPause == 0 {
		c.StepPause = defaults.StepPause
	}
	if len(c.Units) == 0 {
		c.Units = defaults.Units
	}
	if c.InitialRUL == 0 {
		c.InitialRUL = defaults.InitialRUL
	}
}

func (c *Config) validate() error {
	if c.LiveInterval < 0 || c.FrozenInterval < 0 || c.StepPause < 0 {
		return fmt.Errorf("twin: intervals must be non-negative")
	}
	if c.InitialRUL < 0 {
		return fmt.Errorf("twin: initial_rul must be non-negative")
	}
	return nil
}
