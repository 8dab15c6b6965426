// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Bus types accepted in the configuration.
const (
	TypeHA7Net = "ha7net"
	TypeW1     = "w1"
)

// Config is the content of the configuration file.
type Config struct {
	Buses []BusConfig `yaml:"buses"`
}

// BusConfig describes one bus.
//
// Endpoint is used by ha7net buses, Master by w1 buses. A zero Timeout uses
// the adapter's default.
type BusConfig struct {
	Name     string        `yaml:"name"`
	Type     string        `yaml:"type"`
	Endpoint string        `yaml:"endpoint,omitempty"`
	Master   uint32        `yaml:"master,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

func (b *BusConfig) String() string {
	if b.Type == TypeW1 {
		return fmt.Sprintf("%s (w1 master %d)", b.Name, b.Master)
	}
	return fmt.Sprintf("%s (ha7net %s)", b.Name, b.Endpoint)
}

// loadConfig reads path. An empty path returns an empty configuration.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// addFlags appends the buses given on the command line. They are named after
// their type and position.
func (c *Config) addFlags(ha7 []string, w1 []uint) {
	for i, ep := range ha7 {
		c.Buses = append(c.Buses, BusConfig{Name: "ha7net" + strconv.Itoa(i), Type: TypeHA7Net, Endpoint: ep})
	}
	for _, m := range w1 {
		c.Buses = append(c.Buses, BusConfig{Name: "w1-" + strconv.FormatUint(uint64(m), 10), Type: TypeW1, Master: uint32(m)})
	}
}

// applyTimeout overrides every bus timeout when d is not zero.
func (c *Config) applyTimeout(d time.Duration) {
	if d == 0 {
		return
	}
	for i := range c.Buses {
		c.Buses[i].Timeout = d
	}
}

func (c *Config) validate() error {
	if len(c.Buses) == 0 {
		return errors.New("no bus configured; use --config, --ha7 or --w1")
	}
	seen := map[string]bool{}
	for i, b := range c.Buses {
		if b.Name == "" {
			return fmt.Errorf("bus #%d: missing name", i)
		}
		if strings.Contains(b.Name, ":") {
			return fmt.Errorf("bus %q: name cannot contain ':'", b.Name)
		}
		if seen[b.Name] {
			return fmt.Errorf("bus %q: configured twice", b.Name)
		}
		seen[b.Name] = true
		switch b.Type {
		case TypeHA7Net:
			if b.Endpoint == "" {
				return fmt.Errorf("bus %q: missing endpoint", b.Name)
			}
		case TypeW1:
		default:
			return fmt.Errorf("bus %q: unknown type %q", b.Name, b.Type)
		}
		if b.Timeout < 0 {
			return fmt.Errorf("bus %q: negative timeout", b.Name)
		}
	}
	return nil
}

// find returns the buses named in names, all of them when names is empty.
func (c *Config) find(names []string) ([]BusConfig, error) {
	if len(names) == 0 {
		return c.Buses, nil
	}
	var out []BusConfig
	for _, n := range names {
		found := false
		for _, b := range c.Buses {
			if b.Name == n {
				out = append(out, b)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown bus %q", n)
		}
	}
	return out, nil
}
