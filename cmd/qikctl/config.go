// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"github.com/GermanBionicSystems/qikbus/qik"
)

// Config is read from the environment, then overlaid with the board file.
type Config struct {
	Port        string        `env:"QIK_PORT" envDefault:"/dev/ttyO1" yaml:"port"`
	BaudRate    int           `env:"QIK_BAUD" envDefault:"38400" yaml:"baud"`
	ReadTimeout time.Duration `env:"QIK_READ_TIMEOUT" envDefault:"1s" yaml:"read_timeout"`
	Protocol    string        `env:"QIK_PROTOCOL" envDefault:"addressed" yaml:"protocol"`
	CRC         bool          `env:"QIK_CRC" envDefault:"false" yaml:"crc"`
	// Device is used by commands when no device is given.
	Device   uint8  `env:"QIK_DEVICE" envDefault:"9" yaml:"device"`
	GPIORoot string `env:"QIK_GPIO_ROOT" envDefault:"/sys/class/gpio" yaml:"gpio_root"`

	// Devices names controllers by id.
	Devices map[string]uint8 `yaml:"devices"`
	// Encoders names rotary encoders.
	Encoders map[string]EncoderConfig `yaml:"encoders"`
}

// EncoderConfig describes a rotary encoder wired to two pins.
type EncoderConfig struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
	// Steps is the number of steps per detent: 1, 2 or 4. Defaults to 1.
	Steps    int           `yaml:"steps"`
	Debounce time.Duration `yaml:"debounce"`
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := parseProtocol(c.Protocol); err != nil {
		return err
	}
	if c.Device > qik.MaxDeviceID {
		return fmt.Errorf("device %d out of range", c.Device)
	}
	for name, id := range c.Devices {
		if id > qik.MaxDeviceID {
			return fmt.Errorf("device %q: id %d out of range", name, id)
		}
	}
	for name, e := range c.Encoders {
		if e.A == "" || e.B == "" {
			return fmt.Errorf("encoder %q: both phases are required", name)
		}
		switch e.Steps {
		case 0:
			e.Steps = 1
			c.Encoders[name] = e
		case 1, 2, 4:
		default:
			return fmt.Errorf("encoder %q: steps must be 1, 2 or 4, got %d", name, e.Steps)
		}
	}
	return nil
}

// deviceName returns the board file name of a controller, if any.
func (c *Config) deviceName(id uint8) string {
	for name, v := range c.Devices {
		if v == id {
			return name
		}
	}
	return ""
}

func parseProtocol(s string) (qik.Protocol, error) {
	switch strings.ToLower(s) {
	case "addressed", "pololu":
		return qik.Addressed, nil
	case "compact":
		return qik.Compact, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q, should be one of addressed or compact", s)
	}
}
