// Copyright 2016-2019 DutchSec (https://dutchsec.com/)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//Package config is the shadowlure configuration, it is set by the server.
package config

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("shadowlure:config")

var format = logging.MustStringFormatter(
	"%{color}%{time:15:04:05.000} %{module} ▶ %{level:.4s} %{id:03x} %{message}%{color:reset}",
)

// Config defines the central type where all configuration is umarshalled to.
type Config struct {
	toml.MetaData

	DrainTimeout Delay `toml:"drain-timeout"`

	Control ControlConfig `toml:"control"`

	Services map[string]toml.Primitive `toml:"service"`
	Channels map[string]toml.Primitive `toml:"channel"`

	Filters []toml.Primitive `toml:"filter"`

	Logging []struct {
		Output string `toml:"output"`
		Level  string `toml:"level"`
	} `toml:"logging"`
}

// ControlConfig configures the local control interface used by the status
// command. An empty address disables it.
type ControlConfig struct {
	Address string `toml:"address"`
}

// DefaultDrainTimeout is how long in-flight sessions may run after shutdown
// was requested.
const DefaultDrainTimeout = 10 * time.Second

// DefaultControlAddress is the default listen address of the control interface.
const DefaultControlAddress = "127.0.0.1:7070"

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		DrainTimeout: Delay(DefaultDrainTimeout),
		Control: ControlConfig{
			Address: DefaultControlAddress,
		},
	}
}

// LoadFile opens and loads the configuration file at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, &ConfigError{
			Key: path,
			Err: fmt.Errorf("file not found, run `shadowlure copyconfig` to create a default configuration"),
		}
	} else if err != nil {
		return nil, &ConfigError{Key: path, Err: err}
	}

	defer f.Close()

	c := New()
	if err := c.Load(f); err != nil {
		return nil, err
	}

	return c, nil
}

// Load attempts to load the giving toml configuration file.
func (c *Config) Load(r io.Reader) error {
	md, err := toml.NewDecoder(r).Decode(c)
	if err != nil {
		return &ConfigError{Key: "config", Err: err}
	}
	c.MetaData = md

	if _, err := c.ServiceConfigs(); err != nil {
		return err
	}

	return c.setupLogging()
}

func (c *Config) setupLogging() error {
	if len(c.Logging) == 0 {
		fmt.Fprintln(os.Stderr, "Warning: no logging backends configured, logging to stderr.")

		backend := logging.NewBackendFormatter(logging.NewLogBackend(os.Stderr, "", 0), format)
		leveled := logging.AddModuleLevel(backend)
		leveled.SetLevel(logging.INFO, "")
		logging.SetBackend(leveled)
		return nil
	}

	var logBackends []logging.Backend
	for i, l := range c.Logging {
		var output io.Writer

		switch l.Output {
		case "stdout":
			output = os.Stdout
		case "stderr":
			output = os.Stderr
		default:
			f, err := os.OpenFile(os.ExpandEnv(l.Output), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0660)
			if err != nil {
				return &ConfigError{Key: fmt.Sprintf("logging[%d].output", i), Err: err}
			}

			output = f
		}

		backend := logging.NewLogBackend(output, "", 0)
		backendFormatter := logging.NewBackendFormatter(backend, format)
		backendLeveled := logging.AddModuleLevel(backendFormatter)

		level, err := logging.LogLevel(l.Level)
		if err != nil {
			return &ConfigError{Key: fmt.Sprintf("logging[%d].level", i), Err: err}
		}

		backendLeveled.SetLevel(level, "")

		logBackends = append(logBackends, backendLeveled)
	}

	logging.SetBackend(logBackends...)
	return nil
}

// ServiceConfig is the validated configuration of a single service.
type ServiceConfig struct {
	Name    string
	Type    string
	Port    uint16
	Enabled bool

	// Options holds every other key of the service section.
	Options map[string]string

	// Primitive is the raw section, decoded by the service itself.
	Primitive toml.Primitive
}

var reservedKeys = map[string]bool{
	"type":    true,
	"enabled": true,
	"port":    true,
}

// ServiceConfigs returns the configured services sorted by name. A section
// without `enabled = true`, like a missing section, is disabled.
func (c *Config) ServiceConfigs() ([]ServiceConfig, error) {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}

	sort.Strings(names)

	var configs []ServiceConfig
	for _, name := range names {
		p := c.Services[name]

		x := struct {
			Type    string `toml:"type"`
			Enabled *bool  `toml:"enabled"`
			Port    int    `toml:"port"`
		}{}

		if err := c.PrimitiveDecode(p, &x); err != nil {
			return nil, &ConfigError{Key: "service." + name, Err: err}
		}

		raw := map[string]interface{}{}
		if err := c.PrimitiveDecode(p, &raw); err != nil {
			return nil, &ConfigError{Key: "service." + name, Err: err}
		}

		sc := ServiceConfig{
			Name:      name,
			Type:      x.Type,
			Enabled:   x.Enabled != nil && *x.Enabled,
			Options:   map[string]string{},
			Primitive: p,
		}

		if sc.Type == "" {
			sc.Type = name
		}

		for k, v := range raw {
			if reservedKeys[k] {
				continue
			}

			sc.Options[k] = fmt.Sprintf("%v", v)
		}

		if !sc.Enabled {
		} else if x.Port <= 0 || x.Port > 65535 {
			return nil, &ConfigError{
				Key: "service." + name + ".port",
				Err: fmt.Errorf("port %d out of range, expected 1-65535", x.Port),
			}
		}

		sc.Port = uint16(x.Port)
		configs = append(configs, sc)
	}

	return configs, nil
}

// EnabledServices returns only the enabled services.
func (c *Config) EnabledServices() ([]ServiceConfig, error) {
	all, err := c.ServiceConfigs()
	if err != nil {
		return nil, err
	}

	var enabled []ServiceConfig
	for _, sc := range all {
		if sc.Enabled {
			enabled = append(enabled, sc)
		}
	}

	return enabled, nil
}
