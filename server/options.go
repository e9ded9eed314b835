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

package server

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/profile"
	"github.com/rs/xid"
	"github.com/shadowlure/shadowlure/config"
	"github.com/shadowlure/shadowlure/listener"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/shadowlure/shadowlure/server/profiler"
)

type OptionFn func(*Server) error

func WithMemoryProfiler() OptionFn {
	return func(b *Server) error {
		b.profiler = profiler.New(profile.MemProfile)
		return nil
	}
}

func WithCPUProfiler() OptionFn {
	return func(b *Server) error {
		b.profiler = profiler.New(profile.CPUProfile)
		return nil
	}
}

// WithConfig uses an already loaded configuration.
func WithConfig(c *config.Config) OptionFn {
	return func(b *Server) error {
		b.config = c
		return nil
	}
}

// WithConfigDir sets the directory resources named in the configuration,
// like the login page, are resolved against.
func WithConfigDir(s string) (OptionFn, error) {
	dir, err := filepath.Abs(s)
	if err != nil {
		return nil, err
	}

	return func(b *Server) error {
		b.configDir = dir
		return nil
	}, nil
}

func WithDataDir(s string) (OptionFn, error) {
	var err error

	p, err := expand(s)
	if err != nil {
		return nil, err
	}

	p, err = filepath.Abs(p)
	if err != nil {
		return nil, err
	}

	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		err = os.MkdirAll(p, 0755)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return func(b *Server) error {
		b.dataDir = p
		return nil
	}, nil
}

func expand(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return filepath.Join(usr.HomeDir, path[1:]), nil
}

// WithToken sets the sensor token attached to every event. The token is kept
// in the data directory, so it only changes when the directory is removed.
// Apply it after WithDataDir.
func WithToken() OptionFn {
	return func(h *Server) error {
		uid := xid.New().String()

		if h.dataDir == "" {
			h.token = uid
			return nil
		}

		p := filepath.Join(h.dataDir, "token")

		if data, err := os.ReadFile(p); err == nil {
			uid = strings.TrimSpace(string(data))
		} else if !os.IsNotExist(err) {
			return err
		} else if err := os.WriteFile(p, []byte(uid), 0600); err != nil {
			return err
		}

		h.token = uid
		return nil
	}
}

// WithChannel subscribes an additional channel to the event bus, it receives
// every event.
func WithChannel(ch pushers.Channel) OptionFn {
	return func(h *Server) error {
		h.extra = append(h.extra, ch)
		return nil
	}
}

// WithListener selects the listener type of every service, "socket" when
// not set. The "pipe" listener serves in-memory connections.
func WithListener(name string) OptionFn {
	return func(h *Server) error {
		if _, ok := listener.Get(name); !ok {
			return fmt.Errorf("listener %s not supported", name)
		}

		h.listenerType = name
		return nil
	}
}
