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
	"sort"
	"strings"

	"github.com/shadowlure/shadowlure/config"
	"github.com/shadowlure/shadowlure/pushers"

	// channels register themselves
	_ "github.com/shadowlure/shadowlure/pushers/console"
	_ "github.com/shadowlure/shadowlure/pushers/file"
	_ "github.com/shadowlure/shadowlure/pushers/kafka"
	_ "github.com/shadowlure/shadowlure/pushers/rabbitmq"
)

// setupChannels creates the configured channels and subscribes them to the
// bus as the filters describe. Without channels events go to the console,
// without filters every channel receives every event.
func (hc *Server) setupChannels() error {
	channels := map[string]pushers.Channel{}

	keys := make([]string, 0, len(hc.config.Channels))
	for key := range hc.config.Channels {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		s := hc.config.Channels[key]

		x := struct {
			Type string `toml:"type"`
		}{}

		if err := hc.config.PrimitiveDecode(s, &x); err != nil {
			return &config.ConfigError{Key: "channel." + key, Err: err}
		}

		if x.Type == "" {
			x.Type = key
		}

		channelFunc, ok := pushers.Get(x.Type)
		if !ok {
			return &config.ConfigError{
				Key: "channel." + key,
				Err: fmt.Errorf("unknown channel type %q, available: %s", x.Type, strings.Join(pushers.Names(), ", ")),
			}
		}

		d, err := channelFunc(pushers.WithConfig(s, hc.config))
		if err != nil {
			hc.closeChannels(channels)
			return &config.ConfigError{Key: "channel." + key, Err: err}
		}

		channels[key] = d
	}

	if len(channels) == 0 {
		log.Warning("No channels configured, sending events to the console.")

		fn, _ := pushers.Get("console")

		d, err := fn()
		if err != nil {
			return err
		}

		channels["console"] = d
	}

	isChannelUsed := map[string]bool{}

	subscribe := func(name string, channel pushers.Channel) {
		isChannelUsed[name] = true

		if err := hc.bus.Subscribe(pushers.TokenChannel(channel, hc.token)); err != nil {
			log.Errorf("Could not add channel %s to bus: %s", name, err.Error())
		}
	}

	if len(hc.config.Filters) == 0 {
		for name, channel := range channels {
			subscribe(name, channel)
		}
	}

	for i, s := range hc.config.Filters {
		x := struct {
			Channels []string `toml:"channel"`
			Services []string `toml:"services"`
			Events   []string `toml:"events"`
		}{}

		key := fmt.Sprintf("filter[%d]", i)

		if err := hc.config.PrimitiveDecode(s, &x); err != nil {
			hc.closeChannels(channels)
			return &config.ConfigError{Key: key, Err: err}
		}

		for _, name := range x.Channels {
			channel, ok := channels[name]
			if !ok {
				hc.closeChannels(channels)
				return &config.ConfigError{Key: key, Err: fmt.Errorf("unknown channel %q", name)}
			}

			if len(x.Services) != 0 {
				fn, err := pushers.RegexFilterFunc("service", x.Services)
				if err != nil {
					hc.closeChannels(channels)
					return &config.ConfigError{Key: key + ".services", Err: err}
				}

				channel = pushers.FilterChannel(channel, fn)
			}

			if len(x.Events) != 0 {
				fn, err := pushers.RegexFilterFunc("event", x.Events)
				if err != nil {
					hc.closeChannels(channels)
					return &config.ConfigError{Key: key + ".events", Err: err}
				}

				channel = pushers.FilterChannel(channel, fn)
			}

			subscribe(name, channel)
		}
	}

	for name, channel := range channels {
		if isChannelUsed[name] {
			continue
		}

		log.Warningf("Channel %s is unused. Did you forget to add a filter?", name)

		if err := pushers.Close(channel); err != nil {
			log.Errorf("Error closing channel %s: %s", name, err.Error())
		}
	}

	for _, channel := range hc.extra {
		hc.bus.Subscribe(pushers.TokenChannel(channel, hc.token))
	}

	return nil
}

func (hc *Server) closeChannels(channels map[string]pushers.Channel) {
	for name, channel := range channels {
		if err := pushers.Close(channel); err != nil {
			log.Errorf("Error closing channel %s: %s", name, err.Error())
		}
	}
}
