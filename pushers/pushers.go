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

package pushers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/op/go-logging"
	"github.com/shadowlure/shadowlure/event"
)

var log = logging.MustGetLogger("shadowlure:channels")

// Channel defines a interface which exposes a single method for delivering
// events to a giving underline service. Send must never block the caller.
type Channel interface {
	Send(event.Event)
}

// Closer is implemented by channels that buffer events; Close flushes what is
// queued and releases the backend.
type Closer interface {
	Close() error
}

// ChannelOption configures a channel during construction.
type ChannelOption func(Channel) error

// ChannelFunc creates a new channel.
type ChannelFunc func(...ChannelOption) (Channel, error)

var channels = struct {
	sync.RWMutex
	m map[string]ChannelFunc
}{
	m: map[string]ChannelFunc{},
}

// Register adds the channel constructor under key, it is called from the init
// of the backend packages.
func Register(key string, fn ChannelFunc) ChannelFunc {
	channels.Lock()
	defer channels.Unlock()

	channels.m[key] = fn
	return fn
}

// Get returns the constructor registered under key.
func Get(key string) (ChannelFunc, bool) {
	channels.RLock()
	defer channels.RUnlock()

	fn, ok := channels.m[key]
	return fn, ok
}

// Names returns the registered channel types in sorted order.
func Names() []string {
	channels.RLock()
	defer channels.RUnlock()

	names := make([]string, 0, len(channels.m))
	for k := range channels.m {
		names = append(names, k)
	}

	sort.Strings(names)
	return names
}

// TomlDecoder decodes a primitive into a value, toml.MetaData implements it.
type TomlDecoder interface {
	PrimitiveDecode(primValue toml.Primitive, v interface{}) error
}

// WithConfig decodes the channel section into the channel.
func WithConfig(c toml.Primitive, decoder TomlDecoder) ChannelOption {
	return func(ch Channel) error {
		if err := decoder.PrimitiveDecode(c, ch); err != nil {
			return fmt.Errorf("decoding channel config: %s", err)
		}

		return nil
	}
}

// Close closes ch when it buffers events.
func Close(ch Channel) error {
	if c, ok := ch.(Closer); ok {
		return c.Close()
	}

	return nil
}

type dummy struct{}

func (dummy) Send(event.Event) {}

// Dummy returns a channel that discards every event.
func Dummy() (Channel, error) {
	return dummy{}, nil
}

// MustDummy returns a channel that discards every event.
func MustDummy() Channel {
	c, _ := Dummy()
	return c
}
