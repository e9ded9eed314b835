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

package services

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/shadowlure/shadowlure/storage"

	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("shadowlure:services")

// ServiceFunc creates a new emulator.
type ServiceFunc func(...ServicerFunc) (Servicer, error)

var services = struct {
	sync.RWMutex
	m map[string]ServiceFunc
}{
	m: map[string]ServiceFunc{},
}

type ServicerFunc func(Servicer) error

func Register(key string, fn ServiceFunc) ServiceFunc {
	services.Lock()
	defer services.Unlock()

	services.m[key] = fn
	return fn
}

// Range calls fn for every registered service type in sorted order.
func Range(fn func(string)) {
	services.RLock()
	keys := make([]string, 0, len(services.m))
	for k := range services.m {
		keys = append(keys, k)
	}
	services.RUnlock()

	sort.Strings(keys)

	for _, k := range keys {
		fn(k)
	}
}

func Get(key string) (ServiceFunc, bool) {
	services.RLock()
	defer services.RUnlock()

	fn, ok := services.m[key]
	return fn, ok
}

// Servicer is a protocol emulator. Handle performs the exchange with a single
// peer and returns when the session should end; it does not close conn.
type Servicer interface {
	Handle(context.Context, net.Conn) error

	SetChannel(pushers.Channel)
}

func WithChannel(eb pushers.Channel) ServicerFunc {
	return func(d Servicer) error {
		d.SetChannel(eb)
		return nil
	}
}

type TomlDecoder interface {
	PrimitiveDecode(primValue toml.Primitive, v interface{}) error
}

// WithConfig decodes the service section into the emulator.
func WithConfig(c toml.Primitive, decoder TomlDecoder) ServicerFunc {
	return func(s Servicer) error {
		if err := decoder.PrimitiveDecode(c, s); err != nil {
			return fmt.Errorf("decoding service config: %s", err)
		}

		return nil
	}
}

// Storer is implemented by emulators keeping state across restarts.
type Storer interface {
	SetStorage(storage.Storage)
}

func WithStorage(st storage.Storage) ServicerFunc {
	return func(s Servicer) error {
		if sv, ok := s.(Storer); ok {
			sv.SetStorage(st)
		}
		return nil
	}
}

// ConfigDirer is implemented by emulators loading resources relative to the
// configuration file.
type ConfigDirer interface {
	SetConfigDir(string)
}

func WithConfigDir(dir string) ServicerFunc {
	return func(s Servicer) error {
		if sv, ok := s.(ConfigDirer); ok {
			sv.SetConfigDir(dir)
		}
		return nil
	}
}
