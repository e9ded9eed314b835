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

//Package listener defines the shadowlure listener types.
package listener

import (
	"context"
	"fmt"
	"net"
	"sync"
)

var (
	listeners = struct {
		sync.RWMutex
		m map[string]func(...func(Listener) error) (Listener, error)
	}{
		m: map[string]func(...func(Listener) error) (Listener, error){},
	}
)

func Register(key string, fn func(...func(Listener) error) (Listener, error)) func(...func(Listener) error) (Listener, error) {
	listeners.Lock()
	defer listeners.Unlock()

	listeners.m[key] = fn
	return fn
}

func Get(key string) (func(...func(Listener) error) (Listener, error), bool) {
	listeners.RLock()
	defer listeners.RUnlock()

	fn, ok := listeners.m[key]
	return fn, ok
}

// Listener accepts connections for a single service. Start binds, Accept
// blocks until a connection arrives or the listener is closed.
type Listener interface {
	Start(ctx context.Context) error
	Close() error
	Accept() (net.Conn, error)
	Addr() net.Addr
}

// BindError is returned by Start when the port cannot be bound. It is fatal
// for the service only.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("could not bind %s: %s", e.Address, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

type AddAddresser interface {
	AddAddress(net.Addr)
}

// WithAddress sets the address the listener binds to.
func WithAddress(protocol, address string) func(Listener) error {
	return func(l Listener) error {
		a, ok := l.(AddAddresser)
		if !ok {
			return nil
		}

		switch protocol {
		case "tcp", "tcp4", "tcp6":
			addr, err := net.ResolveTCPAddr(protocol, address)
			if err != nil {
				return &BindError{Address: address, Err: err}
			}

			a.AddAddress(addr)
		default:
			return fmt.Errorf("unsupported protocol %s", protocol)
		}

		return nil
	}
}
