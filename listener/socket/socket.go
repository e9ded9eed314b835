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

package socket

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/shadowlure/shadowlure/listener"

	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("shadowlure:listeners:socket")

var (
	_ = listener.Register("socket", New)
)

type socketListener struct {
	socketConfig

	m sync.Mutex
	net.Listener
}

type socketConfig struct {
	Address net.Addr
}

func (sc *socketConfig) AddAddress(a net.Addr) {
	sc.Address = a
}

// New returns a TCP listener, WithAddress sets the address it binds to.
func New(options ...func(listener.Listener) error) (listener.Listener, error) {
	l := socketListener{
		socketConfig: socketConfig{},
	}

	for _, option := range options {
		if err := option(&l); err != nil {
			return nil, err
		}
	}

	if l.Address == nil {
		return nil, errors.New("socket listener: address not set")
	}

	return &l, nil
}

// Start binds the address; failure is returned as a BindError.
func (sl *socketListener) Start(ctx context.Context) error {
	lc := net.ListenConfig{}

	l, err := lc.Listen(ctx, sl.Address.Network(), sl.Address.String())
	if err != nil {
		return &listener.BindError{Address: sl.Address.String(), Err: err}
	}

	sl.m.Lock()
	sl.Listener = l
	sl.m.Unlock()

	log.Infof("Listener started: %s/%s", l.Addr().Network(), l.Addr())
	return nil
}

func (sl *socketListener) Accept() (net.Conn, error) {
	sl.m.Lock()
	l := sl.Listener
	sl.m.Unlock()

	if l == nil {
		return nil, net.ErrClosed
	}

	return l.Accept()
}

func (sl *socketListener) Close() error {
	sl.m.Lock()
	defer sl.m.Unlock()

	if sl.Listener == nil {
		return nil
	}

	return sl.Listener.Close()
}

// Addr returns the bound address, or the configured one before Start.
func (sl *socketListener) Addr() net.Addr {
	sl.m.Lock()
	defer sl.m.Unlock()

	if sl.Listener == nil {
		return sl.Address
	}

	return sl.Listener.Addr()
}
