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

package listener

import (
	"context"
	"errors"
	"net"
	"sync"
)

var (
	_ = Register("pipe", NewPipe)
)

// ErrClosed is returned by Accept and Dial on a closed pipe listener.
var ErrClosed = errors.New("listener closed")

// PipeListener is an in-memory listener, every Dial hands the server end of a
// net.Pipe to Accept.
type PipeListener struct {
	ch   chan net.Conn
	done chan struct{}
	once sync.Once
}

// NewPipe returns a PipeListener.
func NewPipe(options ...func(Listener) error) (Listener, error) {
	l := &PipeListener{
		ch:   make(chan net.Conn),
		done: make(chan struct{}),
	}

	for _, option := range options {
		if err := option(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

func (l *PipeListener) Start(ctx context.Context) error {
	return nil
}

// Dial returns the client end of a new connection.
func (l *PipeListener) Dial() (net.Conn, error) {
	server, client := net.Pipe()

	select {
	case l.ch <- server:
		return client, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *PipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.ch:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *PipeListener) Close() error {
	l.once.Do(func() {
		close(l.done)
	})

	return nil
}

func (l *PipeListener) Addr() net.Addr {
	return pipeAddr{}
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
