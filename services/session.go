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

	"github.com/rs/xid"
	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
)

// Session is the lifetime of one accepted connection. It stamps every event
// with the service name, the peer and a unique session id.
type Session struct {
	ID      string
	Service string

	RemoteAddr net.Addr
	LocalAddr  net.Addr

	c pushers.Channel
}

// NewSession returns a session for conn emitting to c.
func NewSession(service string, conn net.Conn, c pushers.Channel) *Session {
	if c == nil {
		c = pushers.MustDummy()
	}

	return &Session{
		ID:         xid.New().String(),
		Service:    service,
		RemoteAddr: conn.RemoteAddr(),
		LocalAddr:  conn.LocalAddr(),
		c:          c,
	}
}

// Options returns the event options identifying the session.
func (s *Session) Options() event.Option {
	return event.NewWith(
		event.Service(s.Service),
		event.SessionID(s.ID),
		event.SourceAddr(s.RemoteAddr),
		event.DestinationAddr(s.LocalAddr),
	)
}

// Emit sends a new event of kind k for this session.
func (s *Session) Emit(k event.Kind, opts ...event.Option) {
	s.c.Send(event.New(
		s.Options(),
		event.Type(k),
		event.NewWith(opts...),
	))
}

type sessionKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session the connection handler created, or a new
// session when the emulator runs on its own.
func FromContext(ctx context.Context, service string, conn net.Conn, c pushers.Channel) *Session {
	if s, ok := ctx.Value(sessionKey{}).(*Session); ok {
		return s
	}

	return NewSession(service, conn, c)
}

// SessionError is an I/O failure that ends a single session.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the session ended because the peer was idle.
func (e *SessionError) Timeout() bool {
	ne, ok := e.Err.(net.Error)
	return ok && ne.Timeout()
}
