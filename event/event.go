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

package event

import (
	"encoding/hex"
	"fmt"
	"net"
	"runtime/debug"
	"strconv"
)

// Kind describes what happened during a session.
type Kind string

// Event kinds.
const (
	ConnectionOpened  Kind = "CONNECTION:OPENED"
	ConnectionClosed  Kind = "CONNECTION:CLOSED"
	BannerSent        Kind = "BANNER:SENT"
	CredentialAttempt Kind = "AUTH:CREDENTIAL"
	CommandReceived   Kind = "DATA:COMMAND"
	RequestReceived   Kind = "DATA:REQUEST"
	Error             Kind = "CONNECTION:ERROR"
)

func (k Kind) String() string {
	return string(k)
}

// Option defines a function which sets a property of an Event under construction.
type Option func(*Event)

// Apply returns a copy of e with the options applied, e itself is left untouched.
func Apply(e Event, opts ...Option) Event {
	c := e.clone()

	for _, option := range opts {
		if option == nil {
			continue
		}

		option(&c)
	}

	return c
}

// NewWith combines multiple options into one.
func NewWith(opts ...Option) Option {
	return func(e *Event) {
		for _, option := range opts {
			if option == nil {
				continue
			}

			option(e)
		}
	}
}

func Type(k Kind) Option {
	return func(e *Event) {
		e.Kind = k
	}
}

func Service(v string) Option {
	return func(e *Event) {
		e.Service = v
	}
}

// Detail sets the human readable detail of the event.
func Detail(format string, a ...interface{}) Option {
	return func(e *Event) {
		if len(a) == 0 {
			e.Detail = format
			return
		}

		e.Detail = fmt.Sprintf(format, a...)
	}
}

func Token(token string) Option {
	return Custom("token", token)
}

func SessionID(id string) Option {
	return Custom("session-id", id)
}

// Err stores the error message of err.
func Err(err error) Option {
	return func(e *Event) {
		if err == nil {
			return
		}

		e.store("error", err.Error())
	}
}

// SourceAddr sets the attacker address of the event.
func SourceAddr(addr net.Addr) Option {
	return func(e *Event) {
		e.SourceIP, e.SourcePort = splitAddr(addr)
	}
}

func DestinationAddr(addr net.Addr) Option {
	return func(e *Event) {
		ip, port := splitAddr(addr)
		if ip == "" {
			return
		}

		e.store("destination-ip", ip)
		e.store("destination-port", port)
	}
}

func Stack() Option {
	return func(e *Event) {
		e.store("stacktrace", string(debug.Stack()))
	}
}

func Payload(data []byte) Option {
	return func(e *Event) {
		e.store("payload", string(data))
		e.store("payload-hex", hex.EncodeToString(data))
		e.store("payload-length", len(data))
	}
}

func Custom(name string, value interface{}) Option {
	return func(e *Event) {
		e.store(name, value)
	}
}

func splitAddr(addr net.Addr) (string, uint16) {
	switch a := addr.(type) {
	case nil:
		return "", 0
	case *net.TCPAddr:
		return a.IP.String(), uint16(a.Port)
	case *net.UDPAddr:
		return a.IP.String(), uint16(a.Port)
	}

	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}

	p, _ := strconv.ParseUint(port, 10, 16)
	return host, uint16(p)
}
