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
	"net"
	"time"
)

// DefaultIdleTimeout ends sessions of idle peers, set idle-timeout = "0s" on
// a service to disable it.
const DefaultIdleTimeout = 2 * time.Minute

// TimeoutConn returns conn with a deadline of d that is renewed on every read
// and write, so a session ends after d of inactivity.
func TimeoutConn(conn net.Conn, d time.Duration) net.Conn {
	return &timeoutConn{
		Conn:    conn,
		timeout: d,
	}
}

type timeoutConn struct {
	net.Conn

	timeout time.Duration
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}

	return c.Conn.Read(b)
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}

	return c.Conn.Write(b)
}
