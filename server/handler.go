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
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/services"
)

// handle runs the emulator for a single connection. The session always starts
// with ConnectionOpened and ends with ConnectionClosed and a closed socket,
// whatever the emulator does.
func (s *service) handle(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	sess := services.NewSession(s.Name, conn, s.bus)
	start := time.Now()

	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debugf("Error closing connection %s: %s", sess.RemoteAddr, err.Error())
		}

		s.untrack(conn)

		sess.Emit(event.ConnectionClosed,
			event.Custom("duration", time.Since(start).Round(time.Millisecond).String()),
		)

		log.Debugf("Disconnected connection for %s => %s", sess.RemoteAddr, sess.LocalAddr)
	}()

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("%v", r)
		}

		log.Errorf("Recovered from panic in %s session %s: %s", s.Name, sess.ID, err.Error())

		sess.Emit(event.Error,
			event.Detail("panic: %s", err.Error()),
			event.Err(err),
			event.Stack(),
		)
	}()

	log.Debugf("Accepted connection for %s => %s", sess.RemoteAddr, sess.LocalAddr)

	sess.Emit(event.ConnectionOpened)

	var c net.Conn = conn
	if s.idleTimeout > 0 {
		c = TimeoutConn(conn, s.idleTimeout)
	}

	err := s.servicer.Handle(services.NewContext(ctx, sess), c)
	if err == nil {
		return
	}

	detail := err.Error()

	var serr *services.SessionError
	if errors.As(err, &serr) && serr.Timeout() {
		detail = fmt.Sprintf("idle timeout after %s", s.idleTimeout)
	}

	log.Debugf("Error handling %s session %s: %s", s.Name, sess.ID, err.Error())

	sess.Emit(event.Error,
		event.Detail(detail),
		event.Err(err),
	)
}
