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
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/listener"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/shadowlure/shadowlure/services"
)

// State is the lifecycle state of a service.
type State string

const (
	StateNotStarted State = "not-started"
	StateRunning    State = "running"
	StateStopped    State = "stopped"
	StateFailed     State = "failed"
)

// ServiceStatus is a snapshot of a single service.
type ServiceStatus struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Port           uint16 `json:"port"`
	State          State  `json:"state"`
	ActiveSessions int    `json:"active_sessions"`
	Accepted       uint64 `json:"accepted"`
	Error          string `json:"error,omitempty"`
}

// service is the handle the server keeps for every enabled service: the
// emulator, its listener and the sessions in flight.
type service struct {
	Name string
	Type string
	Port uint16

	idleTimeout time.Duration

	servicer services.Servicer
	listener listener.Listener
	bus      pushers.Channel

	m     sync.Mutex
	state State
	err   error
	conns map[net.Conn]struct{}

	wg       sync.WaitGroup
	accepted uint64
}

func (s *service) setState(state State, err error) {
	s.m.Lock()
	defer s.m.Unlock()

	s.state = state
	s.err = err
}

func (s *service) State() State {
	s.m.Lock()
	defer s.m.Unlock()

	return s.state
}

func (s *service) status() ServiceStatus {
	s.m.Lock()
	defer s.m.Unlock()

	st := ServiceStatus{
		Name:           s.Name,
		Type:           s.Type,
		Port:           s.Port,
		State:          s.state,
		ActiveSessions: len(s.conns),
		Accepted:       atomic.LoadUint64(&s.accepted),
	}

	if s.err != nil {
		st.Error = s.err.Error()
	}

	return st
}

// start binds the listener.
func (s *service) start(ctx context.Context) error {
	if err := s.listener.Start(ctx); err != nil {
		s.setState(StateFailed, err)
		return err
	}

	s.setState(StateRunning, nil)
	return nil
}

// serve accepts connections until the listener is closed, every connection
// is handled in its own goroutine.
func (s *service) serve(ctx context.Context) {
	var delay time.Duration

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.State() != StateRunning || errors.Is(err, net.ErrClosed) || errors.Is(err, listener.ErrClosed) {
				return
			}

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}

			log.Errorf("Error accepting connection for %s: %s, retrying in %s", s.Name, err.Error(), delay)
			time.Sleep(delay)
			continue
		}

		delay = 0

		atomic.AddUint64(&s.accepted, 1)

		if !s.track(conn) {
			s.reject(conn)
			continue
		}

		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

func (s *service) track(conn net.Conn) bool {
	s.m.Lock()
	defer s.m.Unlock()

	if s.state != StateRunning {
		return false
	}

	s.conns[conn] = struct{}{}
	return true
}

func (s *service) untrack(conn net.Conn) {
	s.m.Lock()
	defer s.m.Unlock()

	delete(s.conns, conn)
}

// reject closes a connection accepted while the service stops, it still
// gets its opened and closed events.
func (s *service) reject(conn net.Conn) {
	sess := services.NewSession(s.Name, conn, s.bus)
	sess.Emit(event.ConnectionOpened)

	conn.Close()

	sess.Emit(event.ConnectionClosed, event.Detail("service stopping"))
	log.Debugf("Rejected connection for %s => %s, service stopping", sess.RemoteAddr, sess.LocalAddr)
}

// stop closes the listener, no new connections are accepted.
func (s *service) stop() {
	s.m.Lock()
	if s.state != StateRunning {
		s.m.Unlock()
		return
	}

	s.state = StateStopped
	s.m.Unlock()

	if err := s.listener.Close(); err != nil {
		log.Errorf("Error closing listener for %s: %s", s.Name, err.Error())
	}
}

// drain waits for the sessions in flight until deadline, then closes what is
// left and waits for the handlers to return.
func (s *service) drain(deadline <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-deadline:
	}

	s.m.Lock()
	n := len(s.conns)
	for conn := range s.conns {
		conn.Close()
	}
	s.m.Unlock()

	log.Warningf("Drain timeout for %s, closed %d sessions", s.Name, n)
	<-done
}
