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

// Package server runs the configured services: one listener per service, one
// goroutine per connection and a single event bus shared by all sessions.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/shadowlure/shadowlure/cmd"
	"github.com/shadowlure/shadowlure/config"
	"github.com/shadowlure/shadowlure/listener"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/shadowlure/shadowlure/pushers/eventbus"
	"github.com/shadowlure/shadowlure/server/profiler"
	"github.com/shadowlure/shadowlure/services"
	"github.com/shadowlure/shadowlure/storage"

	_ "github.com/shadowlure/shadowlure/listener/socket"
	_ "github.com/shadowlure/shadowlure/services/ftp"
	_ "github.com/shadowlure/shadowlure/services/ssh"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("shadowlure:server")

// ErrNothingToDo is returned by Run when no service is enabled.
var ErrNothingToDo = errors.New("no services enabled, nothing to do")

// ErrNoServiceStarted is returned by Run when every enabled service failed to
// start.
var ErrNoServiceStarted = errors.New("none of the enabled services could be started")

// Server defines a struct which coordinates the services, their listeners and
// the event bus.
type Server struct {
	config    *config.Config
	configDir string

	profiler profiler.Profiler

	bus   *eventbus.EventBus
	extra []pushers.Channel

	token   string
	dataDir string

	// listener type used for every service
	listenerType string

	m        sync.RWMutex
	started  time.Time
	services []*service
}

// New returns a new instance of a Server struct.
func New(options ...OptionFn) (*Server, error) {
	h := &Server{
		config:       config.New(),
		bus:          eventbus.New(),
		profiler:     profiler.Dummy(),
		listenerType: "socket",
	}

	for _, fn := range options {
		if err := fn(h); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// Token returns the sensor token.
func (hc *Server) Token() string {
	return hc.token
}

// Started returns when Run started the services, zero before.
func (hc *Server) Started() time.Time {
	hc.m.RLock()
	defer hc.m.RUnlock()

	return hc.started
}

// Status returns the state of every enabled service.
func (hc *Server) Status() []ServiceStatus {
	hc.m.RLock()
	defer hc.m.RUnlock()

	statuses := make([]ServiceStatus, len(hc.services))
	for i, s := range hc.services {
		statuses[i] = s.status()
	}

	return statuses
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (hc *Server) banner() {
	if isTerminal(os.Stdout) {
		fmt.Println(color.YellowString(`
     _               _               _
 ___| |__   __ _  __| | _____      _| |_   _ _ __ ___
/ __| '_ \ / _' |/ _' |/ _ \ \ /\ / / | | | | '__/ _ \
\__ \ | | | (_| | (_| | (_) \ V  V /| | |_| | | |  __/
|___/_| |_|\__,_|\__,_|\___/ \_/\_/ |_|\__,_|_|  \___|
`))
	}

	fmt.Println(color.YellowString("shadowlure starting (%s)...", hc.token))
	fmt.Println(color.YellowString("Version: %s (%s)", cmd.Version, cmd.ShortCommitID))
}

// newServices creates the handle, emulator and listener of every enabled
// service. An unknown service type is a configuration error.
func (hc *Server) newServices(enabled []config.ServiceConfig, db *storage.DB) ([]*service, error) {
	listenerFunc, ok := listener.Get(hc.listenerType)
	if !ok {
		return nil, fmt.Errorf("listener %s not supported on platform", hc.listenerType)
	}

	var list []*service
	for _, sc := range enabled {
		fn, ok := services.Get(sc.Type)
		if !ok {
			var available []string
			services.Range(func(k string) {
				available = append(available, k)
			})

			return nil, &config.ConfigError{
				Key: "service." + sc.Name + ".type",
				Err: fmt.Errorf("unknown service type %q, available: %v", sc.Type, available),
			}
		}

		x := struct {
			IdleTimeout *config.Delay `toml:"idle-timeout"`
			Address     string        `toml:"address"`
		}{}

		if err := hc.config.PrimitiveDecode(sc.Primitive, &x); err != nil {
			return nil, &config.ConfigError{Key: "service." + sc.Name, Err: err}
		}

		s := &service{
			Name:        sc.Name,
			Type:        sc.Type,
			Port:        sc.Port,
			idleTimeout: DefaultIdleTimeout,
			bus:         hc.bus,
			state:       StateNotStarted,
			conns:       map[net.Conn]struct{}{},
		}

		if x.IdleTimeout != nil {
			s.idleTimeout = x.IdleTimeout.Duration()
		}

		options := []services.ServicerFunc{
			services.WithChannel(hc.bus),
			services.WithConfig(sc.Primitive, hc.config),
			services.WithConfigDir(hc.configDir),
		}

		if db == nil {
		} else if st, err := db.Namespace(sc.Name); err != nil {
			log.Errorf("Could not open storage for service %s: %s", sc.Name, err.Error())
		} else {
			options = append(options, services.WithStorage(st))
		}

		if servicer, err := fn(options...); err != nil {
			s.setState(StateFailed, err)
		} else {
			s.servicer = servicer
		}

		l, err := listenerFunc(
			listener.WithAddress("tcp", net.JoinHostPort(x.Address, strconv.Itoa(int(sc.Port)))),
		)
		if err != nil {
			s.setState(StateFailed, err)
		}

		s.listener = l
		list = append(list, s)
	}

	return list, nil
}

// Run starts every enabled service and blocks until ctx is done. It then
// stops accepting, lets the sessions in flight finish within the drain
// timeout and closes the rest.
func (hc *Server) Run(ctx context.Context) error {
	enabled, err := hc.config.EnabledServices()
	if err != nil {
		return err
	}

	if len(enabled) == 0 {
		return ErrNothingToDo
	}

	hc.banner()

	hc.profiler.Start()
	defer hc.profiler.Stop()

	var db *storage.DB
	if hc.dataDir != "" {
		log.Debugf("Using datadir: %s", hc.dataDir)

		if db, err = storage.Open(hc.dataDir); err != nil {
			return err
		}

		defer db.Close()
	}

	if err := hc.setupChannels(); err != nil {
		return err
	}

	// flushes every channel after the sessions are done
	defer hc.bus.Close()

	list, err := hc.newServices(enabled, db)
	if err != nil {
		return err
	}

	hc.m.Lock()
	hc.services = list
	hc.started = time.Now()
	hc.m.Unlock()

	running := 0
	for _, s := range list {
		if s.State() == StateFailed {
			fmt.Println(color.RedString("Error starting %s (%s) on port %d: %s", s.Name, s.Type, s.Port, s.status().Error))
			continue
		}

		if err := s.start(ctx); err != nil {
			fmt.Println(color.RedString("Error starting %s (%s) on port %d: %s", s.Name, s.Type, s.Port, err.Error()))
			continue
		}

		fmt.Println(color.GreenString("Started %s (%s) on %s", s.Name, s.Type, s.listener.Addr()))
		running++
	}

	if running == 0 {
		return ErrNoServiceStarted
	}

	// sessions outlive ctx until they are drained
	sessCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range list {
		if s.State() != StateRunning {
			continue
		}

		wg.Add(1)
		go func(s *service) {
			defer wg.Done()
			s.serve(sessCtx)
		}(s)
	}

	<-ctx.Done()

	log.Info("Stopping services...")

	for _, s := range list {
		s.stop()
	}

	wg.Wait()

	deadline := make(chan struct{})
	timer := time.AfterFunc(hc.config.DrainTimeout.Duration(), func() {
		close(deadline)
	})

	defer timer.Stop()

	for _, s := range list {
		s.drain(deadline)
	}

	fmt.Println(color.YellowString("shadowlure stopped."))
	return nil
}
