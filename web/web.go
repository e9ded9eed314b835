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

// Package web serves the local control interface: service status for the
// status command and a websocket feed of live events.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shadowlure/shadowlure/cmd"
	"github.com/shadowlure/shadowlure/config"
	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/server"

	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("shadowlure:web")

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Events buffered per websocket client before they are dropped
	sendBufferSize = 256
)

// Provider is the running server as seen by the control interface.
type Provider interface {
	Status() []server.ServiceStatus
	Token() string
	Started() time.Time
}

// Status is the response of GET /status.
type Status struct {
	Token    string                 `json:"token"`
	Version  string                 `json:"version"`
	Started  time.Time              `json:"started"`
	Services []server.ServiceStatus `json:"services"`
}

// Message is a single websocket message.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func AcceptAllOrigins(r *http.Request) bool { return true }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     AcceptAllOrigins,
}

type Web struct {
	address  string
	provider Provider

	engine *gin.Engine

	m           sync.RWMutex
	closed      bool
	connections map[*connection]bool
}

// WithAddress sets the listen address, config.DefaultControlAddress when
// not set.
func WithAddress(address string) func(*Web) error {
	return func(w *Web) error {
		w.address = address
		return nil
	}
}

func New(options ...func(*Web) error) (*Web, error) {
	gin.SetMode(gin.ReleaseMode)

	w := &Web{
		address:     config.DefaultControlAddress,
		connections: map[*connection]bool{},
	}

	for _, optionFn := range options {
		if err := optionFn(w); err != nil {
			return nil, err
		}
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/status", w.epStatus)
	r.GET("/events", w.epEvents)

	w.engine = r
	return w, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Debugf("%s %s %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// SetProvider sets the server whose status is served.
func (w *Web) SetProvider(p Provider) {
	w.m.Lock()
	defer w.m.Unlock()

	w.provider = p
}

// Handler returns the http handler of the control interface.
func (w *Web) Handler() http.Handler {
	return w.engine
}

func (w *Web) epStatus(c *gin.Context) {
	w.m.RLock()
	p := w.provider
	w.m.RUnlock()

	if p == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not started"})
		return
	}

	services := p.Status()
	if services == nil {
		services = []server.ServiceStatus{}
	}

	c.JSON(http.StatusOK, Status{
		Token:    p.Token(),
		Version:  cmd.Version,
		Started:  p.Started(),
		Services: services,
	})
}

func (w *Web) epEvents(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("Could not upgrade connection: %s", err.Error())
		return
	}

	conn := &connection{
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
	}

	w.m.RLock()
	p := w.provider
	w.m.RUnlock()

	metadata := gin.H{
		"version": cmd.Version,
	}

	if p != nil {
		metadata["token"] = p.Token()
		metadata["started"] = p.Started()
	}

	// queued before any event
	if data, err := json.Marshal(Message{Type: "metadata", Data: metadata}); err == nil {
		conn.send <- data
	}

	if !w.register(conn) {
		ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		ws.Close()
		return
	}

	log.Debugf("Websocket connected: %s", ws.RemoteAddr())

	defer func() {
		w.unregister(conn)
		ws.Close()

		log.Debugf("Websocket closed: %s", ws.RemoteAddr())
	}()

	go conn.writePump()
	conn.readPump()
}

func (w *Web) register(c *connection) bool {
	w.m.Lock()
	defer w.m.Unlock()

	if w.closed {
		return false
	}

	w.connections[c] = true
	return true
}

func (w *Web) unregister(c *connection) {
	w.m.Lock()
	defer w.m.Unlock()

	if _, ok := w.connections[c]; !ok {
		return
	}

	delete(w.connections, c)
	close(c.send)
}

// Send broadcasts the event to every websocket client. Clients that can not
// keep up lose events.
func (w *Web) Send(e event.Event) {
	w.m.RLock()
	defer w.m.RUnlock()

	if len(w.connections) == 0 {
		return
	}

	data, err := json.Marshal(Message{Type: "event", Data: e})
	if err != nil {
		log.Errorf("Could not marshal event: %s", err.Error())
		return
	}

	for c := range w.connections {
		select {
		case c.send <- data:
		default:
			log.Warningf("Websocket client %s too slow, dropped event", c.ws.RemoteAddr())
		}
	}
}

// Close disconnects every websocket client, new clients are refused.
func (w *Web) Close() error {
	w.m.Lock()
	defer w.m.Unlock()

	w.closed = true

	for c := range w.connections {
		delete(w.connections, c)
		close(c.send)
	}

	return nil
}

// ListenAndServe serves the control interface until ctx is done. A bind
// failure is returned right away.
func (w *Web) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", w.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           w.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	log.Infof("Control interface listening on %s", l.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// hijacked websockets are not closed by Shutdown
	w.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
