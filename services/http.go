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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
)

var (
	_ = Register("http", HTTP)
)

// DefaultMaxRequestSize caps the bytes read from a single request.
const DefaultMaxRequestSize = 8 * 1024

// DefaultPage is served when the configured page can not be read.
const DefaultPage = "<html><body><h1>Login Required</h1></body></html>"

// HTTP returns the HTTP emulator. It answers exactly one request per
// connection with the configured page.
func HTTP(options ...ServicerFunc) (Servicer, error) {
	s := &httpService{
		httpServiceConfig: httpServiceConfig{
			Server:         "Apache/2.4.29 (Ubuntu)",
			MaxRequestSize: DefaultMaxRequestSize,
		},
	}

	for _, o := range options {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	if s.MaxRequestSize <= 0 {
		s.MaxRequestSize = DefaultMaxRequestSize
	}

	s.body = s.loadPage()
	return s, nil
}

type httpServiceConfig struct {
	Server         string `toml:"banner"`
	Page           string `toml:"page"`
	MaxRequestSize int    `toml:"max-request-size"`
}

type httpService struct {
	httpServiceConfig

	configDir string
	body      []byte

	c pushers.Channel
}

func (s *httpService) SetChannel(c pushers.Channel) {
	s.c = c
}

func (s *httpService) SetConfigDir(dir string) {
	s.configDir = dir
}

func (s *httpService) loadPage() []byte {
	if s.Page == "" {
		return []byte(DefaultPage)
	}

	p := s.Page
	if !filepath.IsAbs(p) && s.configDir != "" {
		p = filepath.Join(s.configDir, p)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		log.Warningf("Could not read page %s, serving default page: %s", p, err.Error())
		return []byte(DefaultPage)
	}

	return data
}

// headerEnd returns the offset of the blank line ending the header and the
// length of the delimiter, or -1.
func headerEnd(data []byte) (int, int) {
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		return i, 4
	}

	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i, 2
	}

	return -1, 0
}

func contentLength(header []byte) int {
	for _, line := range strings.Split(string(header), "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 || !strings.EqualFold(strings.TrimSpace(parts[0]), "Content-Length") {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || n < 0 {
			return 0
		}

		return n
	}

	return 0
}

// readRequest reads until the header and announced body are complete, the
// peer stops sending or max bytes are read.
func readRequest(r io.Reader, max int) ([]byte, error) {
	data := make([]byte, 0, 1024)
	buf := make([]byte, 1024)

	for len(data) < max {
		n, err := r.Read(buf[:min(len(buf), max-len(data))])
		data = append(data, buf[:n]...)

		if i, sep := headerEnd(data); i >= 0 && len(data)-i-sep >= contentLength(data[:i]) {
			return data, nil
		}

		if err == io.EOF {
			return data, nil
		} else if err != nil {
			return data, err
		}
	}

	return data, nil
}

type request struct {
	Method    string
	URL       string
	Proto     string
	Host      string
	UserAgent string
	Body      string
}

func parseRequest(data []byte) request {
	req := request{}

	if i, sep := headerEnd(data); i >= 0 {
		req.Body = string(data[i+sep:])
	}

	if r, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(data))); err == nil {
		req.Method = r.Method
		req.URL = r.URL.String()
		req.Proto = r.Proto
		req.Host = r.Host
		req.UserAgent = r.UserAgent()
		return req
	}

	// not valid HTTP, take what the request line offers
	line := string(data)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	fields := strings.Fields(line)
	if len(fields) > 0 {
		req.Method = strings.ToUpper(fields[0])
	}
	if len(fields) > 1 {
		req.URL = fields[1]
	}
	if len(fields) > 2 {
		req.Proto = fields[2]
	}

	return req
}

func (s *httpService) Handle(ctx context.Context, conn net.Conn) error {
	sess := FromContext(ctx, "http", conn, s.c)

	data, err := readRequest(conn, s.MaxRequestSize)
	if err != nil {
		return &SessionError{Op: "read", Err: err}
	}

	if len(data) == 0 {
		return nil
	}

	req := parseRequest(data)

	sess.Emit(event.RequestReceived,
		event.Detail(strings.TrimSpace(fmt.Sprintf("%s %s %s", req.Method, req.URL, req.Proto))),
		event.Custom("http.method", req.Method),
		event.Custom("http.url", req.URL),
		event.Custom("http.host", req.Host),
		event.Custom("http.user-agent", req.UserAgent),
		event.Custom("http.body", req.Body),
		event.Custom("http.request-length", len(data)),
		event.Payload(data),
	)

	if req.Method == http.MethodPost && req.Body != "" {
		sess.Emit(event.CredentialAttempt,
			event.Detail(req.Body),
			event.Custom("http.url", req.URL),
		)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&buf, "Server: %s\r\n", s.Server)
	fmt.Fprintf(&buf, "Content-Type: text/html\r\n")
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(s.body))
	fmt.Fprintf(&buf, "Connection: close\r\n\r\n")
	buf.Write(s.body)

	if _, err := conn.Write(buf.Bytes()); err != nil {
		return &SessionError{Op: "write", Err: err}
	}

	return nil
}
