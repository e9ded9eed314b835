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
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, s Servicer, request string) (*http.Response, string, error) {
	server, client := net.Pipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		defer server.Close()
		done <- s.Handle(context.Background(), server)
	}()

	go io.WriteString(client, request)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body), <-done
}

func TestHTTPPost(t *testing.T) {
	r := pushers.NewRecorder()

	s, err := HTTP(WithChannel(r))
	require.NoError(t, err)

	resp, body, err := roundTrip(t, s, "POST /login HTTP/1.1\r\n"+
		"Host: example.org\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\n"+
		"Content-Length: 13\r\n\r\n"+
		"user=a&pass=b")
	require.NoError(t, err)

	require.Equal(t, "HTTP/1.1 200 OK", resp.Proto+" "+resp.Status)
	require.Equal(t, "Apache/2.4.29 (Ubuntu)", resp.Header.Get("Server"))
	require.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	require.True(t, resp.Close)
	require.Equal(t, DefaultPage, body)

	events := r.Events()
	require.Len(t, events, 2)

	require.Equal(t, event.RequestReceived, events[0].Kind)
	require.Equal(t, "POST /login HTTP/1.1", events[0].Detail)
	require.Equal(t, "user=a&pass=b", events[0].Get("http.body"))

	require.Equal(t, event.CredentialAttempt, events[1].Kind)
	require.Contains(t, events[1].Detail, "user=a&pass=b")
}

func TestHTTPGet(t *testing.T) {
	r := pushers.NewRecorder()

	s, err := HTTP(WithChannel(r))
	require.NoError(t, err)

	_, _, err = roundTrip(t, s, "GET /admin HTTP/1.0\r\nUser-Agent: masscan/1.3\r\n\r\n")
	require.NoError(t, err)

	events := r.Events()
	require.Len(t, events, 1)
	require.Equal(t, event.RequestReceived, events[0].Kind)
	require.Equal(t, "/admin", events[0].Get("http.url"))
	require.Equal(t, "masscan/1.3", events[0].Get("http.user-agent"))
}

func TestHTTPPage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "login.html"), []byte("<form></form>"), 0644))

	s, err := HTTP(
		WithChannel(pushers.MustDummy()),
		WithConfigDir(dir),
		func(s Servicer) error {
			s.(*httpService).Page = "login.html"
			s.(*httpService).Server = "nginx/1.14.0"
			return nil
		},
	)
	require.NoError(t, err)

	resp, body, err := roundTrip(t, s, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	require.NoError(t, err)
	require.Equal(t, "nginx/1.14.0", resp.Header.Get("Server"))
	require.Equal(t, "<form></form>", body)
}

func TestHTTPMissingPage(t *testing.T) {
	s, err := HTTP(func(s Servicer) error {
		s.(*httpService).Page = filepath.Join(t.TempDir(), "missing.html")
		return nil
	}, WithChannel(pushers.MustDummy()))
	require.NoError(t, err)

	_, body, err := roundTrip(t, s, "GET / HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	require.Equal(t, DefaultPage, body)
}

func TestHTTPGarbage(t *testing.T) {
	r := pushers.NewRecorder()

	s, err := HTTP(WithChannel(r))
	require.NoError(t, err)

	resp, _, err := roundTrip(t, s, "post /x\n\nA=1")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	events := r.Events()
	require.Len(t, events, 2)
	require.Equal(t, "POST", events[0].Get("http.method"))
	require.Equal(t, "A=1", events[1].Detail)

	// the raw request is kept as sent
	require.Equal(t, "post /x\n\nA=1", events[0].Get("payload"))
	require.Equal(t, "706f7374202f780a0a413d31", events[0].Get("payload-hex"))
}

func TestReadRequestCap(t *testing.T) {
	data, err := readRequest(strings.NewReader("GET / HTTP/1.1\r\nX: "+strings.Repeat("a", 100000)), 8192)
	require.NoError(t, err)
	require.Len(t, data, 8192)
}

func TestReadRequestWaitsForBody(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		io.WriteString(client, "POST / HTTP/1.1\r\nContent-Length: 6\r\n\r\n")
		io.WriteString(client, "a=b&c")
		io.WriteString(client, "d")
	}()

	data, err := readRequest(server, 8192)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "\r\n\r\na=b&cd"))
}
