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

package ftp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/shadowlure/shadowlure/services"
)

type client struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func (c *client) readLine() string {
	line, err := c.br.ReadString('\n')
	if err != nil {
		c.t.Fatalf("Error reading reply: %s", err)
	}

	return line
}

func (c *client) cmd(format string, a ...interface{}) string {
	if _, err := fmt.Fprintf(c.conn, format+"\r\n", a...); err != nil {
		c.t.Fatalf("Error writing command: %s", err)
	}

	return c.readLine()
}

func setup(t *testing.T, options ...services.ServicerFunc) (*client, *pushers.Recorder, chan error) {
	clt, srv := net.Pipe()

	r := pushers.NewRecorder()

	s, err := FTP(append(options, services.WithChannel(r))...)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		defer srv.Close()
		done <- s.Handle(context.Background(), srv)
	}()

	t.Cleanup(func() {
		clt.Close()
	})

	return &client{t: t, conn: clt, br: bufio.NewReader(clt)}, r, done
}

func kinds(events []event.Event) []event.Kind {
	var k []event.Kind
	for _, e := range events {
		k = append(k, e.Kind)
	}
	return k
}

func TestLogin(t *testing.T) {
	c, r, done := setup(t)

	if banner := c.readLine(); banner != "220 vsFTPd 3.0.3\r\n" {
		t.Errorf("Unexpected banner %q", banner)
	}

	if reply := c.cmd("USER alice"); reply != "331 Please specify the password.\r\n" {
		t.Errorf("Unexpected USER reply %q", reply)
	}

	if reply := c.cmd("PASS secret"); reply != "530 Login incorrect. Please try again.\r\n" {
		t.Errorf("Unexpected PASS reply %q", reply)
	}

	if reply := c.cmd("QUIT"); reply != "221 Goodbye.\r\n" {
		t.Errorf("Unexpected QUIT reply %q", reply)
	}

	if err := <-done; err != nil {
		t.Fatalf("Expected clean end of session but got %s", err)
	}

	expected := []event.Kind{
		event.BannerSent,
		event.CommandReceived, event.CredentialAttempt,
		event.CommandReceived, event.CredentialAttempt,
		event.CommandReceived,
	}

	events := r.Events()
	if got := kinds(events); fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Fatalf("Expected events %v but got %v", expected, got)
	}

	creds := r.Filter(func(e event.Event) bool { return e.Kind == event.CredentialAttempt })
	if creds[0].Get("ftp.username") != "alice" {
		t.Errorf("Expected username alice but got %s", creds[0].Get("ftp.username"))
	}

	if creds[1].Get("ftp.username") != "alice" || creds[1].Get("ftp.password") != "secret" {
		t.Errorf("Expected alice/secret but got %s", creds[1].Detail)
	}

	if !strings.Contains(creds[1].Detail, "alice") || !strings.Contains(creds[1].Detail, "secret") {
		t.Errorf("Detail does not contain credentials: %s", creds[1].Detail)
	}

	id := events[0].Get("session-id")
	for _, e := range events {
		if e.Service != "ftp" || e.Get("session-id") != id {
			t.Errorf("Event not stamped with session: %v", event.ToMap(e))
		}
	}
}

func TestUnrecognized(t *testing.T) {
	c, r, done := setup(t)
	c.readLine()

	if reply := c.cmd("FOO"); reply != "500 Syntax error, command unrecognized.\r\n" {
		t.Errorf("Unexpected FOO reply %q", reply)
	}

	c.conn.Close()

	if err := <-done; err != nil {
		t.Fatalf("Expected clean end of session but got %s", err)
	}

	commands := r.Filter(func(e event.Event) bool { return e.Kind == event.CommandReceived })
	if len(commands) != 1 || commands[0].Detail != "FOO" {
		t.Fatalf("Expected CommandReceived FOO but got %v", commands)
	}
}

func TestGenericReplies(t *testing.T) {
	c, _, _ := setup(t, func(s services.Servicer) error {
		s.(*ftpService).Banner = "ProFTPD 1.3.5a Server ready."
		return nil
	})

	if banner := c.readLine(); banner != "220 ProFTPD 1.3.5a Server ready.\r\n" {
		t.Errorf("Unexpected banner %q", banner)
	}

	for _, cmd := range []string{"SYST", "feat", "TYPE I", "PASV", "PWD"} {
		if reply := c.cmd(cmd); reply != "215 UNIX Type: L8\r\n" {
			t.Errorf("Unexpected %s reply %q", cmd, reply)
		}
	}
}

func TestMissingArguments(t *testing.T) {
	c, r, _ := setup(t)
	c.readLine()

	// blank lines are ignored
	fmt.Fprintf(c.conn, "\r\n")

	c.cmd("USER")
	c.cmd("PASS")

	creds := r.Filter(func(e event.Event) bool { return e.Kind == event.CredentialAttempt })
	if len(creds) != 2 {
		t.Fatalf("Expected 2 credential attempts but got %d", len(creds))
	}

	if creds[1].Get("ftp.username") != "anonymous" || creds[1].Get("ftp.password") != "" {
		t.Errorf("Expected anonymous with empty password but got %s", creds[1].Detail)
	}
}

func TestUserFirstToken(t *testing.T) {
	c, r, _ := setup(t)
	c.readLine()

	c.cmd("USER alice bob")
	c.cmd("PASS pass word")

	creds := r.Filter(func(e event.Event) bool { return e.Kind == event.CredentialAttempt })
	if len(creds) != 2 {
		t.Fatalf("Expected 2 credential attempts but got %d", len(creds))
	}

	if creds[0].Get("ftp.username") != "alice" {
		t.Errorf("Expected username alice but got %s", creds[0].Get("ftp.username"))
	}

	if creds[1].Get("ftp.username") != "alice" || creds[1].Get("ftp.password") != "pass word" {
		t.Errorf("Expected alice/pass word but got %s", creds[1].Detail)
	}
}

func TestLongLine(t *testing.T) {
	c, r, _ := setup(t)
	c.readLine()

	// a single write larger than the line buffer
	go fmt.Fprintf(c.conn, "%s\r\n", strings.Repeat("A", MaxLineLength*2))

	// two chunks, the trailing CRLF is a blank line
	for i := 0; i < 2; i++ {
		if reply := c.readLine(); reply != ReplyUnrecognized+"\r\n" {
			t.Fatalf("Unexpected reply %q", reply)
		}
	}

	if reply := c.cmd("USER bob"); reply != ReplyPassword+"\r\n" {
		t.Errorf("Session did not recover after long line: %q", reply)
	}

	for _, e := range r.Events() {
		if len(e.Detail) > MaxLineLength {
			t.Errorf("Detail longer than line limit: %d", len(e.Detail))
		}
	}
}
