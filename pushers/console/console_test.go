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

package console

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/shadowlure/shadowlure/event"
)

func TestFormat(t *testing.T) {
	e := event.New(
		event.Service("ftp"),
		event.Type(event.CredentialAttempt),
		event.SourceAddr(&net.TCPAddr{IP: net.ParseIP("192.0.2.7"), Port: 50123}),
		event.Detail("username=alice password=it's"),
		event.Custom("ftp.username", "alice"),
	)
	e.Date = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	expected := `timestamp=2024-01-02T03:04:05.000000Z service='ftp' attacker_ip='192.0.2.7' attacker_port=50123 event='AUTH:CREDENTIAL' detail='username=alice password=it\'s' ftp.username='alice'`

	if got := Format(e); got != expected {
		t.Errorf("Expected\n%s\nbut got\n%s", expected, got)
	}
}

func TestPrintify(t *testing.T) {
	if got := printify("a\x00b\r\n"); got != `a\x00b\x0d\x0a` {
		t.Errorf("Unexpected printify output %s", got)
	}
}

func TestConsoleChannel(t *testing.T) {
	buf := &bytes.Buffer{}

	c, err := New(WithWriter(buf))
	if err != nil {
		t.Fatal(err)
	}

	for _, kind := range []event.Kind{event.ConnectionOpened, event.BannerSent, event.ConnectionClosed} {
		c.Send(event.New(event.Service("ssh"), event.Type(kind)))
	}

	if err := c.(*Console).Close(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines but got %d: %s", len(lines), buf.String())
	}

	if !strings.Contains(lines[0], "event='CONNECTION:OPENED'") {
		t.Errorf("Expected opened event first but got %s", lines[0])
	}

	if !strings.Contains(lines[2], "event='CONNECTION:CLOSED'") {
		t.Errorf("Expected closed event last but got %s", lines[2])
	}
}
