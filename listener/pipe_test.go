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

package listener

import (
	"net"
	"testing"
)

func TestPipeListener(t *testing.T) {
	l, err := NewPipe()
	if err != nil {
		t.Fatal(err)
	}

	pl := l.(*PipeListener)

	go func() {
		c, err := pl.Dial()
		if err != nil {
			return
		}

		c.Write([]byte("ping"))
		c.Close()
	}()

	conn, err := l.Accept()
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 4)
	if _, err := conn.Read(buf); err != nil {
		t.Fatal(err)
	}

	if string(buf) != "ping" {
		t.Errorf("Expected ping but got %s", buf)
	}

	l.Close()

	if _, err := l.Accept(); err != ErrClosed {
		t.Errorf("Expected ErrClosed but got %v", err)
	}

	if _, err := pl.Dial(); err != ErrClosed {
		t.Errorf("Expected ErrClosed on dial but got %v", err)
	}
}

func TestWithAddressUnsupported(t *testing.T) {
	l, _ := NewPipe()

	if err := WithAddress("udp", "127.0.0.1:53")(addresser{l}); err == nil {
		t.Errorf("Expected error for udp")
	}
}

type addresser struct {
	Listener
}

func (addresser) AddAddress(net.Addr) {}
