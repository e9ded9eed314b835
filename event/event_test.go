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

package event

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
)

func TestSourceAddr(t *testing.T) {
	e := New(
		Service("ftp"),
		Type(CredentialAttempt),
		SourceAddr(&net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 4021}),
		DestinationAddr(&net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 21}),
	)

	if e.SourceIP != "10.0.0.1" {
		t.Errorf("Expected 10.0.0.1 but got %s", e.SourceIP)
	}
	if e.SourcePort != 4021 {
		t.Errorf("Expected 4021 but got %d", e.SourcePort)
	}
	if e.Get("destination-port") != "21" {
		t.Errorf("Expected destination-port 21 but got %s", e.Get("destination-port"))
	}
	if e.Get("event") != "AUTH:CREDENTIAL" {
		t.Errorf("Expected AUTH:CREDENTIAL but got %s", e.Get("event"))
	}
}

func TestStringAddr(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:53")
	if err != nil {
		t.Fatal(err)
	}

	e := New(SourceAddr(addr))
	if e.SourceIP != "127.0.0.1" || e.SourcePort != 53 {
		t.Errorf("Expected 127.0.0.1:53 but got %s:%d", e.SourceIP, e.SourcePort)
	}

	pipe, _ := net.Pipe()
	e = New(SourceAddr(pipe.RemoteAddr()))
	if e.SourceIP != "pipe" {
		t.Errorf("Expected pipe but got %s", e.SourceIP)
	}
}

func TestApplyCopies(t *testing.T) {
	e := New(Custom("a", 1))
	c := Apply(e, Token("abc"), Custom("a", 2))

	if e.Has("token") {
		t.Errorf("Apply modified the original event")
	}
	if e.Get("a") != "1" {
		t.Errorf("Expected a=1 on original but got %s", e.Get("a"))
	}
	if c.Get("token") != "abc" || c.Get("a") != "2" {
		t.Errorf("Options not applied on copy: %v", ToMap(c))
	}
}

func TestMarshalJSON(t *testing.T) {
	e := New(
		Service("http"),
		Type(Error),
		Detail("read: %s", "connection reset"),
		Err(errors.New("connection reset")),
	)

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}

	mp := map[string]interface{}{}
	if err := json.Unmarshal(data, &mp); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"timestamp", "service", "attacker_ip", "attacker_port", "event"} {
		if _, ok := mp[key]; !ok {
			t.Errorf("Expected key %s in %s", key, string(data))
		}
	}

	if mp["detail"] != "read: connection reset" {
		t.Errorf("Expected detail but got %v", mp["detail"])
	}
	if mp["error"] != "connection reset" {
		t.Errorf("Expected error but got %v", mp["error"])
	}
}
