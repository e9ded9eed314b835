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
	"errors"
	"strings"
	"testing"

	"github.com/shadowlure/shadowlure/config"
	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/stretchr/testify/require"
)

var recorded = map[string]*pushers.Recorder{}

var _ = pushers.Register("record", func(options ...pushers.ChannelOption) (pushers.Channel, error) {
	r := &namedRecorder{rec: pushers.NewRecorder()}

	for _, fn := range options {
		if err := fn(r); err != nil {
			return nil, err
		}
	}

	recorded[r.Name] = r.rec
	return r, nil
})

type namedRecorder struct {
	Name string `toml:"name"`

	rec *pushers.Recorder
}

func (r *namedRecorder) Send(e event.Event) {
	r.rec.Send(e)
}

func setupServer(t *testing.T, s string) (*Server, error) {
	c := config.New()
	require.NoError(t, c.Load(strings.NewReader(s+`
[[logging]]
output = "stderr"
level = "error"
`)))

	srv, err := New(WithConfig(c), WithToken())
	require.NoError(t, err)

	return srv, srv.setupChannels()
}

func TestFilterRouting(t *testing.T) {
	srv, err := setupServer(t, `
[channel.all]
type = "record"
name = "all"

[channel.ssh]
type = "record"
name = "ssh"

[channel.creds]
type = "record"
name = "creds"

[[filter]]
channel = ["all"]

[[filter]]
channel = ["ssh"]
services = ["^ssh$"]

[[filter]]
channel = ["creds"]
events = ["^AUTH:"]
`)
	require.NoError(t, err)

	srv.bus.Send(event.New(event.Service("ssh"), event.Type(event.ConnectionOpened)))
	srv.bus.Send(event.New(event.Service("ftp"), event.Type(event.CredentialAttempt)))
	srv.bus.Send(event.New(event.Service("ssh"), event.Type(event.CredentialAttempt)))

	require.Len(t, recorded["all"].Events(), 3)
	require.Len(t, recorded["ssh"].Events(), 2)
	require.Len(t, recorded["creds"].Events(), 2)

	for _, e := range recorded["all"].Events() {
		require.Equal(t, srv.Token(), e.Get("token"))
	}
}

func TestFilterUnknownChannel(t *testing.T) {
	_, err := setupServer(t, `
[channel.all]
type = "record"
name = "unknown-filter"

[[filter]]
channel = ["missing"]
`)

	var cerr *config.ConfigError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "filter[0]", cerr.Key)
}

func TestUnknownChannelType(t *testing.T) {
	_, err := setupServer(t, `
[channel.slack]
type = "slack"
`)

	var cerr *config.ConfigError
	require.True(t, errors.As(err, &cerr))
	require.Contains(t, cerr.Error(), "console")
}

func TestInvalidFilterExpression(t *testing.T) {
	_, err := setupServer(t, `
[channel.all]
type = "record"
name = "invalid-filter"

[[filter]]
channel = ["all"]
services = ["("]
`)

	var cerr *config.ConfigError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "filter[0].services", cerr.Key)
}
