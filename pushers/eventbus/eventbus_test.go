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

package eventbus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/stretchr/testify/require"
)

type closeCounter struct {
	*pushers.Recorder
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestFanOut(t *testing.T) {
	eb := New()

	a := pushers.NewRecorder()
	b := pushers.NewRecorder()

	require.NoError(t, eb.Subscribe(a))
	require.NoError(t, eb.Subscribe(b))
	require.Equal(t, 2, eb.Len())

	eb.Send(event.New(event.Service("ftp")))

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
}

func TestConcurrentSendersKeepOrder(t *testing.T) {
	eb := New()
	r := pushers.NewRecorder()
	require.NoError(t, eb.Subscribe(r))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func(session string) {
			defer wg.Done()

			for j := 0; j < 50; j++ {
				eb.Send(event.New(event.SessionID(session), event.Custom("seq", j)))
			}
		}(fmt.Sprintf("s%d", i))
	}

	wg.Wait()

	events := r.Events()
	require.Len(t, events, 1000)

	last := map[string]int{}
	for _, e := range events {
		id := e.Get("session-id")
		seq, _ := e.Field("seq")

		if prev, ok := last[id]; ok {
			require.Equal(t, prev+1, seq.(int), "session %s out of order", id)
		}

		last[id] = seq.(int)
	}
}

func TestClose(t *testing.T) {
	eb := New()

	c := &closeCounter{Recorder: pushers.NewRecorder()}
	require.NoError(t, eb.Subscribe(c))
	require.NoError(t, eb.Close())

	require.Equal(t, 1, c.closed)
	require.Equal(t, 0, eb.Len())

	// no subscribers left
	eb.Send(event.New())
	require.Len(t, c.Events(), 0)
}
