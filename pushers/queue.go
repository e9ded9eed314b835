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

package pushers

import (
	"sync"
	"sync/atomic"

	"github.com/shadowlure/shadowlure/event"
)

// DefaultQueueSize is the number of events a backend buffers before dropping.
const DefaultQueueSize = 1024

// Queue is a bounded event queue drained by a single writer goroutine, so a
// backend sees events in the order they were sent. Send never blocks; when
// the queue is full the event is dropped and counted.
type Queue struct {
	name string
	ch   chan event.Event
	done chan struct{}

	m      sync.RWMutex
	closed bool

	dropped uint64
}

// NewQueue starts the writer goroutine which calls fn for every event.
func NewQueue(name string, size int, fn func(event.Event)) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}

	q := &Queue{
		name: name,
		ch:   make(chan event.Event, size),
		done: make(chan struct{}),
	}

	go func() {
		defer close(q.done)

		for e := range q.ch {
			fn(e)
		}
	}()

	return q
}

// Send queues e.
func (q *Queue) Send(e event.Event) {
	q.m.RLock()
	defer q.m.RUnlock()

	if q.closed {
		return
	}

	select {
	case q.ch <- e:
	default:
		if n := atomic.AddUint64(&q.dropped, 1); n == 1 || n%1000 == 0 {
			log.Warningf("Channel %s queue full, dropped %d events", q.name, n)
		}
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (q *Queue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

// Close stops accepting events and waits until every queued event is written.
func (q *Queue) Close() error {
	q.m.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.m.Unlock()

	<-q.done
	return nil
}
