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

	"github.com/shadowlure/shadowlure/event"
)

// Recorder is a channel which keeps every event in memory, in the order
// received.
type Recorder struct {
	m      sync.Mutex
	events []event.Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(e event.Event) {
	r.m.Lock()
	defer r.m.Unlock()

	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []event.Event {
	r.m.Lock()
	defer r.m.Unlock()

	events := make([]event.Event, len(r.events))
	copy(events, r.events)
	return events
}

// Filter returns the recorded events matching fn.
func (r *Recorder) Filter(fn FilterFunc) []event.Event {
	var events []event.Event
	for _, e := range r.Events() {
		if fn(e) {
			events = append(events, e)
		}
	}

	return events
}
