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
	"fmt"
	"sort"
	"time"
)

// TimeFormat is used for the timestamp field of serialized events.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Event is a single structured record of something that happened during a
// session. Events are values; once handed to a channel they are never changed.
type Event struct {
	Date       time.Time
	Service    string
	SourceIP   string
	SourcePort uint16
	Kind       Kind
	Detail     string

	fields map[string]interface{}
}

// New returns an event stamped with the current UTC time.
func New(opts ...Option) Event {
	e := Event{
		Date: time.Now().UTC(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(&e)
	}

	return e
}

func (e *Event) store(key string, v interface{}) {
	if e.fields == nil {
		e.fields = map[string]interface{}{}
	}

	e.fields[key] = v
}

func (e Event) clone() Event {
	c := e
	c.fields = make(map[string]interface{}, len(e.fields))

	for k, v := range e.fields {
		c.fields[k] = v
	}

	return c
}

// Has returns true when the additional field s is set.
func (e Event) Has(s string) bool {
	_, ok := e.fields[s]
	return ok
}

// Field returns the raw value of an additional field.
func (e Event) Field(s string) (interface{}, bool) {
	v, ok := e.fields[s]
	return v, ok
}

// Get returns the string representation of any key of the flattened event.
func (e Event) Get(s string) string {
	switch s {
	case "timestamp":
		return e.Date.Format(TimeFormat)
	case "service":
		return e.Service
	case "attacker_ip":
		return e.SourceIP
	case "attacker_port":
		return fmt.Sprintf("%d", e.SourcePort)
	case "event":
		return string(e.Kind)
	case "detail":
		return e.Detail
	}

	v, ok := e.fields[s]
	if !ok {
		return ""
	}

	if sv, ok := v.(string); ok {
		return sv
	}

	return fmt.Sprintf("%v", v)
}

// Keys returns the additional field names in sorted order.
func (e Event) Keys() []string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

// ToMap flattens the event; the core keys are always present.
func ToMap(e Event) map[string]interface{} {
	mp := make(map[string]interface{}, len(e.fields)+6)

	for k, v := range e.fields {
		mp[k] = v
	}

	mp["timestamp"] = e.Date.Format(TimeFormat)
	mp["service"] = e.Service
	mp["attacker_ip"] = e.SourceIP
	mp["attacker_port"] = e.SourcePort
	mp["event"] = string(e.Kind)
	mp["detail"] = e.Detail

	return mp
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToMap(e))
}
