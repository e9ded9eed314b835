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
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
)

var (
	_ = pushers.Register("console", New)
)

// Config defines the config used to setup the Console.
type Config struct {
	QueueSize int `toml:"queue-size"`
}

// New returns a new instance of a Console channel writing to stdout.
func New(options ...pushers.ChannelOption) (pushers.Channel, error) {
	c := Console{
		Writer: os.Stdout,
	}

	for _, optionFn := range options {
		if err := optionFn(&c); err != nil {
			return nil, err
		}
	}

	c.q = pushers.NewQueue("console", c.QueueSize, c.write)
	return &c, nil
}

// WithWriter sets the destination of the console.
func WithWriter(w io.Writer) pushers.ChannelOption {
	return func(ch pushers.Channel) error {
		ch.(*Console).Writer = w
		return nil
	}
}

// Console provides a backend for outputing event details directly to
// the current console, one key=value line per event.
type Console struct {
	io.Writer `toml:"-"`

	Config

	q *pushers.Queue
}

func printify(s string) string {
	o := ""
	for _, rune := range s {
		if !unicode.IsPrint(rune) {
			buf := make([]byte, 4)

			n := utf8.EncodeRune(buf, rune)
			o += fmt.Sprintf("\\x%s", hex.EncodeToString(buf[:n]))
			continue
		}

		if rune == '\'' || rune == '\\' {
			o += "\\"
		}

		o += string(rune)
	}

	return o
}

func quote(v interface{}) string {
	switch x := v.(type) {
	case uint64, uint32, uint16, uint8, uint,
		int64, int32, int16, int8, int:
		return fmt.Sprintf("%d", x)
	case bool:
		return fmt.Sprintf("%t", x)
	case string:
		return "'" + printify(x) + "'"
	default:
		return "'" + printify(fmt.Sprintf("%v", x)) + "'"
	}
}

// Format renders e as a single line.
func Format(e event.Event) string {
	params := []string{
		fmt.Sprintf("timestamp=%s", e.Date.Format(event.TimeFormat)),
		fmt.Sprintf("service=%s", quote(e.Service)),
		fmt.Sprintf("attacker_ip=%s", quote(e.SourceIP)),
		fmt.Sprintf("attacker_port=%d", e.SourcePort),
		fmt.Sprintf("event=%s", quote(string(e.Kind))),
	}

	if e.Detail != "" {
		params = append(params, fmt.Sprintf("detail=%s", quote(e.Detail)))
	}

	for _, k := range e.Keys() {
		// too large for a single line
		if k == "stacktrace" || k == "payload-hex" {
			continue
		}

		v, _ := e.Field(k)
		params = append(params, fmt.Sprintf("%s=%s", k, quote(v)))
	}

	return strings.Join(params, " ")
}

func (b *Console) write(e event.Event) {
	fmt.Fprintln(b.Writer, Format(e))
}

// Send delivers the event into the console write queue.
func (b *Console) Send(e event.Event) {
	b.q.Send(e)
}

// Close writes the queued events.
func (b *Console) Close() error {
	return b.q.Close()
}
