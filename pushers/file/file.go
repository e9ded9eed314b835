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

package file

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/op/go-logging"
	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	_ = pushers.Register("file", New)
)

var log = logging.MustGetLogger("shadowlure:channels:file")

const (
	defaultMaxSize = 100 // megabyte
	defaultMaxAge  = 30  // days
)

// FileConfig defines the config used to setup the FileBackend.
type FileConfig struct {
	File       string `toml:"filename"`
	MaxSize    int    `toml:"maxsize"`
	MaxAge     int    `toml:"maxage"`
	MaxBackups int    `toml:"maxbackups"`
	Compress   bool   `toml:"compress"`
	QueueSize  int    `toml:"queue-size"`
}

// FileBackend writes every event as a JSON line to a file. The file is
// rotated when it grows beyond MaxSize megabytes, rotated files are removed
// after MaxAge days or when there are more than MaxBackups of them.
type FileBackend struct {
	FileConfig

	dest *lumberjack.Logger
	q    *pushers.Queue
}

// New returns a new instance of a FileBackend.
func New(options ...pushers.ChannelOption) (pushers.Channel, error) {
	fc := FileBackend{
		FileConfig: FileConfig{
			MaxSize: defaultMaxSize,
			MaxAge:  defaultMaxAge,
		},
	}

	for _, optionFn := range options {
		if err := optionFn(&fc); err != nil {
			return nil, err
		}
	}

	if fc.File == "" {
		return nil, errors.New("file channel: filename not set")
	}

	if fc.MaxSize < 1 {
		return nil, errors.New("file channel: minimal max size is 1 megabyte")
	}

	if filepath.IsAbs(fc.File) {
	} else if pwd, err := os.Getwd(); err == nil {
		fc.File = filepath.Join(pwd, fc.File)
	}

	// fail at startup instead of on the first event
	f, err := os.OpenFile(fc.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	f.Close()

	fc.dest = &lumberjack.Logger{
		Filename:   fc.File,
		MaxSize:    fc.MaxSize,
		MaxAge:     fc.MaxAge,
		MaxBackups: fc.MaxBackups,
		Compress:   fc.Compress,
	}

	fc.q = pushers.NewQueue("file", fc.QueueSize, fc.write)
	return &fc, nil
}

// WithPath sets the filename of the channel.
func WithPath(path string) pushers.ChannelOption {
	return func(ch pushers.Channel) error {
		ch.(*FileBackend).File = path
		return nil
	}
}

func (f *FileBackend) write(e event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Errorf("Failed to marshal event to JSON : %+q", err)
		return
	}

	data = append(data, '\n')

	if _, err := f.dest.Write(data); err != nil {
		log.Errorf("Failed to write event to %s: %+q", f.File, err)
	}
}

// Send delivers the event into the FileBackend write queue.
func (f *FileBackend) Send(e event.Event) {
	f.q.Send(e)
}

// Close writes the queued events and closes the file.
func (f *FileBackend) Close() error {
	f.q.Close()
	return f.dest.Close()
}
