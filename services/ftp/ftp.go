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

// Package ftp emulates the control connection of an FTP server. Every login
// is refused.
package ftp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/shadowlure/shadowlure/services"

	logging "github.com/op/go-logging"
)

var (
	_   = services.Register("ftp", FTP)
	log = logging.MustGetLogger("shadowlure:services:ftp")
)

// MaxLineLength bounds a single command line, longer lines are split.
const MaxLineLength = 1024

// DefaultBanner is sent after the 220 code when no banner is configured.
const DefaultBanner = "vsFTPd 3.0.3"

// Replies.
const (
	ReplyPassword     = "331 Please specify the password."
	ReplyLoginFailed  = "530 Login incorrect. Please try again."
	ReplySystem       = "215 UNIX Type: L8"
	ReplyGoodbye      = "221 Goodbye."
	ReplyUnrecognized = "500 Syntax error, command unrecognized."
)

// FTP setup the FTP service
func FTP(options ...services.ServicerFunc) (services.Servicer, error) {
	s := &ftpService{
		Opts: Opts{
			Banner: DefaultBanner,
		},
	}

	for _, o := range options {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Opts are the options of the FTP service, set in the config file.
type Opts struct {
	Banner string `toml:"banner"`
}

type ftpService struct {
	Opts

	c pushers.Channel
}

func (s *ftpService) SetChannel(c pushers.Channel) {
	s.c = c
}

// readLine returns the next line without its terminator. A line longer than
// MaxLineLength is returned in chunks.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return string(line), nil
	} else if err == io.EOF && len(line) > 0 {
		return string(line), nil
	} else if err != nil {
		return "", err
	}

	return string(line), nil
}

func (s *ftpService) Handle(ctx context.Context, conn net.Conn) error {
	sess := services.FromContext(ctx, "ftp", conn, s.c)

	reply := func(msg string) error {
		if _, err := fmt.Fprintf(conn, "%s\r\n", msg); err != nil {
			return &services.SessionError{Op: "write", Err: err}
		}

		return nil
	}

	banner := fmt.Sprintf("220 %s", s.Banner)
	if err := reply(banner); err != nil {
		return err
	}

	sess.Emit(event.BannerSent, event.Detail(banner))

	// the pending username of this session, set by USER
	username := ""

	br := bufio.NewReaderSize(conn, MaxLineLength)
	for {
		line, err := readLine(br)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return &services.SessionError{Op: "read", Err: err}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, " ", 2)

		cmd := strings.ToUpper(parts[0])

		arg := ""
		if len(parts) == 2 {
			arg = strings.TrimSpace(parts[1])
		}

		sess.Emit(event.CommandReceived,
			event.Detail(cmd),
			event.Custom("ftp.command", cmd),
		)

		switch cmd {
		case "USER":
			// the username is the first token, PASS keeps spaces
			username = "anonymous"
			if fields := strings.Fields(arg); len(fields) > 0 {
				username = fields[0]
			}

			sess.Emit(event.CredentialAttempt,
				event.Detail("username=%s", username),
				event.Custom("ftp.username", username),
			)

			err = reply(ReplyPassword)
		case "PASS":
			sess.Emit(event.CredentialAttempt,
				event.Detail("username=%s password=%s", username, arg),
				event.Custom("ftp.username", username),
				event.Custom("ftp.password", arg),
			)

			err = reply(ReplyLoginFailed)
		case "SYST", "FEAT", "TYPE", "PASV", "PWD":
			err = reply(ReplySystem)
		case "QUIT":
			return reply(ReplyGoodbye)
		default:
			log.Debugf("Unrecognized command %q from %s", cmd, sess.RemoteAddr)
			err = reply(ReplyUnrecognized)
		}

		if err != nil {
			return err
		}
	}
}
