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

// Package ssh emulates an SSH server that refuses every authentication
// attempt. Transport and key exchange are left to golang.org/x/crypto/ssh.
package ssh

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"

	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/shadowlure/shadowlure/services"
	"github.com/shadowlure/shadowlure/storage"
	"golang.org/x/crypto/ssh"

	logging "github.com/op/go-logging"
)

var (
	_   = services.Register("ssh", SSH)
	log = logging.MustGetLogger("shadowlure:services:ssh")
)

// DefaultBanner is the server version sent to clients.
const DefaultBanner = "SSH-2.0-OpenSSH_7.4p1 Debian-10+deb9u7"

var errAuthFailed = errors.New("permission denied")

// SSH returns the SSH emulator. The host key is loaded from the storage set
// with services.WithStorage or generated when there is none.
func SSH(options ...services.ServicerFunc) (services.Servicer, error) {
	s := &sshService{
		Config: Config{
			Banner:       DefaultBanner,
			MaxAuthTries: 6,
		},
	}

	for _, o := range options {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	if s.storage == nil {
		s.storage = storage.Memory()
	}

	key, err := (&sshStorage{s.storage}).HostKey()
	if err != nil {
		return nil, err
	}

	s.key = key
	return s, nil
}

type Config struct {
	Banner       string `toml:"banner"`
	MaxAuthTries int    `toml:"max-auth-tries"`
}

type sshService struct {
	Config

	c       pushers.Channel
	storage storage.Storage
	key     ssh.Signer
}

func (s *sshService) SetChannel(c pushers.Channel) {
	s.c = c
}

func (s *sshService) SetStorage(st storage.Storage) {
	s.storage = st
}

func clientOptions(conn ssh.ConnMetadata) event.Option {
	return event.NewWith(
		event.Custom("ssh.username", conn.User()),
		event.Custom("ssh.client-version", string(conn.ClientVersion())),
	)
}

func (s *sshService) serverConfig(sess *services.Session, attempts *int32) *ssh.ServerConfig {
	config := &ssh.ServerConfig{
		ServerVersion: s.Banner,
		MaxAuthTries:  s.MaxAuthTries,
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			atomic.AddInt32(attempts, 1)

			sess.Emit(event.CredentialAttempt,
				event.Detail("username=%s password=%s", conn.User(), string(password)),
				clientOptions(conn),
				event.Custom("ssh.method", "password"),
				event.Custom("ssh.password", string(password)),
			)

			return nil, errAuthFailed
		},
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			atomic.AddInt32(attempts, 1)

			fingerprint := ssh.FingerprintSHA256(key)

			sess.Emit(event.CredentialAttempt,
				event.Detail("username=%s publickey=%s", conn.User(), fingerprint),
				clientOptions(conn),
				event.Custom("ssh.method", "publickey"),
				event.Custom("ssh.publickey-type", key.Type()),
				event.Custom("ssh.publickey-fingerprint", fingerprint),
			)

			return nil, errAuthFailed
		},
		KeyboardInteractiveCallback: func(conn ssh.ConnMetadata, client ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := client(conn.User(), "", []string{"Password: "}, []bool{false})
			if err != nil || len(answers) != 1 {
				return nil, errAuthFailed
			}

			atomic.AddInt32(attempts, 1)

			sess.Emit(event.CredentialAttempt,
				event.Detail("username=%s password=%s", conn.User(), answers[0]),
				clientOptions(conn),
				event.Custom("ssh.method", "keyboard-interactive"),
				event.Custom("ssh.password", answers[0]),
			)

			return nil, errAuthFailed
		},
	}

	config.AddHostKey(s.key)
	return config
}

func (s *sshService) Handle(ctx context.Context, conn net.Conn) error {
	sess := services.FromContext(ctx, "ssh", conn, s.c)

	var attempts int32

	sess.Emit(event.BannerSent, event.Detail(s.Banner))

	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.serverConfig(sess, &attempts))
	if err == nil {
		// authentication never succeeds, grant nothing if it does
		log.Errorf("Unexpected authenticated ssh session from %s", sess.RemoteAddr)

		go ssh.DiscardRequests(reqs)
		go func() {
			for ch := range chans {
				ch.Reject(ssh.Prohibited, "no channels")
			}
		}()

		return sconn.Close()
	}

	if errors.Is(err, io.EOF) || atomic.LoadInt32(&attempts) > 0 {
		// peer went away, usually after giving up on authentication
		return nil
	}

	return &services.SessionError{Op: "handshake", Err: err}
}
