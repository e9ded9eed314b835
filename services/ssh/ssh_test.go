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

package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"
	"github.com/shadowlure/shadowlure/services"
	"github.com/shadowlure/shadowlure/storage"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// serve handles a single connection on a loopback listener.
func serve(t *testing.T, s services.Servicer) (string, chan error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		defer l.Close()

		conn, err := l.Accept()
		if err != nil {
			done <- err
			return
		}

		defer conn.Close()
		done <- s.Handle(context.Background(), conn)
	}()

	return l.Addr().String(), done
}

func TestPasswordAttempt(t *testing.T) {
	r := pushers.NewRecorder()

	s, err := SSH(services.WithChannel(r))
	require.NoError(t, err)

	addr, done := serve(t, s)

	_, err = ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "root",
		Auth:            []ssh.AuthMethod{ssh.Password("toor")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.Error(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("session did not end")
	}

	creds := r.Filter(func(e event.Event) bool { return e.Kind == event.CredentialAttempt })
	require.NotEmpty(t, creds)
	require.Equal(t, "root", creds[0].Get("ssh.username"))
	require.Equal(t, "toor", creds[0].Get("ssh.password"))
	require.Contains(t, creds[0].Detail, "toor")

	require.Equal(t, event.BannerSent, r.Events()[0].Kind)
}

func TestPublicKeyAttempt(t *testing.T) {
	r := pushers.NewRecorder()

	s, err := SSH(services.WithChannel(r))
	require.NoError(t, err)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	addr, done := serve(t, s)

	_, err = ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "admin",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.Error(t, err)
	require.NoError(t, <-done)

	creds := r.Filter(func(e event.Event) bool { return e.Kind == event.CredentialAttempt })
	require.NotEmpty(t, creds)
	require.Equal(t, ssh.FingerprintSHA256(signer.PublicKey()), creds[0].Get("ssh.publickey-fingerprint"))
}

func TestServerVersion(t *testing.T) {
	s, err := SSH(services.WithChannel(pushers.MustDummy()), func(s services.Servicer) error {
		s.(*sshService).Banner = "SSH-2.0-dropbear_2019.78"
		return nil
	})
	require.NoError(t, err)

	addr, done := serve(t, s)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "SSH-2.0-dropbear_2019.78\r\n", string(buf[:n]))

	// scanner disconnects before authenticating
	conn.Close()
	require.NoError(t, <-done)
}

func TestHostKeyPersisted(t *testing.T) {
	st := storage.Memory()

	a, err := SSH(services.WithStorage(st))
	require.NoError(t, err)

	b, err := SSH(services.WithStorage(st))
	require.NoError(t, err)

	require.Equal(t,
		a.(*sshService).key.PublicKey().Marshal(),
		b.(*sshService).key.PublicKey().Marshal(),
	)
}

func TestHostKeyCorrupt(t *testing.T) {
	st := storage.Memory()
	require.NoError(t, st.Set(hostKeyName, []byte("not a key")))

	s, err := SSH(services.WithStorage(st))
	require.NoError(t, err)

	data, err := st.Get(hostKeyName)
	require.NoError(t, err)

	signer, err := parseHostKey(data)
	require.NoError(t, err)
	require.Equal(t, signer.PublicKey().Marshal(), s.(*sshService).key.PublicKey().Marshal())
}
