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
	"github.com/shadowlure/shadowlure/storage"
	"golang.org/x/crypto/ssh"
)

const hostKeyName = "host-key"

type sshStorage struct {
	storage.Storage
}

// HostKey returns the stored host key. A new key is generated and stored on
// first use, or when the stored one can not be parsed.
func (s *sshStorage) HostKey() (ssh.Signer, error) {
	if data, err := s.Get(hostKeyName); err == nil {
		signer, err := parseHostKey(data)
		if err == nil {
			return signer, nil
		}

		log.Errorf("Could not parse stored host key, generating a new one: %s", err.Error())
	} else if err != storage.ErrNotFound {
		return nil, err
	}

	data, err := generateHostKey()
	if err != nil {
		return nil, err
	}

	if err := s.Set(hostKeyName, data); err != nil {
		log.Errorf("Could not persist host key: %s", err.Error())
	}

	return parseHostKey(data)
}
