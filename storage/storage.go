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

// Package storage provides namespaced key/value storage for state that must
// survive restarts, like generated host keys.
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("storage: key not found")

// Storage interface
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, data []byte) error
}

// DB is a bolt database where every namespace is a bucket.
type DB struct {
	db *bolt.DB
}

// Open opens or creates the database in dataDir.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dataDir, "shadowlure.db"), 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	return &DB{db: db}, nil
}

// Namespace returns the storage of a single namespace, the bucket is created
// when it does not exist.
func (d *DB) Namespace(namespace string) (Storage, error) {
	if err := d.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(namespace))
		return err
	}); err != nil {
		return nil, err
	}

	return &boltStorage{
		db: d.db,
		ns: []byte(namespace),
	}, nil
}

// Close closes the db and ends the session being used.
func (d *DB) Close() error {
	return d.db.Close()
}

type boltStorage struct {
	db *bolt.DB
	ns []byte
}

func (s *boltStorage) Get(key string) ([]byte, error) {
	var val []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.ns).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}

		// only valid during the transaction
		val = append([]byte{}, v...)
		return nil
	})

	return val, err
}

func (s *boltStorage) Set(key string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.ns).Put([]byte(key), data)
	})
}

// Memory returns a storage that lives as long as the process.
func Memory() Storage {
	return &memoryStorage{
		m: map[string][]byte{},
	}
}

type memoryStorage struct {
	sync.Mutex
	m map[string][]byte
}

func (s *memoryStorage) Get(key string) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	v, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte{}, v...), nil
}

func (s *memoryStorage) Set(key string, data []byte) error {
	s.Lock()
	defer s.Unlock()

	s.m[key] = append([]byte{}, data...)
	return nil
}
