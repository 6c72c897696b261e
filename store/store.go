// Copyright 2025 The go-airgap-keyring Authors
// This file is part of the go-airgap-keyring library.
//
// The go-airgap-keyring library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// The go-airgap-keyring library is distributed in the hope that it will be
// useful, but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-airgap-keyring library. If not, see
// <http://www.gnu.org/licenses/>.

// Package store persists serialized keyring records across restarts, so an
// initialized keyring can be restored without another device read even with
// a signing request still in flight.
package store

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// keyringBucket is the top level bucket holding one record per keyring name.
var keyringBucket = []byte("keyrings")

// ErrKeyringNotFound is returned when no record exists under the requested
// name.
var ErrKeyringNotFound = errors.New("keyring record not found")

// Store is a bolt backed record store for serialized keyrings.
type Store struct {
	db *bolt.DB
}

// Open opens the record store at path, creating it if needed. The open
// times out instead of blocking forever on a database another process holds.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening keyring store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(keyringBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Put writes the serialized keyring record under name, replacing any
// previous record.
func (s *Store) Put(name string, blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(keyringBucket).Put([]byte(name), blob)
	})
}

// Get returns a copy of the record stored under name.
func (s *Store) Get(name string) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(keyringBucket).Get([]byte(name))
		if value == nil {
			return fmt.Errorf("%w: %s", ErrKeyringNotFound, name)
		}
		blob = append([]byte{}, value...)
		return nil
	})
	return blob, err
}

// Delete removes the record stored under name.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(keyringBucket)
		if bucket.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", ErrKeyringNotFound, name)
		}
		return bucket.Delete([]byte(name))
	})
}

// List returns the names of all stored records.
func (s *Store) List() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(keyringBucket).ForEach(func(key, _ []byte) error {
			names = append(names, string(key))
			return nil
		})
	})
	return names, err
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
