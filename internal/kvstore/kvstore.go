/*
 * Copyright 2024, 2025 Hewlett Packard Enterprise Development LP
 * Other additional copyright holders may be indicated within.
 *
 * The entirety of this work is licensed under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 *
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package kvstore keeps append-only ledgers in a badger database. A ledger
// is a key holding metadata followed by typed log entries; on start up the
// ledgers are replayed to the registry owning their key prefix.
package kvstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/HewlettPackard/structex"
	"github.com/dgraph-io/badger/v3"
	log "github.com/sirupsen/logrus"
)

// Registry owns the keys starting with Prefix.
type Registry interface {
	Prefix() string
	NewReplay(id string) ReplayHandler
}

// ReplayHandler receives the contents of one ledger during Replay.
type ReplayHandler interface {
	Metadata(data []byte) error
	Entry(t uint32, data []byte) error
	Done() error
}

var (
	ErrKeyExists   = errors.New("kvstore: key exists")
	ErrKeyNotFound = errors.New("kvstore: key not found")
	ErrReadOnly    = errors.New("kvstore: read only")
)

type ledgerHeader struct {
	MetadataLen uint32
}

type entryHeader struct {
	Type uint32
	Len  uint32
}

const (
	ledgerHeaderSize = 4
	entryHeaderSize  = 8
)

type Store struct {
	sync.Mutex

	db         *badger.DB
	readOnly   bool
	registries []Registry
}

// Open opens the database at path, creating it unless readOnly. An empty path
// keeps the database in memory.
func Open(path string, readOnly bool) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(log.WithField("db", path))
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts = opts.WithReadOnly(readOnly)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, readOnly: readOnly}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Register(registries []Registry) {
	s.Lock()
	defer s.Unlock()
	s.registries = append(s.registries, registries...)
}

func (s *Store) MakeKey(r Registry, id string) string {
	return r.Prefix() + id
}

// NewKey creates a ledger for key holding metadata.
func (s *Store) NewKey(key string, metadata []byte) (*Ledger, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err == nil {
			return fmt.Errorf("%s: %w", key, ErrKeyExists)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		value, err := encode(ledgerHeader{MetadataLen: uint32(len(metadata))})
		if err != nil {
			return err
		}

		return txn.Set([]byte(key), append(value, metadata...))
	})

	if err != nil {
		return nil, err
	}

	return &Ledger{store: s, key: []byte(key)}, nil
}

// OpenKey returns the ledger of an existing key.
func (s *Store) OpenKey(key string, readOnly bool) (*Ledger, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	} else if err != nil {
		return nil, err
	}

	return &Ledger{store: s, key: []byte(key), readOnly: readOnly || s.readOnly}, nil
}

func (s *Store) DeleteKey(key string) error {
	if s.readOnly {
		return ErrReadOnly
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Replay walks every ledger and feeds it to the registry with the longest
// prefix matching its key. Keys no registry owns are skipped.
func (s *Store) Replay() error {
	s.Lock()
	registries := append([]Registry{}, s.registries...)
	s.Unlock()

	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))

			var owner Registry
			for _, r := range registries {
				if strings.HasPrefix(key, r.Prefix()) && (owner == nil || len(r.Prefix()) > len(owner.Prefix())) {
					owner = r
				}
			}

			if owner == nil {
				continue
			}

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			if err := replay(owner.NewReplay(strings.TrimPrefix(key, owner.Prefix())), value); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}

		return nil
	})
}

func replay(h ReplayHandler, value []byte) error {
	r := bytes.NewReader(value)

	hdr := ledgerHeader{}
	if err := structex.Decode(r, &hdr); err != nil {
		return err
	}

	metadata := make([]byte, hdr.MetadataLen)
	if _, err := io.ReadFull(r, metadata); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}

	if err := h.Metadata(metadata); err != nil {
		return err
	}

	for r.Len() != 0 {
		entry := entryHeader{}
		if err := structex.Decode(r, &entry); err != nil {
			return err
		}

		data := make([]byte, entry.Len)
		if _, err := io.ReadFull(r, data); err != nil {
			return fmt.Errorf("entry: %w", err)
		}

		if err := h.Entry(entry.Type, data); err != nil {
			return err
		}
	}

	return h.Done()
}

func encode(s interface{}) ([]byte, error) {
	b := structex.NewBuffer(s)
	if err := structex.Encode(b, s); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Ledger appends entries to one key.
type Ledger struct {
	store    *Store
	key      []byte
	readOnly bool
}

func (l *Ledger) Log(t uint32, data []byte) error {
	if l.store == nil {
		return fmt.Errorf("%s: ledger closed", l.key)
	}
	if l.readOnly {
		return ErrReadOnly
	}

	entry, err := encode(entryHeader{Type: t, Len: uint32(len(data))})
	if err != nil {
		return err
	}

	return l.store.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(l.key)
		if err != nil {
			return err
		}

		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		value = append(value, entry...)
		return txn.Set(l.key, append(value, data...))
	})
}

func (l *Ledger) Close() error {
	l.store = nil
	return nil
}
