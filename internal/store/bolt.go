package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("beegreen")

// lockTimeout bounds the wait for another process's transaction.
const lockTimeout = time.Second

// ErrClosed is returned for operations on a closed BoltStore.
var ErrClosed = errors.New("store: closed")

// BoltStore is a Store backed by a single bbolt bucket.
//
// The file is opened for each operation and closed again, so the daemon and
// one-shot commands can share it. bbolt's file lock serializes them; reads
// take a shared lock.
type BoltStore struct {
	path string

	mu     sync.Mutex
	closed bool
}

// OpenBolt creates the database file at path if needed and checks that it
// can be opened.
func OpenBolt(path string) (*BoltStore, error) {
	s := &BoltStore{path: path}
	err := s.with(false, func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// with opens the file, runs fn in a transaction and closes the file again.
func (s *BoltStore) with(readOnly bool, fn func(tx *bolt.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: lockTimeout, ReadOnly: readOnly})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return fmt.Errorf("open store %s: locked by another process: %w", s.path, err)
		}
		return fmt.Errorf("open store %s: %w", s.path, err)
	}
	defer db.Close()
	if readOnly {
		return db.View(fn)
	}
	return db.Update(fn)
}

func (s *BoltStore) Get(key string, v any) (bool, error) {
	var data []byte
	err := s.with(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if raw := b.Get([]byte(key)); raw != nil {
			data = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}
	if data == nil {
		return false, nil
	}
	return true, decode(key, data, v)
}

func (s *BoltStore) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.with(false, func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) Delete(key string) error {
	return s.with(false, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Close marks the store closed. The file itself is only open during an
// operation.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
