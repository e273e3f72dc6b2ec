// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package audit

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/auditwal/internal/logging"
)

const prefixPending = "pending:"

// ErrStoreClosed is returned by operations on a closed BadgerPendingStore.
var ErrStoreClosed = errors.New("audit: pending store is closed")

// BadgerPendingStore persists unmatched halves in BadgerDB so they survive restarts.
type BadgerPendingStore struct {
	db     *badger.DB
	count  atomic.Int64
	mu     sync.RWMutex
	closed bool
}

// OpenBadgerPendingStore opens (or creates) a pending store at path.
// Writes are synced so an accepted begin is on disk before Observe returns.
func OpenBadgerPendingStore(path string) (*BadgerPendingStore, error) {
	if path == "" {
		return nil, fmt.Errorf("badger pending store: path is required")
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = nil
	return openBadgerPendingStore(opts)
}

func openBadgerPendingStore(opts badger.Options) (*BadgerPendingStore, error) {
	path := opts.Dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &BadgerPendingStore{db: db}

	n, err := s.countKeys()
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	s.count.Store(int64(n))

	if n > 0 {
		logging.Info().Int("pending", n).Str("path", path).Msg("Restored unmatched audit halves")
	}
	return s, nil
}

func pendingKey(correlationID string) []byte {
	return []byte(prefixPending + correlationID)
}

func (s *BadgerPendingStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *BadgerPendingStore) Put(half PendingHalf) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(half)
	if err != nil {
		return fmt.Errorf("marshal pending half: %w", err)
	}

	key := pendingKey(half.Entry.CorrelationID)
	existed := false
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			existed = true
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("store pending half: %w", err)
	}
	if !existed {
		s.count.Add(1)
	}
	return nil
}

func (s *BadgerPendingStore) Take(correlationID string) (PendingHalf, bool, error) {
	if err := s.checkOpen(); err != nil {
		return PendingHalf{}, false, err
	}

	var half PendingHalf
	found := false
	key := pendingKey(correlationID)

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &half)
		}); err != nil {
			return fmt.Errorf("unmarshal pending half: %w", err)
		}
		found = true
		return txn.Delete(key)
	})
	if err != nil {
		return PendingHalf{}, false, fmt.Errorf("take pending half: %w", err)
	}
	if found {
		s.count.Add(-1)
	}
	return half, found, nil
}

func (s *BadgerPendingStore) TakeExpired(cutoff time.Time) ([]PendingHalf, error) {
	return s.takeWhere(func(h *PendingHalf) bool { return h.SeenAt.Before(cutoff) })
}

func (s *BadgerPendingStore) TakeAll() ([]PendingHalf, error) {
	return s.takeWhere(func(*PendingHalf) bool { return true })
}

// takeChunk bounds keys deleted per transaction so a large sweep never
// exceeds badger's transaction limits.
const takeChunk = 1000

// takeWhere deletes and returns matching halves. Undecodable values are
// removed and logged so a corrupt key cannot wedge the sweeper.
//
// Deletes are committed in chunks. A half is returned only once its delete
// committed; if a later chunk fails, the halves already taken are returned
// and the rest stay stored for the next call.
func (s *BadgerPendingStore) takeWhere(match func(*PendingHalf) bool) ([]PendingHalf, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	type taken struct {
		key  []byte
		half *PendingHalf // nil for an undecodable value
	}
	var found []taken

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var half PendingHalf
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &half)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Dropping undecodable pending half")
				found = append(found, taken{key: item.KeyCopy(nil)})
				continue
			}
			if match(&half) {
				found = append(found, taken{key: item.KeyCopy(nil), half: &half})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending halves: %w", err)
	}

	chunk := takeChunk
	if n := int(s.db.MaxBatchCount()) / 2; n > 0 && n < chunk {
		chunk = n
	}

	var out []PendingHalf
	for i := 0; i < len(found); i += chunk {
		part := found[i:min(i+chunk, len(found))]
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, t := range part {
				if err := txn.Delete(t.key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("delete pending halves: %w", err)
			}
			logging.Error().
				Err(err).
				Int("taken", i).
				Int("remaining", len(found)-i).
				Msg("Failed to delete pending halves, remaining are kept for the next sweep")
			break
		}
		s.count.Add(-int64(len(part)))
		for _, t := range part {
			if t.half != nil {
				out = append(out, *t.half)
			}
		}
	}

	sortHalves(out)
	return out, nil
}

func (s *BadgerPendingStore) countKeys() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count pending halves: %w", err)
	}
	return n, nil
}

func (s *BadgerPendingStore) Len() int {
	return int(s.count.Load())
}

func (s *BadgerPendingStore) Durable() bool { return true }

// Close closes the underlying database. Safe to call more than once.
func (s *BadgerPendingStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	return nil
}
