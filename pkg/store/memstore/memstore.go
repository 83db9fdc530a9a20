// Package memstore is an in-memory store.Store with one B-tree per table.
// Data is not written to disk. It is intended for tests and for the shell's
// in-memory mode.
package memstore

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/jankotek/titan/pkg/common/iterator"
	"github.com/jankotek/titan/pkg/store"
)

const treeDegree = 32

var instances atomic.Uint64

// item is a key-value pair stored in a table tree
type item struct {
	key   []byte
	value []byte
}

// Less orders items by key
func (i item) Less(than btree.Item) bool {
	return bytes.Compare(i.key, than.(item).key) < 0
}

// operation is a write staged until Commit
type operation struct {
	table  string
	key    []byte
	value  []byte
	remove bool
}

// Store keeps committed data in per-table B-trees and staged writes in a list
// that Commit replays in order.
type Store struct {
	name    string
	tables  map[string]*btree.BTree
	pending []operation

	commits   uint64
	commitErr error
	writeErr  error
	closed    bool

	mu sync.RWMutex
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		name:   fmt.Sprintf("memstore-%d", instances.Add(1)),
		tables: make(map[string]*btree.BTree),
	}
}

// Table returns the table with the given name
func (s *Store) Table(name string) store.Table {
	return &table{store: s, name: name}
}

// Commit applies the staged writes. If a commit error was injected, the
// staged writes are dropped and the error is returned instead.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	if s.commitErr != nil {
		err := s.commitErr
		s.commitErr = nil
		s.pending = nil
		return err
	}

	for _, op := range s.pending {
		tree := s.tree(op.table)
		if op.remove {
			tree.Delete(item{key: op.key})
		} else {
			tree.ReplaceOrInsert(item{key: op.key, value: op.value})
		}
	}
	s.pending = nil
	s.commits++
	return nil
}

// Rollback drops the staged writes
func (s *Store) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.pending = nil
	return nil
}

// Close releases the store. Further calls fail with store.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.tables = nil
	s.pending = nil
	return nil
}

// String identifies the store instance
func (s *Store) String() string {
	return s.name
}

// CommitCount returns the number of successful commits
func (s *Store) CommitCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// PendingCount returns the number of staged writes
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// SetCommitError makes the next Commit fail with err
func (s *Store) SetCommitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// SetWriteError makes the next Put or Remove fail with err
func (s *Store) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Snapshot returns a copy of all committed data as table -> key -> value
func (s *Store) Snapshot() map[string]map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]string, len(s.tables))
	for name, tree := range s.tables {
		if tree.Len() == 0 {
			continue
		}
		entries := make(map[string]string, tree.Len())
		tree.Ascend(func(i btree.Item) bool {
			it := i.(item)
			entries[string(it.key)] = string(it.value)
			return true
		})
		out[name] = entries
	}
	return out
}

// tree returns the tree for a table, creating it. Callers hold the write lock.
func (s *Store) tree(name string) *btree.BTree {
	tree, ok := s.tables[name]
	if !ok {
		tree = btree.New(treeDegree)
		s.tables[name] = tree
	}
	return tree
}

// stage records a write. Callers pass copies they own.
func (s *Store) stage(op operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if s.writeErr != nil {
		err := s.writeErr
		s.writeErr = nil
		return err
	}
	s.pending = append(s.pending, op)
	return nil
}

// table is a named view over the store
type table struct {
	store *Store
	name  string
}

func (t *table) lookup(key []byte) ([]byte, bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	if t.store.closed {
		return nil, false, store.ErrClosed
	}
	tree, ok := t.store.tables[t.name]
	if !ok {
		return nil, false, nil
	}
	found := tree.Get(item{key: key})
	if found == nil {
		return nil, false, nil
	}
	return found.(item).value, true, nil
}

// Get retrieves the committed value for key
func (t *table) Get(key []byte) ([]byte, error) {
	value, ok, err := t.lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	return copyBytes(value), nil
}

// ContainsKey reports whether key holds a committed value
func (t *table) ContainsKey(key []byte) (bool, error) {
	_, ok, err := t.lookup(key)
	return ok, err
}

// Put stages key -> value
func (t *table) Put(key, value []byte) error {
	return t.store.stage(operation{table: t.name, key: copyBytes(key), value: copyBytes(value)})
}

// Remove stages the removal of key
func (t *table) Remove(key []byte) error {
	return t.store.stage(operation{table: t.name, key: copyBytes(key), remove: true})
}

// Range copies the committed entries in [start, end) into an iterator. A nil
// end runs to the end of the table.
func (t *table) Range(start, end []byte) (iterator.Iterator, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	if t.store.closed {
		return nil, store.ErrClosed
	}

	var entries []iterator.Entry
	tree, ok := t.store.tables[t.name]
	if ok {
		collect := func(i btree.Item) bool {
			it := i.(item)
			entries = append(entries, iterator.Entry{Key: copyBytes(it.key), Value: copyBytes(it.value)})
			return true
		}
		if end == nil {
			tree.AscendGreaterOrEqual(item{key: start}, collect)
		} else if bytes.Compare(start, end) < 0 {
			tree.AscendRange(item{key: start}, item{key: end}, collect)
		}
	}
	return iterator.NewSliceIterator(entries), nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
