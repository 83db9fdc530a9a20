// Package store defines the durable, table-partitioned sorted storage that
// transactions read through and apply their writes to.
package store

import (
	"errors"

	"github.com/jankotek/titan/pkg/common/iterator"
)

var (
	// ErrKeyNotFound is returned when a key doesn't exist
	ErrKeyNotFound = errors.New("key not found")

	// ErrConflict is returned by Commit when the store rejected the write set
	// because of a concurrent change. The caller may retry in a new transaction.
	ErrConflict = errors.New("transaction conflict")

	// ErrClosed is returned when the store has been closed
	ErrClosed = errors.New("store is closed")
)

// Table is one ordered key space inside a store. Keys are ordered by
// bytes.Compare.
type Table interface {
	// Get retrieves the value for key, or ErrKeyNotFound
	Get(key []byte) ([]byte, error)

	// Put stages key -> value until the store commits
	Put(key, value []byte) error

	// Remove stages the removal of key until the store commits
	Remove(key []byte) error

	// ContainsKey reports whether key holds a committed value
	ContainsKey(key []byte) (bool, error)

	// Range returns an iterator over [start, end), positioned at the first entry.
	// The caller must close it.
	Range(start, end []byte) (iterator.Iterator, error)
}

// Store is a durable handle holding any number of named tables.
//
// Reads see committed data only. Staged writes become visible, atomically,
// when Commit returns nil.
type Store interface {
	// Table returns the table with the given name, creating it on first use
	Table(name string) Table

	// Commit makes all staged writes durable
	Commit() error

	// Rollback discards all staged writes
	Rollback() error

	// String identifies the live handle
	String() string
}
