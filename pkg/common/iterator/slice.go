package iterator

import (
	"bytes"
	"sort"
)

// Entry is a single key-value pair held by a SliceIterator
type Entry struct {
	Key   []byte
	Value []byte
}

// SliceIterator iterates over entries that were already materialized in key
// order. Stores use it when they copy a range out from under their own lock.
type SliceIterator struct {
	entries  []Entry
	position int
}

// NewSliceIterator creates an iterator over entries, which must be sorted by
// key. The iterator starts positioned at the first entry.
func NewSliceIterator(entries []Entry) *SliceIterator {
	return &SliceIterator{entries: entries}
}

// SeekToFirst positions the iterator at the first entry
func (it *SliceIterator) SeekToFirst() {
	it.position = 0
}

// Seek positions the iterator at the first key >= target
func (it *SliceIterator) Seek(target []byte) bool {
	it.position = sort.Search(len(it.entries), func(i int) bool {
		return bytes.Compare(it.entries[i].Key, target) >= 0
	})
	return it.Valid()
}

// Next advances to the next entry
func (it *SliceIterator) Next() bool {
	if it.position < len(it.entries) {
		it.position++
	}
	return it.Valid()
}

// Key returns the current key
func (it *SliceIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.entries[it.position].Key
}

// Value returns the current value
func (it *SliceIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.entries[it.position].Value
}

// Valid returns true if the iterator is positioned at an entry
func (it *SliceIterator) Valid() bool {
	return it.position >= 0 && it.position < len(it.entries)
}

// Err always returns nil
func (it *SliceIterator) Err() error {
	return nil
}

// Close drops the entries
func (it *SliceIterator) Close() error {
	it.entries = nil
	it.position = 0
	return nil
}
