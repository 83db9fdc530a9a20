// Package overlay holds the uncommitted writes and deletes of one transaction
// in a concurrent skip list ordered by (table, key).
package overlay

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxHeight is the maximum height of the skip list
	MaxHeight = 12

	// BranchingFactor determines the probability of increasing the height
	BranchingFactor = 4
)

// node represents a node in the skip list. The key never changes once the
// node is linked; the entry pointer is swapped when the key is rewritten.
type node struct {
	key    Key
	entry  atomic.Pointer[entry]
	height int32
	next   [MaxHeight]atomic.Pointer[node]
}

func newNode(key Key, e *entry, height int) *node {
	n := &node{
		key:    key,
		height: int32(height),
	}
	n.entry.Store(e)
	return n
}

// Overlay is an ordered map from (table, key) to a Value or a tombstone.
//
// Writers are serialized by an internal mutex. Readers never lock: links and
// entries are published through atomic pointers, so a scan may run while
// another goroutine inserts into the same overlay.
type Overlay struct {
	head      *node
	maxHeight atomic.Int32
	count     atomic.Int64
	size      atomic.Int64

	// mu serializes writers and guards rnd
	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates an empty overlay
func New() *Overlay {
	o := &Overlay{
		head: newNode(Key{}, nil, MaxHeight),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	o.maxHeight.Store(1)
	return o
}

// randomHeight generates a random height for a new node. Callers hold mu.
func (o *Overlay) randomHeight() int {
	height := 1
	for height < MaxHeight && o.rnd.Intn(BranchingFactor) == 0 {
		height++
	}
	return height
}

// findGreaterOrEqual returns the first node with a key >= key. When prev is
// non-nil it is filled with the rightmost node before key at every level.
func (o *Overlay) findGreaterOrEqual(key Key, prev *[MaxHeight]*node) *node {
	current := o.head
	for level := int(o.maxHeight.Load()) - 1; level >= 0; level-- {
		for next := current.next[level].Load(); next != nil; next = current.next[level].Load() {
			if Compare(next.key, key) >= 0 {
				break
			}
			current = next
		}
		if prev != nil {
			prev[level] = current
		}
	}
	return current.next[0].Load()
}

// set records value under key, replacing any earlier entry for the key
func (o *Overlay) set(table string, key []byte, value Value) {
	o.mu.Lock()
	defer o.mu.Unlock()

	lookup := Key{Table: table, Key: key}
	e := &entry{value: value}

	var prev [MaxHeight]*node
	if found := o.findGreaterOrEqual(lookup, &prev); found != nil && Compare(found.key, lookup) == 0 {
		old := found.entry.Swap(e)
		o.size.Add(e.size() - old.size())
		return
	}

	height := o.randomHeight()
	if current := int(o.maxHeight.Load()); height > current {
		for level := current; level < height; level++ {
			prev[level] = o.head
		}
		o.maxHeight.Store(int32(height))
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)
	n := newNode(Key{Table: table, Key: keyCopy}, e, height)

	// Link bottom-up so a reader that sees the node at level 0 can follow it
	for level := 0; level < height; level++ {
		n.next[level].Store(prev[level].next[level].Load())
		prev[level].next[level].Store(n)
	}

	o.count.Add(1)
	o.size.Add(int64(len(keyCopy)+len(table)) + e.size())
}

// Put records value for (table, key). The value is copied.
func (o *Overlay) Put(table string, key, value []byte) {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	o.set(table, key, Put(valueCopy))
}

// Delete records a tombstone for (table, key) whether or not the key exists
func (o *Overlay) Delete(table string, key []byte) {
	o.set(table, key, Tombstone())
}

// Get returns the entry recorded for (table, key).
// Returns (value, true) if an entry exists, which may be a tombstone.
// Returns (Value{}, false) if the overlay has nothing for the key.
func (o *Overlay) Get(table string, key []byte) (Value, bool) {
	lookup := Key{Table: table, Key: key}
	n := o.findGreaterOrEqual(lookup, nil)
	if n == nil || Compare(n.key, lookup) != 0 {
		return Value{}, false
	}
	return n.entry.Load().value, true
}

// Len returns the number of distinct keys in the overlay
func (o *Overlay) Len() int {
	return int(o.count.Load())
}

// ApproximateSize returns the approximate size of the overlay in bytes
func (o *Overlay) ApproximateSize() int64 {
	return o.size.Load()
}

// Clear drops every entry. Iterators that are already positioned keep
// walking the detached nodes.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for level := 0; level < MaxHeight; level++ {
		o.head.next[level].Store(nil)
	}
	o.maxHeight.Store(1)
	o.count.Store(0)
	o.size.Store(0)
}
