// Package bounded clamps an iterator to a half-open key range.
package bounded

import (
	"bytes"

	"github.com/jankotek/titan/pkg/common/iterator"
)

// keyRange is [lo, hi). A nil side is unbounded.
type keyRange struct {
	lo, hi []byte
}

func (r keyRange) belowLo(key []byte) bool {
	return r.lo != nil && bytes.Compare(key, r.lo) < 0
}

func (r keyRange) atOrPastHi(key []byte) bool {
	return r.hi != nil && bytes.Compare(key, r.hi) >= 0
}

// BoundedIterator restricts an underlying iterator to [start, end). Once the
// underlying iterator passes end the bounded iterator stays exhausted until the
// next seek.
type BoundedIterator struct {
	iterator.Iterator
	r    keyRange
	done bool
}

// NewBoundedIterator wraps iter. The bounds are copied and a nil bound is open.
func NewBoundedIterator(iter iterator.Iterator, startKey, endKey []byte) *BoundedIterator {
	return &BoundedIterator{
		Iterator: iter,
		r:        keyRange{lo: clone(startKey), hi: clone(endKey)},
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}

// SeekToFirst positions at the first key of the range
func (b *BoundedIterator) SeekToFirst() {
	b.done = false
	if b.r.lo == nil {
		b.Iterator.SeekToFirst()
	} else {
		b.Iterator.Seek(b.r.lo)
	}
	b.settle()
}

// Seek positions at the first key >= target inside the range
func (b *BoundedIterator) Seek(target []byte) bool {
	b.done = false
	if b.r.belowLo(target) {
		target = b.r.lo
	}
	if b.r.atOrPastHi(target) {
		b.done = true
		return false
	}
	b.Iterator.Seek(target)
	return b.settle()
}

// Next advances within the range
func (b *BoundedIterator) Next() bool {
	if !b.Valid() {
		return false
	}
	b.Iterator.Next()
	return b.settle()
}

// Valid reports whether the iterator sits on a key inside the range
func (b *BoundedIterator) Valid() bool {
	return !b.done && b.Iterator.Valid()
}

// Key returns the current key, or nil outside the range
func (b *BoundedIterator) Key() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Key()
}

// Value returns the current value, or nil outside the range
func (b *BoundedIterator) Value() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Value()
}

// settle marks the iterator exhausted if the underlying position left the range
func (b *BoundedIterator) settle() bool {
	if !b.Iterator.Valid() {
		return false
	}
	key := b.Iterator.Key()
	if b.r.belowLo(key) || b.r.atOrPastHi(key) {
		b.done = true
		return false
	}
	return true
}
