package overlay

import (
	"bytes"
	"strings"
)

// Kind tells a stored value apart from a deletion marker
type Kind uint8

const (
	// KindValue indicates the entry carries a value
	KindValue Kind = iota + 1

	// KindTombstone indicates the entry marks the key as deleted
	KindTombstone
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindTombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// Value is either a byte payload or a tombstone. An empty payload is a
// legal value and never reads as a tombstone.
type Value struct {
	kind Kind
	data []byte
}

// Put returns a Value holding data
func Put(data []byte) Value {
	return Value{kind: KindValue, data: data}
}

// Tombstone returns the deletion marker
func Tombstone() Value {
	return Value{kind: KindTombstone}
}

// Kind returns the kind of the value
func (v Value) Kind() Kind {
	return v.kind
}

// IsTombstone returns true if the value is a deletion marker
func (v Value) IsTombstone() bool {
	return v.kind == KindTombstone
}

// Bytes returns the payload, nil for tombstones
func (v Value) Bytes() []byte {
	if v.kind != KindValue {
		return nil
	}
	return v.data
}

// Key addresses one entry: a table name and a key inside that table
type Key struct {
	Table string
	Key   []byte
}

// Compare orders keys by table name first, then by bytes.Compare on the key.
// The durable stores order keys with bytes.Compare as well.
func Compare(a, b Key) int {
	if c := strings.Compare(a.Table, b.Table); c != 0 {
		return c
	}
	return bytes.Compare(a.Key, b.Key)
}

// entry is the value half of a node, swapped atomically on replacement
type entry struct {
	value Value
}

// size returns the approximate size of the entry in memory
func (e *entry) size() int64 {
	return int64(len(e.value.data)) + 16
}
