package overlay

import "bytes"

// Iterator provides ordered access to overlay entries. An iterator returned
// by Range stays inside one table and below the range end.
type Iterator struct {
	list    *Overlay
	current *node

	scoped bool
	table  string
	start  []byte
	end    []byte
}

// NewIterator returns an iterator over every entry of every table
func (o *Overlay) NewIterator() *Iterator {
	return &Iterator{list: o, current: o.head}
}

// Range returns an iterator over the entries of table with start <= key < end,
// positioned at the first of them. A nil end runs to the end of the table.
func (o *Overlay) Range(table string, start, end []byte) *Iterator {
	it := &Iterator{
		list:   o,
		scoped: true,
		table:  table,
		start:  start,
		end:    end,
	}
	it.SeekToFirst()
	return it
}

// Valid returns true if the iterator is positioned at an entry inside its bounds
func (it *Iterator) Valid() bool {
	if it.current == nil || it.current == it.list.head {
		return false
	}
	if !it.scoped {
		return true
	}
	if it.current.key.Table != it.table {
		return false
	}
	return it.end == nil || bytes.Compare(it.current.key.Key, it.end) < 0
}

// SeekToFirst positions the iterator at the first entry in its bounds
func (it *Iterator) SeekToFirst() {
	if it.scoped {
		it.Seek(Key{Table: it.table, Key: it.start})
		return
	}
	it.current = it.list.head.next[0].Load()
}

// Seek positions the iterator at the first entry with a key >= target
func (it *Iterator) Seek(target Key) {
	it.current = it.list.findGreaterOrEqual(target, nil)
}

// Next advances the iterator. It returns false once the iterator leaves its bounds.
func (it *Iterator) Next() bool {
	if it.current == nil {
		return false
	}
	it.current = it.current.next[0].Load()
	return it.Valid()
}

// Key returns the key of the current entry. The returned slice must not be modified.
func (it *Iterator) Key() Key {
	if !it.Valid() {
		return Key{}
	}
	return it.current.key
}

// Value returns the value of the current entry
func (it *Iterator) Value() Value {
	if !it.Valid() {
		return Value{}
	}
	return it.current.entry.Load().value
}

// IsTombstone returns true if the current entry is a deletion marker
func (it *Iterator) IsTombstone() bool {
	return it.Valid() && it.current.entry.Load().value.IsTombstone()
}
