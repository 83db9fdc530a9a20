package transaction

import (
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jankotek/titan/pkg/backend"
	"github.com/jankotek/titan/pkg/overlay"
	"github.com/jankotek/titan/pkg/stats"
)

// KeyValueEntry is one entry returned by GetSlice
type KeyValueEntry struct {
	Key   []byte
	Value []byte
}

// GetSlice returns the live entries of table with keyStart <= key < keyEnd, in
// key order, that sel includes. Uncommitted writes of this transaction shadow
// committed values and deleted keys are left out. The scan ends as soon as sel
// reports its limit reached.
func (tx *Tx) GetSlice(table string, sel KeySelector, keyStart, keyEnd []byte) ([]KeyValueEntry, error) {
	start := time.Now()

	tx.mu.RLock()
	defer tx.mu.RUnlock()

	if tx.state != StateActive {
		return nil, closedError()
	}

	if bytes.Compare(keyStart, keyEnd) >= 0 {
		return nil, nil
	}

	it, err := tx.handle.Table(table).Range(keyStart, keyEnd)
	if err != nil {
		return nil, backend.Permanent(errors.Wrapf(err, "range %s", table))
	}
	defer it.Close()

	m := &sliceMerger{overlay: tx.overlay, table: table, sel: sel}

	// Overlay gaps start at keyStart, then just after each durable key
	prev, afterPrev := keyStart, false
	limited := false
	for ; it.Valid(); it.Next() {
		if sel.ReachedLimit() {
			limited = true
			break
		}

		found := it.Key()
		if m.emitOverlay(prev, afterPrev, found) {
			limited = true
			break
		}
		prev, afterPrev = found, true

		value := it.Value()
		if v, ok := tx.overlay.Get(table, found); ok {
			if v.IsTombstone() {
				continue
			}
			value = v.Bytes()
		}
		if m.emit(found, value) {
			limited = true
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, backend.Permanent(errors.Wrapf(err, "range %s", table))
	}

	if !limited {
		limited = m.emitOverlay(prev, afterPrev, keyEnd)
	}

	tx.metrics.RecordScan(context.Background(), table, len(m.result), limited)
	tx.stats.TrackOperationWithLatency(stats.OpScan, uint64(time.Since(start)))
	tx.stats.TrackBytes(false, m.size)
	return m.result, nil
}

// sliceMerger collects GetSlice output
type sliceMerger struct {
	overlay *overlay.Overlay
	table   string
	sel     KeySelector
	result  []KeyValueEntry
	size    uint64
}

// emit appends a copy of the entry if the selector includes it. It returns
// true once the selector's limit is reached.
func (m *sliceMerger) emit(key, value []byte) bool {
	if m.sel.Include(key) {
		m.result = append(m.result, KeyValueEntry{Key: copyBytes(key), Value: copyBytes(value)})
		m.size += uint64(len(key) + len(value))
	}
	return m.sel.ReachedLimit()
}

// emitOverlay emits the live overlay entries of the table in [from, to), or
// in (from, to) when exclusive is set. It returns true if it stopped on the
// selector's limit.
func (m *sliceMerger) emitOverlay(from []byte, exclusive bool, to []byte) bool {
	for it := m.overlay.Range(m.table, from, to); it.Valid(); it.Next() {
		if exclusive && bytes.Equal(it.Key().Key, from) {
			continue
		}
		if m.sel.ReachedLimit() {
			return true
		}
		if it.IsTombstone() {
			continue
		}
		if m.emit(it.Key().Key, it.Value().Bytes()) {
			return true
		}
	}
	return false
}
