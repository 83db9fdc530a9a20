package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/codes"

	"github.com/jankotek/titan/pkg/backend"
	"github.com/jankotek/titan/pkg/common/log"
	"github.com/jankotek/titan/pkg/overlay"
	"github.com/jankotek/titan/pkg/stats"
	"github.com/jankotek/titan/pkg/store"
	"github.com/jankotek/titan/pkg/telemetry"
)

const nullTx = "nulltx"

// Option configures transactions and the manager that creates them
type Option func(*options)

type options struct {
	logger  log.Logger
	metrics TransactionMetrics
	stats   stats.Collector
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics TransactionMetrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithStats sets the collector that counts operations and their latency
func WithStats(collector stats.Collector) Option {
	return func(o *options) {
		o.stats = collector
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  log.GetDefaultLogger(),
		metrics: NewNoopTransactionMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.stats == nil {
		o.stats = stats.NewAtomicCollector()
	}
	return o
}

// Tx buffers inserts and deletes in an overlay and applies them to its store
// handle on Commit. Point reads and range scans merge the overlay over the
// committed data. Tx is safe for concurrent use.
type Tx struct {
	id        uuid.UUID
	startTime time.Time

	overlay *overlay.Overlay
	handle  store.Store
	lock    *sync.Mutex
	state   State

	logger  log.Logger
	metrics TransactionMetrics
	stats   stats.Collector

	// onFinish is called once with the final outcome, under the commit lock
	onFinish func(outcome string)

	// mu guards handle and state
	mu sync.RWMutex
}

// NewTransaction starts a transaction against st. lock serializes commit and
// rollback with every other transaction sharing st, so callers must pass the
// same mutex for all of them.
func NewTransaction(st store.Store, lock *sync.Mutex, opts ...Option) *Tx {
	return newTx(st, lock, buildOptions(opts))
}

func newTx(st store.Store, lock *sync.Mutex, o options) *Tx {
	id := uuid.New()
	tx := &Tx{
		id:        id,
		startTime: time.Now(),
		overlay:   overlay.New(),
		handle:    st,
		lock:      lock,
		state:     StateActive,
		logger:    o.logger.WithField("tx_id", id.String()),
		metrics:   o.metrics,
		stats:     o.stats,
	}
	tx.metrics.RecordTransactionStart(context.Background())
	tx.stats.TrackOperation(stats.OpTxBegin)
	return tx
}

// ID returns the transaction's unique id
func (tx *Tx) ID() uuid.UUID {
	return tx.id
}

// State returns the current lifecycle state
func (tx *Tx) State() State {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return tx.state
}

// String returns "Tx" followed by the store handle identity, or "Txnulltx"
// once the transaction has finished
func (tx *Tx) String() string {
	tx.mu.RLock()
	defer tx.mu.RUnlock()

	if tx.handle == nil {
		return "Tx" + nullTx
	}
	return "Tx" + tx.handle.String()
}

func closedError() error {
	return backend.Permanent(ErrTransactionClosed)
}

// Get returns the value for key in table. The transaction's own writes take
// precedence over committed data, and a deleted key reports store.ErrKeyNotFound.
func (tx *Tx) Get(table string, key []byte) (value []byte, err error) {
	start := time.Now()
	defer func() {
		tx.observe(telemetry.OpTypeGet, start, err == nil || errors.Is(err, store.ErrKeyNotFound))
		tx.stats.TrackBytes(false, uint64(len(value)))
	}()

	tx.mu.RLock()
	defer tx.mu.RUnlock()

	if tx.state != StateActive {
		return nil, closedError()
	}

	if v, ok := tx.overlay.Get(table, key); ok {
		if v.IsTombstone() {
			return nil, store.ErrKeyNotFound
		}
		return copyBytes(v.Bytes()), nil
	}

	value, err = tx.handle.Table(table).Get(key)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, store.ErrKeyNotFound
		}
		return nil, backend.Permanent(errors.Wrapf(err, "get %s/%q", table, key))
	}
	return value, nil
}

// Insert records key -> value in the overlay.
//
// Without allowOverwrite the key must be absent: committed data is checked
// first, then the overlay, and either hit fails with ErrKeyExists. Another
// transaction's uncommitted insert of the same key is not visible here, so two
// such inserts only collide when the second one commits.
func (tx *Tx) Insert(table string, key, value []byte, allowOverwrite bool) (err error) {
	start := time.Now()
	defer func() {
		tx.observe(telemetry.OpTypeInsert, start, err == nil)
		if err == nil {
			tx.stats.TrackBytes(true, uint64(len(key)+len(value)))
		}
	}()

	tx.mu.RLock()
	defer tx.mu.RUnlock()

	if tx.state != StateActive {
		return closedError()
	}

	if !allowOverwrite {
		exists, err := tx.handle.Table(table).ContainsKey(key)
		if err != nil {
			return backend.Permanent(errors.Wrapf(err, "lookup %s/%q", table, key))
		}
		if !exists {
			if v, ok := tx.overlay.Get(table, key); ok && !v.IsTombstone() {
				exists = true
			}
		}
		if exists {
			return backend.Permanentf("insert %s/%q: %w", table, key, ErrKeyExists)
		}
	}

	tx.overlay.Put(table, key, value)
	return nil
}

// Delete records a tombstone for key, whether or not the key exists
func (tx *Tx) Delete(table string, key []byte) (err error) {
	start := time.Now()
	defer func() {
		tx.observe(telemetry.OpTypeDelete, start, err == nil)
	}()

	tx.mu.RLock()
	defer tx.mu.RUnlock()

	if tx.state != StateActive {
		return closedError()
	}

	tx.overlay.Delete(table, key)
	return nil
}

// Commit applies the overlay to the store and commits the store. Calling it on
// a finished transaction does nothing.
//
// The transaction is finished afterwards even when Commit fails, so a failed
// commit cannot be retried on the same Tx. A store conflict is returned as a
// backend.Temporary error. Everything else is backend.Permanent.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != StateActive {
		return nil
	}

	tx.lock.Lock()
	defer tx.lock.Unlock()

	entries := tx.overlay.Len()
	size := tx.overlay.ApproximateSize()

	ctx, span := tx.metrics.StartCommitSpan(context.Background(), tx.id.String(), entries)
	defer span.End()

	err := tx.apply()
	if discardErr := tx.discard(); discardErr != nil && err == nil {
		err = discardErr
	}
	tx.handle = nil
	tx.state = StateCommitted

	outcome := telemetry.OutcomeCommitted
	if err != nil {
		outcome = telemetry.OutcomeFailed
		if errors.Is(err, store.ErrConflict) {
			err = backend.Temporary(err)
		} else {
			err = backend.Permanent(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	tx.finished(ctx, outcome, entries, size, err)
	return err
}

// apply writes every overlay entry to the store and commits it. If a write
// fails the store's staged writes are rolled back.
func (tx *Tx) apply() error {
	tables := make(map[string]store.Table)

	it := tx.overlay.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		key := it.Key()

		tbl, ok := tables[key.Table]
		if !ok {
			tbl = tx.handle.Table(key.Table)
			tables[key.Table] = tbl
		}

		var err error
		if it.IsTombstone() {
			err = tbl.Remove(key.Key)
		} else {
			err = tbl.Put(key.Key, it.Value().Bytes())
		}
		if err != nil {
			if rbErr := tx.handle.Rollback(); rbErr != nil {
				tx.logger.Warn("Failed to roll back staged writes: %v", rbErr)
			}
			return errors.Wrapf(err, "apply %s/%q", key.Table, key.Key)
		}
	}

	if err := tx.handle.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", tx.handle)
	}
	return nil
}

// Rollback discards the overlay without touching the store. Calling it on a
// finished transaction does nothing.
func (tx *Tx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != StateActive {
		return nil
	}

	tx.lock.Lock()
	defer tx.lock.Unlock()

	entries := tx.overlay.Len()
	size := tx.overlay.ApproximateSize()

	err := tx.discard()
	tx.handle = nil
	tx.state = StateRolledBack

	outcome := telemetry.OutcomeRolledBack
	if err != nil {
		outcome = telemetry.OutcomeFailed
		err = backend.Permanent(err)
	}

	tx.finished(context.Background(), outcome, entries, size, err)
	return err
}

// discard empties the overlay, turning a panic into an error
func (tx *Tx) discard() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("discard overlay: %v", r)
		}
	}()
	tx.overlay.Clear()
	return nil
}

// observe records a point operation in both the metrics and the stats collector
func (tx *Tx) observe(op string, start time.Time, success bool) {
	elapsed := time.Since(start)
	tx.metrics.RecordOperation(context.Background(), op, elapsed, success)
	tx.stats.TrackOperationWithLatency(stats.OperationType(op), uint64(elapsed))
	if !success {
		tx.stats.TrackError(op + "_failed")
	}
}

func (tx *Tx) finished(ctx context.Context, outcome string, entries int, size int64, err error) {
	tx.metrics.RecordTransactionEnd(ctx, outcome, time.Since(tx.startTime), entries, size)

	if tx.state == StateRolledBack {
		tx.stats.TrackOperation(stats.OpTxRollback)
	} else {
		tx.stats.TrackOperation(stats.OpTxCommit)
	}
	switch {
	case backend.IsTemporary(err):
		tx.stats.TrackError(telemetry.ErrorTemporary)
	case err != nil:
		tx.stats.TrackError(telemetry.ErrorPermanent)
	}

	logger := tx.logger.WithFields(map[string]interface{}{
		"outcome": outcome,
		"entries": entries,
	})
	if err != nil {
		logger.Debug("Transaction finished with error: %v", err)
	} else {
		logger.Debug("Transaction finished")
	}

	if tx.onFinish != nil {
		tx.onFinish(outcome)
	}
}

var _ Transaction = (*Tx)(nil)

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
