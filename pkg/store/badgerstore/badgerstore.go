// Package badgerstore implements store.Store on top of Badger.
//
// All tables share one Badger keyspace. A stored key is
//
//	0x01 | uvarint(len(table)) | table | key
//
// so tables never collide and each table is a contiguous prefix. Values are
// framed by the codec package. Reads run in read-only Badger transactions and
// see committed data only. Writes accumulate in a single update transaction
// that Commit hands to Badger.
package badgerstore

import (
	"encoding/binary"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jankotek/titan/pkg/common/iterator"
	"github.com/jankotek/titan/pkg/common/iterator/bounded"
	"github.com/jankotek/titan/pkg/common/log"
	"github.com/jankotek/titan/pkg/config"
	"github.com/jankotek/titan/pkg/store"
	"github.com/jankotek/titan/pkg/store/codec"
)

const keyspaceTables byte = 0x01

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used by the store and by Badger itself
func WithLogger(logger log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is a Badger-backed store.Store
type Store struct {
	db     *badger.DB
	codec  *codec.Codec
	logger log.Logger
	name   string

	mu     sync.Mutex
	txn    *badger.Txn
	closed bool
}

// Open opens (or creates) the database described by cfg
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		name:   "badger-" + uuid.NewString(),
		logger: log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("store", s.name)

	c, err := codec.New(cfg.CompressionCodec(), cfg.Checksums)
	if err != nil {
		return nil, err
	}
	s.codec = c

	dir := cfg.DataDir
	if cfg.InMemory {
		dir = ""
	}
	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithMemTableSize(cfg.MemTableSize).
		WithValueThreshold(cfg.ValueThreshold).
		WithBlockCacheSize(cfg.BlockCacheSize).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: s.logger})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		c.Close()
		return nil, errors.Wrapf(err, "open badger at %q", dir)
	}
	s.db = db

	s.logger.Info("Opened store (in_memory=%v, compression=%s, checksums=%v)",
		cfg.InMemory, c.Compression(), cfg.Checksums)
	return s, nil
}

// Table returns the table with the given name
func (s *Store) Table(name string) store.Table {
	return &table{store: s, prefix: tablePrefix(name)}
}

// Commit hands the staged writes to Badger. A Badger conflict is reported as
// store.ErrConflict. The staged writes are gone afterwards whatever the outcome.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if s.txn == nil {
		return nil
	}

	txn := s.txn
	s.txn = nil
	if err := txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return errors.Wrapf(store.ErrConflict, "commit %s", s.name)
		}
		return errors.Wrapf(err, "commit %s", s.name)
	}
	return nil
}

// Rollback discards the staged writes
func (s *Store) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if s.txn != nil {
		s.txn.Discard()
		s.txn = nil
	}
	return nil
}

// Close discards staged writes and closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.txn != nil {
		s.txn.Discard()
		s.txn = nil
	}
	s.codec.Close()
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "close badger")
	}
	s.logger.Info("Closed store")
	return nil
}

// String identifies the store instance
func (s *Store) String() string {
	return s.name
}

// stage runs fn against the pending update transaction, opening it on first use
func (s *Store) stage(fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if s.txn == nil {
		s.txn = s.db.NewTransaction(true)
	}
	return fn(s.txn)
}

// view runs fn in a read-only transaction over committed data
func (s *Store) view(fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return store.ErrClosed
	}
	return s.db.View(fn)
}

// table is a prefix view over the shared keyspace
type table struct {
	store  *Store
	prefix []byte
}

func tablePrefix(name string) []byte {
	prefix := make([]byte, 0, 1+binary.MaxVarintLen64+len(name))
	prefix = append(prefix, keyspaceTables)
	prefix = binary.AppendUvarint(prefix, uint64(len(name)))
	return append(prefix, name...)
}

func (t *table) encodeKey(key []byte) []byte {
	out := make([]byte, len(t.prefix)+len(key))
	copy(out, t.prefix)
	copy(out[len(t.prefix):], key)
	return out
}

// Get retrieves the committed value for key
func (t *table) Get(key []byte) ([]byte, error) {
	var value []byte
	err := t.store.view(func(txn *badger.Txn) error {
		item, err := txn.Get(t.encodeKey(key))
		if err != nil {
			return err
		}
		frame, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value, err = t.store.codec.Decode(frame)
		return err
	})
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, store.ErrKeyNotFound
	case errors.Is(err, store.ErrClosed):
		return nil, err
	default:
		return nil, errors.Wrapf(err, "get %q", key)
	}
}

// ContainsKey reports whether key holds a committed value
func (t *table) ContainsKey(key []byte) (bool, error) {
	err := t.store.view(func(txn *badger.Txn) error {
		_, err := txn.Get(t.encodeKey(key))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case errors.Is(err, store.ErrClosed):
		return false, err
	default:
		return false, errors.Wrapf(err, "lookup %q", key)
	}
}

// Put stages key -> value
func (t *table) Put(key, value []byte) error {
	encoded := t.encodeKey(key)
	frame := t.store.codec.Encode(value)
	return t.store.stage(func(txn *badger.Txn) error {
		if err := txn.Set(encoded, frame); err != nil {
			return errors.Wrapf(err, "put %q", key)
		}
		return nil
	})
}

// Remove stages the removal of key
func (t *table) Remove(key []byte) error {
	encoded := t.encodeKey(key)
	return t.store.stage(func(txn *badger.Txn) error {
		if err := txn.Delete(encoded); err != nil {
			return errors.Wrapf(err, "remove %q", key)
		}
		return nil
	})
}

// Range returns a lazy iterator over the committed entries in [start, end).
// A nil end runs to the end of the table.
func (t *table) Range(start, end []byte) (iterator.Iterator, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.closed {
		return nil, store.ErrClosed
	}

	txn := t.store.db.NewTransaction(false)
	adapter := &iteratorAdapter{
		txn:    txn,
		it:     txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 64, Prefix: t.prefix}),
		prefix: t.prefix,
		codec:  t.store.codec,
	}

	it := bounded.NewBoundedIterator(adapter, start, end)
	it.SeekToFirst()
	return it, nil
}

// iteratorAdapter adapts a Badger iterator over one table prefix to the
// common Iterator interface. Keys are returned without the prefix.
type iteratorAdapter struct {
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte
	codec  *codec.Codec

	key    []byte
	value  []byte
	err    error
	closed bool
}

func (a *iteratorAdapter) SeekToFirst() {
	if a.closed {
		return
	}
	a.it.Seek(a.prefix)
	a.load()
}

func (a *iteratorAdapter) Seek(target []byte) bool {
	if a.closed {
		return false
	}
	seekKey := make([]byte, 0, len(a.prefix)+len(target))
	seekKey = append(seekKey, a.prefix...)
	a.it.Seek(append(seekKey, target...))
	a.load()
	return a.Valid()
}

func (a *iteratorAdapter) Next() bool {
	if !a.Valid() {
		return false
	}
	a.it.Next()
	a.load()
	return a.Valid()
}

func (a *iteratorAdapter) Key() []byte {
	return a.key
}

func (a *iteratorAdapter) Value() []byte {
	return a.value
}

func (a *iteratorAdapter) Valid() bool {
	return a.key != nil
}

func (a *iteratorAdapter) Err() error {
	return a.err
}

func (a *iteratorAdapter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.key, a.value = nil, nil
	a.it.Close()
	a.txn.Discard()
	return nil
}

// load reads the entry under the Badger cursor. A decode failure ends iteration
// and is kept for Err.
func (a *iteratorAdapter) load() {
	a.key, a.value = nil, nil
	if a.err != nil || !a.it.ValidForPrefix(a.prefix) {
		return
	}

	item := a.it.Item()
	frame, err := item.ValueCopy(nil)
	if err != nil {
		a.err = errors.Wrap(err, "read value")
		return
	}
	value, err := a.codec.Decode(frame)
	if err != nil {
		a.err = errors.Wrapf(err, "decode value of %q", item.Key()[len(a.prefix):])
		return
	}

	a.key = item.KeyCopy(nil)[len(a.prefix):]
	a.value = value
}

// badgerLogger routes Badger's own logging into a titan logger
type badgerLogger struct {
	logger log.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(trimFormat(format), args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(trimFormat(format), args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(trimFormat(format), args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(trimFormat(format), args...)
}

func trimFormat(format string) string {
	return "badger: " + strings.TrimRight(format, "\n")
}

var _ store.Store = (*Store)(nil)
