package iterator

// Iterator defines the interface for iterating over key-value pairs in key
// order. The durable stores hand these out for range reads.
type Iterator interface {
	// SeekToFirst positions the iterator at the first key
	SeekToFirst()

	// Seek positions the iterator at the first key >= target
	Seek(target []byte) bool

	// Next advances the iterator to the next key
	Next() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() []byte

	// Valid returns true if the iterator is positioned at a valid entry
	Valid() bool

	// Err returns the error that stopped iteration early, if any
	Err() error

	// Close releases resources held by the iterator. It is safe to call more than once.
	Close() error
}
