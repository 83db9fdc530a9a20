package transaction

// State is the lifecycle position of a transaction. A transaction starts
// active and moves exactly once to committed or rolled back.
type State int

const (
	// StateActive transactions accept reads and writes
	StateActive State = iota

	// StateCommitted transactions have finished through Commit, successfully or not
	StateCommitted

	// StateRolledBack transactions have finished through Rollback
	StateRolledBack
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Transaction buffers writes against a store until it commits. Reads see the
// transaction's own writes layered over the committed store.
type Transaction interface {
	// Get retrieves the value for key in table, or store.ErrKeyNotFound
	Get(table string, key []byte) ([]byte, error)

	// GetSlice returns the live entries of table in [keyStart, keyEnd) that sel accepts
	GetSlice(table string, sel KeySelector, keyStart, keyEnd []byte) ([]KeyValueEntry, error)

	// Insert records key -> value. Without allowOverwrite it fails with
	// ErrKeyExists when the key is already present.
	Insert(table string, key, value []byte, allowOverwrite bool) error

	// Delete records the removal of key. Deleting a missing key is not an error.
	Delete(table string, key []byte) error

	// Commit applies the buffered writes to the store
	Commit() error

	// Rollback discards the buffered writes
	Rollback() error

	// String identifies the transaction by its store handle
	String() string
}
