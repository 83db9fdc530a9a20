package transaction

import "errors"

// Common errors for transaction operations
var (
	// ErrTransactionClosed is returned when an operation is attempted on a committed or rolled back transaction
	ErrTransactionClosed = errors.New("transaction already committed or rolled back")

	// ErrKeyExists is returned by a no-overwrite insert when the key is already present
	ErrKeyExists = errors.New("key already exists")
)
