package transaction

import "bytes"

// NoLimit disables the limit of a selector built by NewKeySelector
const NoLimit = -1

// KeySelector decides which keys a range scan returns and when it stops.
// Include may be called many times during a scan. ReachedLimit may depend on
// state that Include updates.
type KeySelector interface {
	// Include reports whether key belongs in the result
	Include(key []byte) bool

	// ReachedLimit reports whether the scan should stop
	ReachedLimit() bool
}

// KeyFilter is a predicate over keys. A nil filter accepts every key.
type KeyFilter func(key []byte) bool

// CountingSelector accepts keys passing its filter and stops the scan after
// limit of them.
type CountingSelector struct {
	filter KeyFilter
	limit  int
	count  int
}

// NewKeySelector creates a selector that includes keys accepted by filter
// until limit keys have been included. Use NoLimit for an unbounded scan.
func NewKeySelector(filter KeyFilter, limit int) *CountingSelector {
	return &CountingSelector{filter: filter, limit: limit}
}

// SelectAll includes every key
func SelectAll() *CountingSelector {
	return NewKeySelector(nil, NoLimit)
}

// Limit includes the first n keys
func Limit(n int) *CountingSelector {
	return NewKeySelector(nil, n)
}

// PrefixFilter accepts keys starting with prefix
func PrefixFilter(prefix []byte) KeyFilter {
	p := append([]byte(nil), prefix...)
	return func(key []byte) bool {
		return bytes.HasPrefix(key, p)
	}
}

// Include reports whether key passes the filter and counts it if so
func (s *CountingSelector) Include(key []byte) bool {
	if s.filter != nil && !s.filter(key) {
		return false
	}
	s.count++
	return true
}

// ReachedLimit reports whether limit keys have been included
func (s *CountingSelector) ReachedLimit() bool {
	return s.limit != NoLimit && s.count >= s.limit
}

// Count returns the number of keys included so far
func (s *CountingSelector) Count() int {
	return s.count
}
