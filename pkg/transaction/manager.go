package transaction

import (
	"sync"
	"sync/atomic"

	"github.com/jankotek/titan/pkg/common/log"
	"github.com/jankotek/titan/pkg/store"
	"github.com/jankotek/titan/pkg/telemetry"
)

// Manager creates transactions against one store handle and owns the commit
// lock they share
type Manager struct {
	// Store handle every transaction reads through and commits to
	store store.Store

	// Serializes commit and rollback across transactions
	commitLock sync.Mutex

	opts   options
	logger log.Logger

	// Transaction counters
	txStarted    atomic.Uint64
	txCommitted  atomic.Uint64
	txRolledBack atomic.Uint64
	txFailed     atomic.Uint64
}

// NewManager creates a transaction manager for st
func NewManager(st store.Store, opts ...Option) *Manager {
	o := buildOptions(opts)
	return &Manager{
		store:  st,
		opts:   o,
		logger: o.logger.WithField("store", st.String()),
	}
}

// Begin starts a new transaction
func (m *Manager) Begin() *Tx {
	m.txStarted.Add(1)

	tx := newTx(m.store, &m.commitLock, m.opts)
	tx.onFinish = m.trackOutcome
	m.logger.Debug("Began transaction %s", tx.id)
	return tx
}

// Store returns the store handle the manager's transactions use
func (m *Manager) Store() store.Store {
	return m.store
}

func (m *Manager) trackOutcome(outcome string) {
	switch outcome {
	case telemetry.OutcomeCommitted:
		m.txCommitted.Add(1)
	case telemetry.OutcomeRolledBack:
		m.txRolledBack.Add(1)
	default:
		m.txFailed.Add(1)
	}
}

// GetTransactionStats returns transaction counters merged with the operation
// statistics of the manager's collector
func (m *Manager) GetTransactionStats() map[string]interface{} {
	stats := m.opts.stats.GetStats()

	started := m.txStarted.Load()
	committed := m.txCommitted.Load()
	rolledBack := m.txRolledBack.Load()
	failed := m.txFailed.Load()

	stats["tx_started"] = started
	stats["tx_committed"] = committed
	stats["tx_rolled_back"] = rolledBack
	stats["tx_failed"] = failed
	stats["tx_active"] = started - committed - rolledBack - failed

	return stats
}
