// ABOUTME: This file defines the telemetry metrics interface for transaction operations
// ABOUTME: including lifecycle outcomes, overlay size, point operations, and range scans

package transaction

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jankotek/titan/pkg/telemetry"
)

// TransactionMetrics interface defines telemetry methods for transaction operations
type TransactionMetrics interface {
	// RecordTransactionStart records the start of a transaction
	RecordTransactionStart(ctx context.Context)

	// RecordTransactionEnd records how a transaction finished, how long it
	// lived, and the size of its overlay at that point
	RecordTransactionEnd(ctx context.Context, outcome string, duration time.Duration, entries int, sizeBytes int64)

	// RecordOperation records an individual point operation
	RecordOperation(ctx context.Context, operation string, duration time.Duration, success bool)

	// RecordScan records the result of a range scan
	RecordScan(ctx context.Context, table string, returned int, limited bool)

	// StartCommitSpan starts a span around applying a transaction to the store
	StartCommitSpan(ctx context.Context, txID string, entries int) (context.Context, trace.Span)

	// Close cleans up any resources used by the metrics
	Close() error
}

// transactionMetrics implements TransactionMetrics using the telemetry package
type transactionMetrics struct {
	tel telemetry.Telemetry
}

// NewTransactionMetrics creates a new TransactionMetrics implementation
func NewTransactionMetrics(tel telemetry.Telemetry) TransactionMetrics {
	return &transactionMetrics{
		tel: tel,
	}
}

// NewNoopTransactionMetrics creates a no-op TransactionMetrics for testing/disabled scenarios
func NewNoopTransactionMetrics() TransactionMetrics {
	return &noopTransactionMetrics{}
}

var componentAttr = attribute.String(telemetry.AttrComponent, telemetry.ComponentTransaction)

// RecordTransactionStart records the start of a transaction
func (m *transactionMetrics) RecordTransactionStart(ctx context.Context) {
	m.tel.RecordCounter(ctx, "titan.transaction.start.count", 1, componentAttr)
}

// RecordTransactionEnd records how a transaction finished
func (m *transactionMetrics) RecordTransactionEnd(ctx context.Context, outcome string, duration time.Duration, entries int, sizeBytes int64) {
	outcomeAttr := attribute.String(telemetry.AttrOutcome, outcome)

	m.tel.RecordCounter(ctx, "titan.transaction.end.count", 1, componentAttr, outcomeAttr)
	m.tel.RecordHistogram(ctx, "titan.transaction.duration", duration.Seconds(), componentAttr, outcomeAttr)
	m.tel.RecordHistogram(ctx, "titan.transaction.overlay.entries", float64(entries), componentAttr, outcomeAttr)
	m.tel.RecordHistogram(ctx, "titan.transaction.overlay.size.bytes", float64(sizeBytes), componentAttr, outcomeAttr)
}

// RecordOperation records an individual point operation
func (m *transactionMetrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		componentAttr,
		attribute.String(telemetry.AttrOperationType, operation),
		attribute.String("success", strconv.FormatBool(success)),
	}

	m.tel.RecordHistogram(ctx, "titan.transaction.operation.duration", duration.Seconds(), attrs...)
	m.tel.RecordCounter(ctx, "titan.transaction.operation.count", 1, attrs...)
}

// RecordScan records the result of a range scan
func (m *transactionMetrics) RecordScan(ctx context.Context, table string, returned int, limited bool) {
	m.tel.RecordHistogram(ctx, "titan.transaction.scan.entries", float64(returned),
		componentAttr,
		attribute.String(telemetry.AttrTable, table),
		attribute.String("limited", strconv.FormatBool(limited)),
	)
}

// StartCommitSpan starts a span around applying a transaction to the store
func (m *transactionMetrics) StartCommitSpan(ctx context.Context, txID string, entries int) (context.Context, trace.Span) {
	return m.tel.StartSpan(ctx, "titan.transaction.commit",
		componentAttr,
		attribute.String(telemetry.AttrTxID, txID),
		attribute.Int("entries", entries),
	)
}

// Close cleans up any resources used by the metrics
func (m *transactionMetrics) Close() error {
	return nil
}

// noopTransactionMetrics provides a no-op implementation for testing/disabled scenarios
type noopTransactionMetrics struct{}

func (n *noopTransactionMetrics) RecordTransactionStart(ctx context.Context) {}
func (n *noopTransactionMetrics) RecordTransactionEnd(ctx context.Context, outcome string, duration time.Duration, entries int, sizeBytes int64) {
}
func (n *noopTransactionMetrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, success bool) {
}
func (n *noopTransactionMetrics) RecordScan(ctx context.Context, table string, returned int, limited bool) {
}
func (n *noopTransactionMetrics) StartCommitSpan(ctx context.Context, txID string, entries int) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}
func (n *noopTransactionMetrics) Close() error { return nil }
