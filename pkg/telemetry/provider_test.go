// ABOUTME: Tests for the OpenTelemetry-backed provider using an in-process manual metric reader
// ABOUTME: Verifies counters and histograms reach the SDK and that instruments are reused

package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestProvider(t *testing.T) (*TelemetryProvider, *sdkmetric.ManualReader) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporters = nil

	reader := sdkmetric.NewManualReader()
	p, err := NewWithReader(cfg, reader)
	if err != nil {
		t.Fatalf("NewWithReader failed: %v", err)
	}
	t.Cleanup(func() {
		if err := p.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
	})
	return p, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestProviderRecordsCounter(t *testing.T) {
	p, reader := newTestProvider(t)
	ctx := context.Background()

	p.RecordCounter(ctx, "titan.test.count", 2, attribute.String(AttrOutcome, OutcomeCommitted))
	p.RecordCounter(ctx, "titan.test.count", 3, attribute.String(AttrOutcome, OutcomeCommitted))

	metrics := collect(t, reader)
	m, ok := metrics["titan.test.count"]
	if !ok {
		t.Fatalf("Expected counter titan.test.count, got %v", metrics)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("Expected Sum[int64], got %T", m.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 5 {
		t.Errorf("Expected a single data point with value 5, got %+v", sum.DataPoints)
	}
}

func TestProviderRecordsHistogram(t *testing.T) {
	p, reader := newTestProvider(t)
	ctx := context.Background()

	for _, v := range []float64{0.1, 0.2, 0.3} {
		p.RecordHistogram(ctx, "titan.test.duration", v)
	}

	metrics := collect(t, reader)
	m, ok := metrics["titan.test.duration"]
	if !ok {
		t.Fatalf("Expected histogram titan.test.duration, got %v", metrics)
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("Expected Histogram[float64], got %T", m.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 3 {
		t.Errorf("Expected 3 recorded values, got %+v", hist.DataPoints)
	}
}

func TestProviderCachesInstruments(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	p.RecordCounter(ctx, "titan.cached", 1)
	p.RecordCounter(ctx, "titan.cached", 1)
	p.RecordHistogram(ctx, "titan.cached.hist", 1)

	if len(p.counters) != 1 {
		t.Errorf("Expected 1 cached counter, got %d", len(p.counters))
	}
	if len(p.histograms) != 1 {
		t.Errorf("Expected 1 cached histogram, got %d", len(p.histograms))
	}
}

func TestProviderStartSpan(t *testing.T) {
	p, _ := newTestProvider(t)

	ctx, span := p.StartSpan(context.Background(), "titan.test.span", attribute.String(AttrTable, "t"))
	if ctx == nil || span == nil {
		t.Fatal("StartSpan returned nil")
	}
	if !span.SpanContext().IsValid() {
		t.Error("Expected a recording span with a valid context")
	}
	span.End()
}
