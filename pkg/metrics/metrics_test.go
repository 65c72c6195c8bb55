package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.OperationsTotal == nil {
		t.Error("OperationsTotal not initialized")
	}
	if r.FlushesTotal == nil {
		t.Error("FlushesTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()
	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordOperation(t *testing.T) {
	r := NewRegistry()

	r.RecordOperation("put", "ok", 10*time.Millisecond)
	r.RecordOperation("put", "ok", 5*time.Millisecond)
	r.RecordOperation("put", "error", 1*time.Millisecond)

	okCounter, err := r.OperationsTotal.GetMetricWithLabelValues("put", "ok")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}

	var metric dto.Metric
	if err := okCounter.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("ok counter = %v, want 2", metric.Counter.GetValue())
	}

	errCounter, err := r.OperationsTotal.GetMetricWithLabelValues("put", "error")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	if err := errCounter.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("error counter = %v, want 1", metric.Counter.GetValue())
	}
}

func TestRecordFlush(t *testing.T) {
	r := NewRegistry()

	r.RecordFlush(2 * time.Millisecond)
	r.RecordFlush(3 * time.Millisecond)

	var metric dto.Metric
	if err := r.FlushesTotal.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("flush counter = %v, want 2", metric.Counter.GetValue())
	}
}

func TestRecordMerge_SetsLevelEntriesGauge(t *testing.T) {
	r := NewRegistry()

	r.RecordMerge(2, 7*time.Millisecond, 42)

	mergeCounter, err := r.MergesTotal.GetMetricWithLabelValues("2")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := mergeCounter.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("merge counter = %v, want 1", metric.Counter.GetValue())
	}

	gauge, err := r.LevelEntriesTotal.GetMetricWithLabelValues("2")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	if err := gauge.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() != 42 {
		t.Errorf("level entries gauge = %v, want 42", metric.Gauge.GetValue())
	}
}

func TestSetLevelEntries_OverridesWithoutAMerge(t *testing.T) {
	r := NewRegistry()

	r.SetLevelEntries(1, 9)

	gauge, err := r.LevelEntriesTotal.GetMetricWithLabelValues("1")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := gauge.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() != 9 {
		t.Errorf("level entries gauge = %v, want 9", metric.Gauge.GetValue())
	}
}

func TestCacheAndPageCounters(t *testing.T) {
	r := NewRegistry()

	r.RecordCacheHit()
	r.RecordCacheHit()
	r.RecordCacheMiss()
	r.RecordBloomNegative()
	r.RecordPageRead()
	r.RecordPageWrite()

	var metric dto.Metric
	if err := r.CacheHitsTotal.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("cache hits = %v, want 2", metric.Counter.GetValue())
	}

	if err := r.CacheMissesTotal.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("cache misses = %v, want 1", metric.Counter.GetValue())
	}

	if err := r.BloomNegativesTotal.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("bloom negatives = %v, want 1", metric.Counter.GetValue())
	}

	if err := r.PageReadsTotal.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("page reads = %v, want 1", metric.Counter.GetValue())
	}

	if err := r.PageWritesTotal.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("page writes = %v, want 1", metric.Counter.GetValue())
	}
}
