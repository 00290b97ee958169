// Package obs is the ambient metrics surface for the Incremental Loader
// and Search Executor: load/search duration histograms and
// add/update/delete/cache-hit/cache-miss counters.
package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the counters/histograms surface components report through.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// NoopMetrics discards everything; the default when no Metrics is supplied.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, map[string]string)                {}
func (NoopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// instrumentDescriptors documents the fixed set of counters/histograms the
// Incremental Loader and Search Executor report by name, so instruments
// created lazily on first use still carry a description and unit instead of
// an empty one.
var instrumentDescriptors = map[string]struct {
	description string
	unit        string
}{
	"load_duration_ms":   {"wall-clock duration of a single Load call", "ms"},
	"search_duration_ms": {"wall-clock duration of a single Search call", "ms"},
	"files_added":        {"files inserted into the chunk store for the first time", "{file}"},
	"files_updated":      {"files re-chunked because their content hash changed", "{file}"},
	"files_deleted":      {"files removed from the chunk store during cleanup", "{file}"},
	"query_cache_hit":    {"query-embedding cache hits", "{query}"},
	"query_cache_miss":   {"query-embedding cache misses", "{query}"},
	"result_cache_hit":   {"query-result cache hits", "{query}"},
	"result_cache_miss":  {"query-result cache misses", "{query}"},
}

// OtelMetrics is a thin adapter over OpenTelemetry metrics that satisfies
// Metrics, caching instruments by name since the SDK wants them created
// once per meter.
type OtelMetrics struct {
	meter metric.Meter
	mu    sync.RWMutex
	// cache instruments by name
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOtelMetrics constructs an OtelMetrics reporting through the named
// meter (e.g. "knowledgebase").
func NewOtelMetrics(meterName string) *OtelMetrics {
	return &OtelMetrics{
		meter:      otel.Meter(meterName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (o *OtelMetrics) IncCounter(name string, labels map[string]string) {
	if o == nil {
		return
	}
	c, ok := o.getCounter(name)
	if !ok {
		return
	}
	attrs := toAttrs(labels)
	c.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (o *OtelMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	if o == nil {
		return
	}
	h, ok := o.getHistogram(name)
	if !ok {
		return
	}
	attrs := toAttrs(labels)
	h.Record(context.Background(), value, metric.WithAttributes(attrs...))
}

func (o *OtelMetrics) getCounter(name string) (metric.Int64Counter, bool) {
	o.mu.RLock()
	c, ok := o.counters[name]
	o.mu.RUnlock()
	if ok {
		return c, true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok = o.counters[name]; ok {
		return c, true
	}
	opts := counterOptions(name)
	ctr, err := o.meter.Int64Counter(name, opts...)
	if err != nil {
		return ctr, false
	}
	o.counters[name] = ctr
	return ctr, true
}

func counterOptions(name string) []metric.Int64CounterOption {
	d, ok := instrumentDescriptors[name]
	if !ok {
		return nil
	}
	return []metric.Int64CounterOption{metric.WithDescription(d.description), metric.WithUnit(d.unit)}
}

func histogramOptions(name string) []metric.Float64HistogramOption {
	d, ok := instrumentDescriptors[name]
	if !ok {
		return nil
	}
	return []metric.Float64HistogramOption{metric.WithDescription(d.description), metric.WithUnit(d.unit)}
}

func (o *OtelMetrics) getHistogram(name string) (metric.Float64Histogram, bool) {
	o.mu.RLock()
	h, ok := o.histograms[name]
	o.mu.RUnlock()
	if ok {
		return h, true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if h, ok = o.histograms[name]; ok {
		return h, true
	}
	opts := histogramOptions(name)
	hist, err := o.meter.Float64Histogram(name, opts...)
	if err != nil {
		return hist, false
	}
	o.histograms[name] = hist
	return hist, true
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		out = append(out, attribute.String(k, v))
	}
	return out
}

// MockMetrics is an in-memory metrics sink for tests.
type MockMetrics struct {
	mu       sync.Mutex
	Counters map[string]int
	Hists    map[string][]float64
	Labels   map[string][]map[string]string
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		Counters: map[string]int{},
		Hists:    map[string][]float64{},
		Labels:   map[string][]map[string]string{},
	}
}

func (m *MockMetrics) IncCounter(name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters[name]++
	m.Labels[name] = append(m.Labels[name], clone(labels))
}

func (m *MockMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hists[name] = append(m.Hists[name], value)
	m.Labels[name] = append(m.Labels[name], clone(labels))
}

func clone(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
