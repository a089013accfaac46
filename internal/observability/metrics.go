package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Metrics — a small counter/gauge registry exported as JSON on /metrics.
// ---------------------------------------------------------------------------

// MetricType identifies the kind of metric.
type MetricType string

const (
	MetricCounter MetricType = "counter"
	MetricGauge   MetricType = "gauge"
)

// MetricEntry is one exported metric value.
type MetricEntry struct {
	Name      string     `json:"name"`
	Type      MetricType `json:"type"`
	Help      string     `json:"help"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"ts"`
}

// Counter is a lock-free monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by delta. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta < 0 {
		return
	}
	c.value.Add(delta)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

func (c *Counter) entry() MetricEntry {
	return MetricEntry{
		Name:      c.name,
		Type:      MetricCounter,
		Help:      c.help,
		Value:     float64(c.Value()),
		Timestamp: time.Now(),
	}
}

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Set sets the gauge.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func (g *Gauge) entry() MetricEntry {
	return MetricEntry{
		Name:      g.name,
		Type:      MetricGauge,
		Help:      g.help,
		Value:     g.Value(),
		Timestamp: time.Now(),
	}
}

// Registry manages all metrics. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
	}
}

// NewCounter registers and returns a counter. Re-registering a name returns
// the existing counter.
func (r *Registry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge registers and returns a gauge. Re-registering a name returns the
// existing gauge.
func (r *Registry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.gauges[name]; ok {
		return existing
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// GetCounter returns a registered counter or nil.
func (r *Registry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// GetGauge returns a registered gauge or nil.
func (r *Registry) GetGauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

// AllMetrics returns every registered metric, sorted by name for stable
// export output.
func (r *Registry) AllMetrics() []MetricEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]MetricEntry, 0, len(r.counters)+len(r.gauges))
	for _, name := range sortedKeys(r.counters) {
		entries = append(entries, r.counters[name].entry())
	}
	for _, name := range sortedKeys(r.gauges) {
		entries = append(entries, r.gauges[name].entry())
	}
	return entries
}

// PulseMetrics builds the service's standard metric set.
func PulseMetrics() *Registry {
	r := NewRegistry()

	r.NewCounter("pulse_runs_total", "Total pulse runs started")
	r.NewCounter("pulse_model_calls_total", "Total sentiment model calls attempted")
	r.NewCounter("pulse_tokens_success_total", "Tokens with a persisted snapshot")
	r.NewCounter("pulse_tokens_failed_total", "Tokens whose model call failed")
	r.NewCounter("pulse_tokens_skipped_total", "Tokens skipped by a call ceiling")
	r.NewCounter("pulse_delta_events_total", "Delta events pushed")
	r.NewCounter("pulse_fallback_total", "Keyword fallback invocations on the interactive path")
	r.NewCounter("pulse_http_requests_total", "HTTP requests served")

	r.NewGauge("pulse_universe_size", "Tokens in the last built universe")
	r.NewGauge("pulse_last_run_unix", "Unix timestamp of the last run start")
	r.NewGauge("pulse_live_clients", "Connected websocket clients")

	return r
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
