// Package observability provides in-process metrics for DeskClaw servers and
// exposes them in the Prometheus text exposition format.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freitascorp/deskclaw/pkg/mcp"
)

// ------------------------------------------------------------------
// Metrics
// ------------------------------------------------------------------

// MetricType classifies a metric.
type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
)

// Labels qualifies a series within a metric family.
type Labels map[string]string

func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, l[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// family groups the series sharing a name.
type family struct {
	name   string
	desc   string
	kind   MetricType
	series map[string]any // label string -> *Counter | *Gauge | *Histogram
}

// MetricsRegistry collects and exposes application metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	families map[string]*family
	hooks    []func()
}

// NewMetricsRegistry creates a metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{families: make(map[string]*family)}
}

// Counter is a monotonically increasing metric.
type Counter struct {
	value atomic.Int64
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	value atomic.Int64
}

// Histogram tracks value distributions with pre-defined buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

// get returns the series of name+labels, creating it with mk on first use.
// It panics when name was registered with a different type.
func (r *MetricsRegistry) get(name, desc string, kind MetricType, labels Labels, mk func() any) any {
	key := labels.String()
	r.mu.RLock()
	if f, ok := r.families[name]; ok && f.kind == kind {
		if m, ok := f.series[key]; ok {
			r.mu.RUnlock()
			return m
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[name]
	if !ok {
		f = &family{name: name, desc: desc, kind: kind, series: make(map[string]any)}
		r.families[name] = f
	}
	if f.kind != kind {
		panic(fmt.Sprintf("metric %s already registered as %s", name, f.kind))
	}
	m, ok := f.series[key]
	if !ok {
		m = mk()
		f.series[key] = m
	}
	return m
}

// GetCounter returns (or creates) a counter series.
func (r *MetricsRegistry) GetCounter(name, description string, labels Labels) *Counter {
	return r.get(name, description, MetricCounter, labels, func() any { return &Counter{} }).(*Counter)
}

// GetGauge returns (or creates) a gauge series.
func (r *MetricsRegistry) GetGauge(name, description string, labels Labels) *Gauge {
	return r.get(name, description, MetricGauge, labels, func() any { return &Gauge{} }).(*Gauge)
}

// GetHistogram returns (or creates) a histogram series. buckets is only read
// on creation.
func (r *MetricsRegistry) GetHistogram(name, description string, buckets []float64, labels Labels) *Histogram {
	return r.get(name, description, MetricHistogram, labels, func() any {
		b := append([]float64(nil), buckets...)
		sort.Float64s(b)
		return &Histogram{buckets: b, counts: make([]int64, len(b)+1)}
	}).(*Histogram)
}

// OnScrape registers fn to run before every exposition, for gauges that are
// sampled rather than maintained.
func (r *MetricsRegistry) OnScrape(fn func()) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// Inc increments a counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments a counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the counter's current value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Set sets the gauge value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the gauge's current value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.buckets)]++ // +Inf bucket
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the total of all observations.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// ------------------------------------------------------------------
// Exposition (Prometheus text format)
// ------------------------------------------------------------------

// WriteText writes every metric in the Prometheus text format. Families and
// series are sorted so the output is stable.
func (r *MetricsRegistry) WriteText(w io.Writer) {
	r.mu.RLock()
	hooks := append([]func(){}, r.hooks...)
	r.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := r.families[name]
		fmt.Fprintf(w, "# HELP %s %s\n", f.name, f.desc)
		fmt.Fprintf(w, "# TYPE %s %s\n", f.name, f.kind)

		keys := make([]string, 0, len(f.series))
		for k := range f.series {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			switch m := f.series[key].(type) {
			case *Counter:
				fmt.Fprintf(w, "%s%s %d\n", f.name, key, m.Value())
			case *Gauge:
				fmt.Fprintf(w, "%s%s %d\n", f.name, key, m.Value())
			case *Histogram:
				writeHistogram(w, f.name, key, m)
			}
		}
	}
}

func writeHistogram(w io.Writer, name, key string, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// le joins the series labels inside the braces.
	withLE := func(le string) string {
		if key == "" {
			return fmt.Sprintf("{le=%q}", le)
		}
		return key[:len(key)-1] + fmt.Sprintf(",le=%q}", le)
	}
	cumulative := int64(0)
	for i, b := range h.buckets {
		cumulative += h.counts[i]
		fmt.Fprintf(w, "%s_bucket%s %d\n", name, withLE(fmt.Sprintf("%g", b)), cumulative)
	}
	cumulative += h.counts[len(h.buckets)]
	fmt.Fprintf(w, "%s_bucket%s %d\n", name, withLE("+Inf"), cumulative)
	fmt.Fprintf(w, "%s_sum%s %g\n", name, key, h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", name, key, h.count)
}

// MetricsHandler returns an HTTP handler that exports metrics in
// Prometheus exposition format.
func MetricsHandler(registry *MetricsRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		registry.WriteText(w)
	}
}

// ------------------------------------------------------------------
// Tool call metrics
// ------------------------------------------------------------------

// LatencyBuckets are the tool latency histogram bounds in seconds.
var LatencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

const (
	metricToolCalls    = "deskclaw_tool_calls_total"
	metricToolErrors   = "deskclaw_tool_errors_total"
	metricToolLatency  = "deskclaw_tool_latency_seconds"
	metricToolInFlight = "deskclaw_tool_calls_in_flight"
	metricUptime       = "deskclaw_uptime_seconds"
	metricGoroutines   = "deskclaw_goroutines"
)

// ToolMetrics counts MCP tool calls. It is an mcp.Observer.
type ToolMetrics struct {
	Registry *MetricsRegistry
	started  time.Time
}

// NewToolMetrics creates the DeskClaw metrics suite on a fresh registry.
func NewToolMetrics() *ToolMetrics {
	r := NewMetricsRegistry()
	m := &ToolMetrics{Registry: r, started: time.Now()}

	uptime := r.GetGauge(metricUptime, "Process uptime in seconds", nil)
	goroutines := r.GetGauge(metricGoroutines, "Number of goroutines", nil)
	r.OnScrape(func() {
		uptime.Set(int64(time.Since(m.started).Seconds()))
		goroutines.Set(int64(runtime.NumGoroutine()))
	})
	return m
}

func toolLabels(server, tool string) Labels {
	return Labels{"server": server, "tool": tool}
}

// ToolCallStarted implements mcp.Observer.
func (m *ToolMetrics) ToolCallStarted(server, _ string) {
	m.inFlight(server).Inc()
}

// ToolCallFinished implements mcp.Observer.
func (m *ToolMetrics) ToolCallFinished(_ context.Context, rec mcp.CallRecord) {
	m.inFlight(rec.Server).Dec()
	m.Calls(rec.Server, rec.Tool).Inc()
	if rec.IsError {
		m.Errors(rec.Server, rec.Tool).Inc()
	}
	m.Latency(rec.Server, rec.Tool).Observe(rec.Duration.Seconds())
}

// Calls returns the call counter of one tool.
func (m *ToolMetrics) Calls(server, tool string) *Counter {
	return m.Registry.GetCounter(metricToolCalls, "Total tool calls", toolLabels(server, tool))
}

// Errors returns the error counter of one tool.
func (m *ToolMetrics) Errors(server, tool string) *Counter {
	return m.Registry.GetCounter(metricToolErrors, "Total tool calls that returned an error", toolLabels(server, tool))
}

// Latency returns the latency histogram of one tool.
func (m *ToolMetrics) Latency(server, tool string) *Histogram {
	return m.Registry.GetHistogram(metricToolLatency, "Tool call latency", LatencyBuckets, toolLabels(server, tool))
}

func (m *ToolMetrics) inFlight(server string) *Gauge {
	return m.Registry.GetGauge(metricToolInFlight, "Tool calls currently executing", Labels{"server": server})
}

// Handler serves /metrics and a liveness probe on /health.
func (m *ToolMetrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(m.Registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"uptime": time.Since(m.started).Round(time.Second).String(),
		})
	})
	return mux
}
