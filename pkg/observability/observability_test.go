package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freitascorp/deskclaw/pkg/mcp"
)

// ------------------------------------------------------------------
// Counter / Gauge tests
// ------------------------------------------------------------------

func TestCounter(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.GetCounter("test_counter", "A test counter", nil)

	if c.Value() != 0 {
		t.Errorf("expected initial value 0, got %d", c.Value())
	}
	c.Inc()
	c.Add(5)
	if c.Value() != 6 {
		t.Errorf("expected 6, got %d", c.Value())
	}
}

func TestCounter_GetExisting(t *testing.T) {
	r := NewMetricsRegistry()
	c1 := r.GetCounter("test", "desc", Labels{"tool": "a"})
	c1.Inc()
	c2 := r.GetCounter("test", "desc", Labels{"tool": "a"})
	other := r.GetCounter("test", "desc", Labels{"tool": "b"})

	if c1 != c2 {
		t.Fatal("expected same counter instance")
	}
	if c1 == other {
		t.Fatal("expected a separate series per label set")
	}
	if other.Value() != 0 {
		t.Errorf("expected 0, got %d", other.Value())
	}
}

func TestGauge(t *testing.T) {
	r := NewMetricsRegistry()
	g := r.GetGauge("test_gauge", "A test gauge", nil)

	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 9 {
		t.Errorf("expected 9, got %d", g.Value())
	}
}

func TestRegistry_TypeConflictPanics(t *testing.T) {
	r := NewMetricsRegistry()
	r.GetCounter("dup", "desc", nil)

	defer func() {
		if recover() == nil {
			t.Error("expected panic when reusing a counter name as a gauge")
		}
	}()
	r.GetGauge("dup", "desc", nil)
}

// ------------------------------------------------------------------
// Histogram tests
// ------------------------------------------------------------------

func TestHistogram(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.GetHistogram("test_hist", "A test histogram", []float64{1, 5, 10, 50}, nil)

	h.Observe(0.5)
	h.Observe(3.0)
	h.Observe(7.5)
	h.Observe(25.0)
	h.Observe(100) // +Inf bucket

	if h.Count() != 5 {
		t.Errorf("expected count 5, got %d", h.Count())
	}
	expectedSum := 0.5 + 3.0 + 7.5 + 25.0 + 100.0
	if h.Sum() != expectedSum {
		t.Errorf("expected sum %f, got %f", expectedSum, h.Sum())
	}
	if h.counts[4] != 1 {
		t.Errorf("expected one observation in +Inf, got %d", h.counts[4])
	}
}

func TestHistogram_BucketsSortedAndCopied(t *testing.T) {
	r := NewMetricsRegistry()
	in := []float64{10, 1, 5}
	h := r.GetHistogram("sorted", "desc", in, nil)

	if h.buckets[0] != 1 || h.buckets[1] != 5 || h.buckets[2] != 10 {
		t.Errorf("buckets not sorted: %v", h.buckets)
	}
	if in[0] != 10 {
		t.Errorf("caller slice was reordered: %v", in)
	}
}

func TestMetricsRegistry_ConcurrentAccess(t *testing.T) {
	r := NewMetricsRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.GetCounter("concurrent_total", "desc", Labels{"tool": "x"}).Inc()
			r.GetHistogram("concurrent_seconds", "desc", LatencyBuckets, nil).Observe(0.2)
		}()
	}
	wg.Wait()

	if v := r.GetCounter("concurrent_total", "desc", Labels{"tool": "x"}).Value(); v != 50 {
		t.Errorf("expected 50, got %d", v)
	}
}

// ------------------------------------------------------------------
// Exposition tests
// ------------------------------------------------------------------

func TestLabels_String(t *testing.T) {
	if got := Labels(nil).String(); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	got := Labels{"tool": "say\"hi", "server": "s"}.String()
	if got != `{server="s",tool="say\"hi"}` {
		t.Errorf("unexpected label string %s", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	r := NewMetricsRegistry()
	r.GetCounter("test_requests_total", "Total requests", nil).Add(42)
	r.GetGauge("test_active", "Active connections", nil).Set(5)
	h := r.GetHistogram("test_latency_seconds", "Request latency", []float64{0.1, 0.5, 1.0}, Labels{"tool": "t"})
	h.Observe(0.3)
	h.Observe(0.8)

	scraped := 0
	r.OnScrape(func() { scraped++ })

	w := httptest.NewRecorder()
	MetricsHandler(r)(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Errorf("expected text/plain content type, got %s", resp.Header.Get("Content-Type"))
	}
	if scraped != 1 {
		t.Errorf("expected scrape hook to run once, ran %d", scraped)
	}

	body := w.Body.String()
	for _, want := range []string{
		"# TYPE test_requests_total counter",
		"test_requests_total 42",
		"# TYPE test_active gauge",
		"test_active 5",
		"# TYPE test_latency_seconds histogram",
		`test_latency_seconds_bucket{tool="t",le="0.1"} 0`,
		`test_latency_seconds_bucket{tool="t",le="0.5"} 1`,
		`test_latency_seconds_bucket{tool="t",le="+Inf"} 2`,
		`test_latency_seconds_count{tool="t"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output:\n%s", want, body)
		}
	}

	// Families are sorted by name.
	if strings.Index(body, "test_active") > strings.Index(body, "test_requests_total") {
		t.Error("expected families in name order")
	}
}

func TestHistogram_UnlabeledBuckets(t *testing.T) {
	r := NewMetricsRegistry()
	r.GetHistogram("plain_seconds", "desc", []float64{1}, nil).Observe(2)

	var b strings.Builder
	r.WriteText(&b)
	if !strings.Contains(b.String(), `plain_seconds_bucket{le="+Inf"} 1`) {
		t.Errorf("unexpected output:\n%s", b.String())
	}
}

// ------------------------------------------------------------------
// ToolMetrics tests
// ------------------------------------------------------------------

func TestToolMetrics_Observer(t *testing.T) {
	m := NewToolMetrics()
	var _ mcp.Observer = m

	m.ToolCallStarted("windows-mcp-server", "list_windows")
	if v := m.inFlight("windows-mcp-server").Value(); v != 1 {
		t.Errorf("expected 1 in flight, got %d", v)
	}
	m.ToolCallFinished(context.Background(), mcp.CallRecord{
		Server: "windows-mcp-server", Tool: "list_windows", Duration: 200 * time.Millisecond,
	})
	m.ToolCallStarted("windows-mcp-server", "list_windows")
	m.ToolCallFinished(context.Background(), mcp.CallRecord{
		Server: "windows-mcp-server", Tool: "list_windows", Duration: 2 * time.Second, IsError: true,
	})

	if v := m.inFlight("windows-mcp-server").Value(); v != 0 {
		t.Errorf("expected 0 in flight, got %d", v)
	}
	if v := m.Calls("windows-mcp-server", "list_windows").Value(); v != 2 {
		t.Errorf("expected 2 calls, got %d", v)
	}
	if v := m.Errors("windows-mcp-server", "list_windows").Value(); v != 1 {
		t.Errorf("expected 1 error, got %d", v)
	}
	if v := m.Latency("windows-mcp-server", "list_windows").Count(); v != 2 {
		t.Errorf("expected 2 latency observations, got %d", v)
	}
}

func TestToolMetrics_Handler(t *testing.T) {
	m := NewToolMetrics()
	m.ToolCallStarted("excel-mcp-server", "read_sheet")
	m.ToolCallFinished(context.Background(), mcp.CallRecord{Server: "excel-mcp-server", Tool: "read_sheet"})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	var b strings.Builder
	if _, err := io.Copy(&b, resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	body := b.String()

	for _, want := range []string{
		`deskclaw_tool_calls_total{server="excel-mcp-server",tool="read_sheet"} 1`,
		`deskclaw_tool_calls_in_flight{server="excel-mcp-server"} 0`,
		"# TYPE deskclaw_uptime_seconds gauge",
		"# TYPE deskclaw_goroutines gauge",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output:\n%s", want, body)
		}
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer health.Body.Close()
	var status map[string]string
	if err := json.NewDecoder(health.Body).Decode(&status); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if status["status"] != "ok" || status["uptime"] == "" {
		t.Errorf("unexpected health body %v", status)
	}

	resp2, err := http.Get(srv.URL + "/other")
	if err != nil {
		t.Fatalf("GET /other: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp2.StatusCode)
	}
}
