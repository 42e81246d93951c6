package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("queries_total")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Errorf("counter value = %d, want 3", c.Value())
	}

	g := r.Gauge("index_chunks")
	g.Set(10)
	g.Inc()
	g.Dec()
	if g.Value() != 10 {
		t.Errorf("gauge value = %d, want 10", g.Value())
	}

	// Same name returns the same metric.
	if r.Counter("queries_total") != c {
		t.Error("Counter should be idempotent per name")
	}
}

func TestWithLabels(t *testing.T) {
	got := WithLabels("queries_total", "type", "rag")
	if got != `queries_total{type="rag"}` {
		t.Errorf("WithLabels = %s", got)
	}
	if WithLabels("plain") != "plain" {
		t.Error("no labels should return name unchanged")
	}
	if WithLabels("odd", "k") != "odd" {
		t.Error("odd label count should return name unchanged")
	}
}

func TestHistogramRender(t *testing.T) {
	r := New()
	h := r.Histogram("query_seconds", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(100) // above all buckets

	out := r.Render()
	if !strings.Contains(out, `query_seconds_bucket{le="0.1"} 1`) {
		t.Errorf("missing first bucket:\n%s", out)
	}
	if !strings.Contains(out, `query_seconds_bucket{le="1"} 2`) {
		t.Errorf("buckets should be cumulative:\n%s", out)
	}
	if !strings.Contains(out, `query_seconds_bucket{le="+Inf"} 3`) {
		t.Errorf("missing +Inf bucket:\n%s", out)
	}
	if !strings.Contains(out, "query_seconds_count 3") {
		t.Errorf("missing count:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("builds_total").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "builds_total 1") {
		t.Errorf("body missing counter:\n%s", rec.Body.String())
	}
}
