package observability

import (
	"strings"
	"testing"
	"time"
)

func TestCounterVecExposition(t *testing.T) {
	c := NewCounterVec("plura_test_total", "test counter", []string{"status"})
	c.Inc("ok")
	c.Inc("ok")
	c.Inc("error")

	var b strings.Builder
	if err := c.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := b.String()

	for _, want := range []string{
		"# HELP plura_test_total test counter",
		"# TYPE plura_test_total counter",
		`plura_test_total{status="ok"} 2.0`,
		`plura_test_total{status="error"} 1.0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLabelString(t *testing.T) {
	cases := []struct {
		name   string
		labels []string
		values []string
		want   string
	}{
		{name: "no_labels", want: ""},
		{
			name:   "pairs",
			labels: []string{"method", "route"},
			values: []string{"GET", "/api/v1/logs"},
			want:   `{method="GET",route="/api/v1/logs"}`,
		},
		{
			name:   "missing_value_is_unknown",
			labels: []string{"lane"},
			want:   `{lane="unknown"}`,
		},
		{
			name:   "quotes_escaped",
			labels: []string{"q"},
			values: []string{`say "hi"`},
			want:   `{q="say \"hi\""}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := labelString(tc.labels, tc.values); got != tc.want {
				t.Fatalf("labelString=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestHistogramVecObserve(t *testing.T) {
	h := NewHistogramVec("plura_test_seconds", "test histogram", []string{"lane"}, []float64{0.1, 1})
	h.Observe(0.05, "fast")
	h.Observe(0.5, "fast")
	h.Observe(3, "fast")

	var b strings.Builder
	if err := h.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := b.String()

	for _, want := range []string{
		`plura_test_seconds_bucket{lane="fast",le="0.1"} 1`,
		`plura_test_seconds_bucket{lane="fast",le="1"} 2`,
		`plura_test_seconds_bucket{lane="fast",le="+Inf"} 3`,
		`plura_test_seconds_count{lane="fast"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGaugeVecExposition(t *testing.T) {
	g := NewGaugeVec("plura_queue_depth", "queue depth", []string{"lane"})
	g.Set(4, "fast")
	g.Set(0, "heavy")

	var b strings.Builder
	if err := g.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := b.String()
	if !strings.Contains(out, `plura_queue_depth{lane="fast"} 4.0`) {
		t.Fatalf("fast lane missing:\n%s", out)
	}
	if !strings.Contains(out, `plura_queue_depth{lane="heavy"} 0.0`) {
		t.Fatalf("heavy lane missing:\n%s", out)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	// A disabled registry must absorb every call.
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ApiInflightInc()
	m.ApiInflightDec()
	m.ObserveLLMRequest("gpt", "fast", "ok", time.Second, 10, 20)
	m.ObserveJob("context_analyze", "fast", "completed", time.Second)
	m.IncResearchCache("miss")
	m.IncInsightDecision("approved")
}
