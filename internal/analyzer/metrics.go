package analyzer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("refgraph.analyzer")

// Metrics are the Prometheus instruments of an Analyzer.
type Metrics struct {
	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	nodes        prometheus.Gauge
	edges        *prometheus.GaugeVec
	unresolved   prometheus.Counter
	skipped      *prometheus.CounterVec
	resolutions  *prometheus.CounterVec
}

// NewMetrics registers the analyzer instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: status (ok, canceled)
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refgraph",
			Subsystem: "analyzer",
			Name:      "passes_total",
			Help:      "Analysis passes run",
		}, []string{"status"}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "refgraph",
			Subsystem: "analyzer",
			Name:      "pass_duration_seconds",
			Help:      "Duration of analysis passes",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "refgraph",
			Subsystem: "graph",
			Name:      "nodes",
			Help:      "Nodes in the last completed pass",
		}),
		// Labels: kind (edge kind)
		edges: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "refgraph",
			Subsystem: "graph",
			Name:      "edges",
			Help:      "Edges in the last completed pass by kind",
		}, []string{"kind"}),
		unresolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: "refgraph",
			Subsystem: "augment",
			Name:      "unresolved_total",
			Help:      "Source references dropped as unresolved",
		}),
		// Labels: reason (missing_source, parse_failed)
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refgraph",
			Subsystem: "augment",
			Name:      "skipped_types_total",
			Help:      "Behavior types skipped during augmentation",
		}, []string{"reason"}),
		// Labels: strategy
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refgraph",
			Subsystem: "resolve",
			Name:      "resolutions_total",
			Help:      "Type resolutions by winning strategy",
		}, []string{"strategy"}),
	}
}

func (m *Metrics) record(res *Result, status string) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(status).Inc()
	if res == nil {
		return
	}
	m.passDuration.Observe(res.Duration.Seconds())
	m.nodes.Set(float64(len(res.Nodes)))
	m.edges.Reset()
	for _, e := range res.Edges {
		m.edges.WithLabelValues(e.Kind.String()).Inc()
	}
	m.unresolved.Add(float64(res.Augment.Unresolved))
	m.skipped.WithLabelValues("missing_source").Add(float64(res.Augment.MissingSource))
	m.skipped.WithLabelValues("parse_failed").Add(float64(res.Augment.ParseFailures))
	for strategy, n := range res.Resolutions {
		m.resolutions.WithLabelValues(strategy).Add(float64(n))
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
