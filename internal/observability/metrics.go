// Package observability sets up logging and the instrumented notification
// handler used by facetctl.
package observability

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/facets/pkg/facets"
)

const namespace = "facets"

// Tracer counts and times listener invocations. Each Tracer owns its
// registry so that several may coexist in one process.
type Tracer struct {
	registry  *prometheus.Registry
	delivered *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	log       zerolog.Logger
}

// NewTracer builds a Tracer that logs every delivery at trace level.
func NewTracer(log zerolog.Logger) *Tracer {
	t := &Tracer{
		registry: prometheus.NewRegistry(),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Listener invocations by class, attribute and record category.",
			},
			[]string{"class", "name", "category"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listener_errors_total",
				Help:      "Listener invocations that returned an error.",
			},
			[]string{"class", "name"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "listener_duration_seconds",
				Help:      "Listener invocation duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"class"},
		),
		log: log,
	}
	t.registry.MustRegister(t.delivered, t.failed, t.duration)
	return t
}

// Registry exposes the tracer's metrics for scraping or inspection.
func (t *Tracer) Registry() *prometheus.Registry { return t.registry }

// Handler wraps next, which may be nil for direct delivery, with
// instrumentation.
func (t *Tracer) Handler(next facets.Handler) facets.Handler {
	return func(l facets.Listener, n facets.Notification) error {
		class := ""
		if n.Host != nil {
			class = n.Host.Class().Name()
		}
		category := facets.CategoryItem.String()
		if n.Record != nil {
			category = n.Record.Category().String()
		}

		start := time.Now()
		var err error
		if next != nil {
			err = next(l, n)
		} else {
			err = l.Notify(n)
		}
		elapsed := time.Since(start)

		t.delivered.WithLabelValues(class, n.Name, category).Inc()
		t.duration.WithLabelValues(class).Observe(elapsed.Seconds())
		if err != nil {
			t.failed.WithLabelValues(class, n.Name).Inc()
		}
		t.log.Trace().Str("class", class).Str("name", n.Name).Str("category", category).
			Dur("elapsed", elapsed).Err(err).Msg("listener notified")
		return err
	}
}

// Install makes t the global notification handler, chaining to whatever
// was installed before, and returns a function restoring it.
func (t *Tracer) Install() (restore func()) {
	var prev facets.Handler
	prev = facets.SetNotificationHandler(func(l facets.Listener, n facets.Notification) error {
		return t.Handler(prev)(l, n)
	})
	return func() { facets.SetNotificationHandler(prev) }
}

// Sample is one counter value read back from the registry.
type Sample struct {
	Metric string
	Labels map[string]string
	Value  float64
}

// Key renders the labels in a stable order for display.
func (s Sample) Key() string {
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k + "=" + s.Labels[k])
	}
	return b.String()
}

// Counters returns the current value of every counter series, sorted by
// metric name and labels.
func (t *Tracer) Counters() ([]Sample, error) {
	families, err := t.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			c := m.GetCounter()
			if c == nil {
				continue
			}
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			out = append(out, Sample{Metric: mf.GetName(), Labels: labels, Value: c.GetValue()})
		}
	}
	slices.SortFunc(out, func(a, b Sample) int {
		if c := strings.Compare(a.Metric, b.Metric); c != 0 {
			return c
		}
		return strings.Compare(a.Key(), b.Key())
	})
	return out, nil
}
