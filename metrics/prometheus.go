package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exports measurements as Prometheus collectors labelled by
// engine name.
type Prometheus struct {
	docs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them with reg. A nil
// reg uses prometheus.DefaultRegisterer.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prometheus{
		docs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents written or read, by engine and operation.",
		}, []string{"engine", "op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed operations, by engine and operation.",
		}, []string{"engine", "op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency, by engine and operation.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"engine", "op"}),
	}

	for _, c := range []prometheus.Collector{p.docs, p.failures, p.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RecordSave(engine string, docs, failed int, d time.Duration) {
	p.docs.WithLabelValues(engine, "save").Add(float64(docs - failed))
	if failed > 0 {
		p.failures.WithLabelValues(engine, "save").Inc()
	}
	p.latency.WithLabelValues(engine, "save").Observe(d.Seconds())
}

func (p *Prometheus) RecordGet(engine string, docs int, d time.Duration, err error) {
	p.observe(engine, "get", d, err)
	p.docs.WithLabelValues(engine, "get").Add(float64(docs))
}

func (p *Prometheus) RecordCommit(engine string, d time.Duration, err error) {
	p.observe(engine, "commit", d, err)
}

func (p *Prometheus) RecordCompact(engine string, d time.Duration, err error) {
	p.observe(engine, "compact", d, err)
}

func (p *Prometheus) observe(engine, op string, d time.Duration, err error) {
	if err != nil {
		p.failures.WithLabelValues(engine, op).Inc()
	}
	p.latency.WithLabelValues(engine, op).Observe(d.Seconds())
}
