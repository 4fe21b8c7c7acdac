package ingest

import "github.com/prometheus/client_golang/prometheus"

// pipelineMetrics counts events through the pipeline stages.
type pipelineMetrics struct {
	seen      prometheus.Counter
	processed prometheus.Counter
	dropped   *prometheus.CounterVec
}

func newPipelineMetrics() *pipelineMetrics {
	return &pipelineMetrics{
		seen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mirror",
			Name:      "events_seen_total",
			Help:      "Events received from the event source",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mirror",
			Name:      "events_processed_total",
			Help:      "Events enriched and committed to the store",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Name:      "events_dropped_total",
			Help:      "Events dropped, by pipeline stage reason",
		}, []string{"reason"}),
	}
}

func (m *pipelineMetrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.seen, m.processed, m.dropped} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *pipelineMetrics) incSeen() {
	if m == nil {
		return
	}
	m.seen.Inc()
}

func (m *pipelineMetrics) incProcessed() {
	if m == nil {
		return
	}
	m.processed.Inc()
}

func (m *pipelineMetrics) incDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
