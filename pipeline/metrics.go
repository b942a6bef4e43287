package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of decode pipelines. A nil *Metrics
// records nothing.
type Metrics struct {
	RawBytes     *prometheus.CounterVec
	DecodedBytes *prometheus.CounterVec
	Lines        *prometheus.CounterVec
	Failures     *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	rawBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "library_versions_pipeline_raw_bytes_total",
		Help: "Bytes read from upstream sources, before decompression",
	}, []string{"source"})

	decodedBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "library_versions_pipeline_decoded_bytes_total",
		Help: "Bytes produced by the decompression stage",
	}, []string{"source"})

	lines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "library_versions_pipeline_lines_total",
		Help: "Lines emitted by the line framer",
	}, []string{"source"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "library_versions_pipeline_failures_total",
		Help: "Pipelines aborted, by error class",
	}, []string{"source", "class"})

	reg.MustRegister(rawBytes, decodedBytes, lines, failures)

	return &Metrics{
		RawBytes:     rawBytes,
		DecodedBytes: decodedBytes,
		Lines:        lines,
		Failures:     failures,
	}
}

func (m *Metrics) raw(source string, n int) {
	if m != nil {
		m.RawBytes.WithLabelValues(source).Add(float64(n))
	}
}

func (m *Metrics) decoded(source string, n int) {
	if m != nil {
		m.DecodedBytes.WithLabelValues(source).Add(float64(n))
	}
}

func (m *Metrics) line(source string) {
	if m != nil {
		m.Lines.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) failure(source, class string) {
	if m != nil {
		m.Failures.WithLabelValues(source, class).Inc()
	}
}
