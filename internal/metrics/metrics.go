// Package metrics exposes Prometheus instrumentation for the download
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iconidentify/vidgrab/internal/domain"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	downloadsTotal  *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// New creates and registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		downloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidgrab_downloads_total",
				Help: "Download requests by platform and outcome code.",
			},
			[]string{"platform", "code"},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidgrab_download_bytes_total",
				Help: "Media bytes served to clients by platform.",
			},
			[]string{"platform"},
		),
		durationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidgrab_download_duration_seconds",
				Help:    "End-to-end download request duration.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"platform"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vidgrab_downloads_in_flight",
				Help: "Download requests currently being processed.",
			},
		),
	}

	reg.MustRegister(m.downloadsTotal, m.bytesTotal, m.durationSeconds, m.inFlight)
	return m
}

// ObserveOutcome records one finished request.
func (m *Metrics) ObserveOutcome(o domain.Outcome) {
	platform := string(o.Platform)
	if platform == "" {
		platform = string(domain.PlatformUnsupported)
	}

	m.downloadsTotal.WithLabelValues(platform, string(o.Code)).Inc()
	m.durationSeconds.WithLabelValues(platform).Observe(o.Duration.Seconds())
	if o.BytesStreamed > 0 {
		m.bytesTotal.WithLabelValues(platform).Add(float64(o.BytesStreamed))
	}
}

// TrackInFlight marks a request started and returns a done func.
func (m *Metrics) TrackInFlight() func() {
	m.inFlight.Inc()
	return func() { m.inFlight.Dec() }
}
