// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromConsumer holds the per-consumer gauges/histograms exposed when a
// scenario is run with a metrics address configured.
type PromConsumer struct {
	DRD      prometheus.Gauge
	Lambda   prometheus.Gauge
	InFlight prometheus.Gauge
	RTT      prometheus.Histogram
}

// NewPromConsumer registers a PromConsumer's metrics under the given
// consumer label on reg. runID tags every series so that scrapes from
// successive runs of the same scenario against a long-lived Prometheus
// server don't get silently aggregated together.
func NewPromConsumer(reg prometheus.Registerer, consumer, runID string) *PromConsumer {
	f := promauto.With(reg)
	labels := prometheus.Labels{"consumer": consumer, "run": runID}
	return &PromConsumer{
		DRD: f.NewGauge(prometheus.GaugeOpts{
			Name:        "rtcsim_drd_seconds",
			Help:        "current data retrieval delay estimate",
			ConstLabels: labels,
		}),
		Lambda: f.NewGauge(prometheus.GaugeOpts{
			Name:        "rtcsim_lambda",
			Help:        "current pipeline depth in frames",
			ConstLabels: labels,
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name:        "rtcsim_inflight_frames",
			Help:        "frames with at least one outstanding segment",
			ConstLabels: labels,
		}),
		RTT: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "rtcsim_segment_rtt_seconds",
			Help:        "observed per-segment round trip time",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
}

// Serve starts an HTTP server exposing /metrics on addr. It runs until the
// process exits; callers typically launch it in its own goroutine.
func Serve(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
