// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes used as the "outcome" label.
const (
	outcomeFetched  = "fetched"
	outcomeCacheHit = "cache_hit"
	outcomeMissing  = "missing"
)

var (
	// fetchTotal counts dimension lookups.
	// Labels: dimension, outcome (fetched, cache_hit, missing)
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evadvisor",
		Subsystem: "enrich",
		Name:      "fetch_total",
		Help:      "Enrichment dimension lookups by outcome",
	}, []string{"dimension", "outcome"})

	// fetchDuration measures dimension lookups including cache access.
	// Labels: dimension
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evadvisor",
		Subsystem: "enrich",
		Name:      "fetch_duration_seconds",
		Help:      "Enrichment dimension lookup latency in seconds",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"dimension"})

	// inFlight is the number of external fetches currently running.
	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "evadvisor",
		Subsystem: "enrich",
		Name:      "in_flight",
		Help:      "External fetches currently in flight",
	})

	// batchDuration measures whole Enrich calls.
	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evadvisor",
		Subsystem: "enrich",
		Name:      "batch_duration_seconds",
		Help:      "Duration of one geography's enrichment batch",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)

func recordFetch(dimension, outcome string, seconds float64) {
	fetchTotal.WithLabelValues(dimension, outcome).Inc()
	fetchDuration.WithLabelValues(dimension).Observe(seconds)
}
