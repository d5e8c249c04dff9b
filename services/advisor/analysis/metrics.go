// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the "outcome" label.
const (
	outcomeComplete = "complete"
	outcomePartial  = "partial"
	outcomeNoData   = "no_data"
	outcomeError    = "error"
)

var (
	// runsTotal counts analysis runs.
	// Labels: outcome (complete, partial, no_data, error)
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evadvisor",
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Analysis runs by outcome",
	}, []string{"outcome"})

	// runDuration measures whole runs.
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evadvisor",
		Subsystem: "analysis",
		Name:      "run_duration_seconds",
		Help:      "Duration of analysis runs in seconds",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// gapCandidates is the candidate count of the last run.
	gapCandidates = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "evadvisor",
		Subsystem: "analysis",
		Name:      "gap_candidates",
		Help:      "Gap candidates found by the most recent run before truncation",
	})
)
