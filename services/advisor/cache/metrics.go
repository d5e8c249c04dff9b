// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("evadvisor.cache")
	meter  = otel.Meter("evadvisor.cache")
)

var (
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	cacheCoalesced  metric.Int64Counter
	cacheErrors     metric.Int64Counter
	cacheGetLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments on first use.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		if cacheHits, err = meter.Int64Counter("evadvisor_cache_hits_total",
			metric.WithDescription("Cache lookups served from a live entry")); err != nil {
			metricsErr = err
			return
		}
		if cacheMisses, err = meter.Int64Counter("evadvisor_cache_misses_total",
			metric.WithDescription("Cache lookups that found nothing live")); err != nil {
			metricsErr = err
			return
		}
		if cacheCoalesced, err = meter.Int64Counter("evadvisor_cache_coalesced_total",
			metric.WithDescription("Fetches shared with an identical in-flight fetch")); err != nil {
			metricsErr = err
			return
		}
		if cacheErrors, err = meter.Int64Counter("evadvisor_cache_errors_total",
			metric.WithDescription("Cache-layer errors degraded to misses")); err != nil {
			metricsErr = err
			return
		}
		cacheGetLatency, metricsErr = meter.Float64Histogram("evadvisor_cache_get_duration_seconds",
			metric.WithDescription("Duration of cache get operations"),
			metric.WithUnit("s"))
	})
	return metricsErr
}

func recordCacheHit(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	cacheHits.Add(ctx, 1)
}

func recordCacheMiss(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	cacheMisses.Add(ctx, 1)
}

func recordCacheCoalesced(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	cacheCoalesced.Add(ctx, 1)
}

func recordCacheError(ctx context.Context, op string) {
	if initMetrics() != nil {
		return
	}
	cacheErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func recordCacheGetLatency(ctx context.Context, d time.Duration, hit bool) {
	if initMetrics() != nil {
		return
	}
	cacheGetLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("hit", hit)))
}

func startCacheSpan(ctx context.Context, op string, key Key) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Store."+op,
		trace.WithAttributes(
			attribute.String("cache.operation", op),
			attribute.String("cache.key", shortKey(key)),
		),
	)
}

func setCacheSpanResult(span trace.Span, hit bool) {
	span.SetAttributes(attribute.Bool("cache.hit", hit))
}
