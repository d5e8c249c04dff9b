// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enrich collects amenity, demographic, and weather context for
// charging stations and merges it into EnrichedStation records.
//
// # Description
//
// One Enrich call handles one geography and the stations inside it. The
// demographic profile is fetched once and shared by every station. The
// per-station amenity, access, and weather lookups fan out concurrently,
// bounded by a semaphore that caps external calls in flight across every
// batch using the same Enricher. Each lookup consults the cache first.
//
// Enrich returns only after every lookup has reached a terminal state.
// A failed, timed-out, or cancelled lookup marks its dimension missing on
// that station and never affects its siblings.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/cache"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
)

// Missing-marker reasons.
const (
	ReasonNoFetcher = "no fetcher configured"
	ReasonCancelled = "cancelled"
	ReasonTimeout   = "timeout"
	ReasonDecode    = "undecodable payload"
)

// Cache is the subset of *cache.Store the enricher uses.
type Cache interface {
	GetOrFetch(ctx context.Context, key cache.Key, class cache.TTLClass, fetch cache.FetchFunc) ([]byte, bool, error)
	Invalidate(ctx context.Context, key cache.Key) error
}

// Config controls fan-out and amenity search.
type Config struct {
	// MaxInFlight caps concurrent external fetches. Default 8.
	MaxInFlight int `yaml:"max_in_flight" json:"max_in_flight" validate:"gte=1,lte=256"`

	// FetchTimeout bounds every individual fetch. Default 30s.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout" validate:"gt=0"`

	// AmenityRadiusM is the dining/shopping/healthcare search radius. Default 500.
	AmenityRadiusM float64 `yaml:"amenity_radius_m" json:"amenity_radius_m" validate:"gt=0"`

	// AccessRadiusM is the transit/parking search radius. Default 800.
	AccessRadiusM float64 `yaml:"access_radius_m" json:"access_radius_m" validate:"gt=0"`

	// RatePerSecond limits fetch starts per second. Zero disables limiting.
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second" validate:"gte=0"`

	// Burst is the limiter burst size. Default 1 when limiting.
	Burst int `yaml:"burst" json:"burst" validate:"gte=0"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxInFlight:    8,
		FetchTimeout:   30 * time.Second,
		AmenityRadiusM: 500,
		AccessRadiusM:  800,
	}
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithConfig replaces the default configuration. Non-positive limits fall
// back to their defaults.
func WithConfig(cfg Config) Option {
	return func(e *Enricher) { e.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSemaphore shares an in-flight limit with other enrichers.
func WithSemaphore(sem *semaphore.Weighted) Option {
	return func(e *Enricher) { e.sem = sem }
}

// Batch is the result of enriching one geography.
type Batch struct {
	Geography    datatypes.Geography                               `json:"geography"`
	Demographics datatypes.Dimension[datatypes.DemographicProfile] `json:"demographics"`
	Stations     []datatypes.EnrichedStation                       `json:"stations"`
	Summary      Summary                                           `json:"summary"`
}

// Summary reports how a batch went.
type Summary struct {
	Stations   int            `json:"stations"`
	Fetched    int            `json:"fetched"`
	CacheHits  int            `json:"cache_hits"`
	Missing    map[string]int `json:"missing"`
	Cancelled  bool           `json:"cancelled"`
	DurationMs int64          `json:"duration_ms"`
}

// Partial reports whether any dimension of any station is missing.
func (s Summary) Partial() bool {
	for _, n := range s.Missing {
		if n > 0 {
			return true
		}
	}
	return false
}

// Enricher fans out per-station lookups.
//
// Thread Safety: Safe for concurrent use. Concurrent Enrich calls share
// the in-flight limit and the cache.
type Enricher struct {
	fetchers Fetchers
	cache    Cache
	cfg      Config
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewEnricher creates an Enricher.
//
// # Inputs
//
//   - fetchers: Dimension collaborators. Nil entries leave dimensions missing.
//   - store: Cache consulted before every fetch. Must not be nil.
//   - opts: Optional configuration.
//
// # Outputs
//
//   - *Enricher: Ready for use.
//
// Panics if store is nil.
func NewEnricher(fetchers Fetchers, store Cache, opts ...Option) *Enricher {
	if store == nil {
		panic("enrich.NewEnricher: store must not be nil")
	}
	e := &Enricher{
		fetchers: fetchers,
		cache:    store,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	def := DefaultConfig()
	if e.cfg.MaxInFlight <= 0 {
		e.cfg.MaxInFlight = def.MaxInFlight
	}
	if e.cfg.FetchTimeout <= 0 {
		e.cfg.FetchTimeout = def.FetchTimeout
	}
	if e.cfg.AmenityRadiusM <= 0 {
		e.cfg.AmenityRadiusM = def.AmenityRadiusM
	}
	if e.cfg.AccessRadiusM <= 0 {
		e.cfg.AccessRadiusM = def.AccessRadiusM
	}
	if e.sem == nil {
		e.sem = semaphore.NewWeighted(int64(e.cfg.MaxInFlight))
	}
	if e.cfg.RatePerSecond > 0 {
		burst := e.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(e.cfg.RatePerSecond), burst)
	}
	return e
}

// Config returns the effective configuration.
func (e *Enricher) Config() Config {
	return e.cfg
}

// lookup is the terminal state of one dimension lookup.
type lookup struct {
	outcome string
}

// Enrich produces one EnrichedStation per input station, in input order.
//
// # Description
//
// Fetches the geography's demographic profile once and every station's
// amenity, access, and weather context concurrently, then waits for all
// of them. Cancelling ctx abandons lookups still in flight; they are
// marked missing with reason "cancelled" and finished lookups are kept.
//
// # Inputs
//
//   - ctx: Batch context.
//   - geo: The geography covering the stations.
//   - stations: Stations to enrich. May be empty, in which case only the
//     demographic profile is fetched.
//
// # Outputs
//
//   - *Batch: Always non-nil when err is nil.
//   - error: Non-nil only for invalid input.
func (e *Enricher) Enrich(ctx context.Context, geo datatypes.Geography, stations []datatypes.ChargingStation) (*Batch, error) {
	if geo.ID == "" {
		return nil, errors.New("enrich: geography id is required")
	}
	for _, s := range stations {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("enrich: %w", err)
		}
	}

	start := time.Now()
	logger := e.logger.With(slog.String("geography_id", geo.ID))

	n := len(stations)
	amenities := make([]datatypes.Dimension[datatypes.AmenitySet], n)
	access := make([]datatypes.Dimension[datatypes.AmenitySet], n)
	weather := make([]datatypes.Dimension[datatypes.WeatherProfile], n)
	outcomes := make([]lookup, 1+3*n)

	var demographics datatypes.Dimension[datatypes.DemographicProfile]
	var g errgroup.Group

	g.Go(func() error {
		demographics, outcomes[0] = fetchDimension(ctx, e, logger, datatypes.DimDemographics,
			e.fetchers.Demographics, DemographicQuery{GeographyID: geo.ID}, cache.ClassReference)
		return nil
	})

	for i, s := range stations {
		stationLog := logger.With(slog.String("station_id", s.ID))
		g.Go(func() error {
			q := AmenityQuery{Location: s.Location, RadiusM: e.cfg.AmenityRadiusM, Types: AmenityTypes}
			amenities[i], outcomes[1+3*i] = fetchDimension(ctx, e, stationLog, datatypes.DimAmenities,
				e.fetchers.Amenities, q, cache.ClassRawAPI)
			return nil
		})
		g.Go(func() error {
			q := AmenityQuery{Location: s.Location, RadiusM: e.cfg.AccessRadiusM, Types: AccessTypes}
			access[i], outcomes[2+3*i] = fetchDimension(ctx, e, stationLog, datatypes.DimAccess,
				e.fetchers.Access, q, cache.ClassRawAPI)
			return nil
		})
		g.Go(func() error {
			weather[i], outcomes[3+3*i] = fetchDimension(ctx, e, stationLog, datatypes.DimWeather,
				e.fetchers.Weather, WeatherQuery{Location: s.Location}, cache.ClassRawAPI)
			return nil
		})
	}

	// Every task returns nil; Wait is the barrier.
	_ = g.Wait()

	batch := &Batch{
		Geography:    geo,
		Demographics: demographics,
		Stations:     make([]datatypes.EnrichedStation, n),
		Summary: Summary{
			Stations:  n,
			Missing:   map[string]int{},
			Cancelled: ctx.Err() != nil,
		},
	}
	for i, s := range stations {
		batch.Stations[i] = datatypes.EnrichedStation{
			Station:      s.Clone(),
			Demographics: demographics,
			Amenities:    amenities[i],
			Access:       access[i],
			Weather:      weather[i],
		}
		for _, dim := range batch.Stations[i].MissingDimensions() {
			batch.Summary.Missing[dim]++
		}
	}
	if n == 0 && demographics.IsMissing() {
		batch.Summary.Missing[datatypes.DimDemographics]++
	}
	for _, o := range outcomes {
		switch o.outcome {
		case outcomeFetched:
			batch.Summary.Fetched++
		case outcomeCacheHit:
			batch.Summary.CacheHits++
		}
	}
	elapsed := time.Since(start)
	batch.Summary.DurationMs = elapsed.Milliseconds()
	batchDuration.Observe(elapsed.Seconds())

	logger.Debug("enrichment batch complete",
		slog.Int("stations", n),
		slog.Int("fetched", batch.Summary.Fetched),
		slog.Int("cache_hits", batch.Summary.CacheHits),
		slog.Bool("partial", batch.Summary.Partial()),
	)
	return batch, nil
}

// fetchDimension resolves one dimension through the cache, fetching on a
// miss. It always returns a terminal Dimension.
func fetchDimension[Q Query, R any](
	ctx context.Context,
	e *Enricher,
	logger *slog.Logger,
	dim string,
	f Fetcher[Q, R],
	q Q,
	class cache.TTLClass,
) (datatypes.Dimension[R], lookup) {
	if f == nil {
		recordFetch(dim, outcomeMissing, 0)
		return datatypes.Missing[R](ReasonNoFetcher), lookup{outcome: outcomeMissing}
	}

	start := time.Now()
	key := cache.NewKey(f.Source(), q.Params())

	// Two attempts: a cached payload that no longer decodes is dropped
	// and fetched again.
	for attempt := 0; attempt < 2; attempt++ {
		// The fetch may be shared with other batches, so it runs under the
		// store's detached context and only the per-fetch timeout bounds it.
		payload, hit, err := e.cache.GetOrFetch(ctx, key, class, func(shared context.Context) ([]byte, error) {
			v, err := callFetcher(shared, e, f, q)
			if err != nil {
				return nil, &FetchError{Source: f.Source(), Err: err}
			}
			return json.Marshal(v)
		})
		if err != nil {
			reason := missingReason(ctx, err)
			logger.Warn("enrichment dimension missing",
				slog.String("dimension", dim),
				slog.String("source", f.Source()),
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
			recordFetch(dim, outcomeMissing, time.Since(start).Seconds())
			return datatypes.Missing[R](reason), lookup{outcome: outcomeMissing}
		}

		var v R
		if err := json.Unmarshal(payload, &v); err != nil {
			_ = e.cache.Invalidate(ctx, key)
			if hit {
				continue
			}
			break
		}

		outcome := outcomeFetched
		if hit {
			outcome = outcomeCacheHit
			logger.Debug("enrichment cache hit", slog.String("dimension", dim))
		}
		recordFetch(dim, outcome, time.Since(start).Seconds())
		return datatypes.Present(v), lookup{outcome: outcome}
	}

	logger.Warn("enrichment dimension missing",
		slog.String("dimension", dim),
		slog.String("source", f.Source()),
		slog.String("reason", ReasonDecode),
	)
	recordFetch(dim, outcomeMissing, time.Since(start).Seconds())
	return datatypes.Missing[R](ReasonDecode), lookup{outcome: outcomeMissing}
}

// callFetcher runs one external call under the in-flight limit, the rate
// limiter, and the per-fetch timeout. A fetcher that ignores its context
// is abandoned when the timeout fires.
func callFetcher[Q Query, R any](ctx context.Context, e *Enricher, f Fetcher[Q, R], q Q) (R, error) {
	var zero R
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer e.sem.Release(1)
	inFlight.Inc()
	defer inFlight.Dec()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return zero, err
		}
	}

	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	type result struct {
		v   R
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := f.Fetch(fctx, q)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-fctx.Done():
		return zero, fctx.Err()
	}
}

// missingReason classifies a lookup failure for the missing marker.
func missingReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return "fetch failed: " + rootCause(err)
	}
}

// rootCause strips the FetchError wrapper for a shorter marker.
func rootCause(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Err != nil {
		return fe.Err.Error()
	}
	return err.Error()
}
