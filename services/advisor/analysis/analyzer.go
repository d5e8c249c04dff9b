// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis runs the full pipeline: enrichment per geography,
// scoring, gap identification, and the composite report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/EVChargeAdvisor/pkg/validation"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/enrich"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/gaps"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/geoindex"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/scoring"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/stats"
)

// Enricher is the subset of *enrich.Enricher the analyzer uses.
type Enricher interface {
	Enrich(ctx context.Context, geo datatypes.Geography, stations []datatypes.ChargingStation) (*enrich.Batch, error)
}

// Analyzer runs analysis requests.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent runs share the enricher, and with
// it the cache and the in-flight limit.
type Analyzer struct {
	enricher Enricher
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	convenience    scoring.ConvenienceScorer
	equity         scoring.EquityScorer
	climate        scoring.ClimateScorer
	infrastructure scoring.InfrastructureScorer
	overall        scoring.OverallScorer
	gaps           *gaps.Identifier
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAnalyzer creates an Analyzer.
//
// # Inputs
//
//   - enricher: Enrichment collaborator. Must not be nil.
//   - cfg: Modeling parameters. Weights, climate curve, and gap settings
//     are validated here.
//
// # Outputs
//
//   - *Analyzer: Ready for use.
//   - error: Invalid configuration.
//
// Panics if enricher is nil.
func NewAnalyzer(enricher Enricher, cfg Config, opts ...Option) (*Analyzer, error) {
	if enricher == nil {
		panic("analysis.NewAnalyzer: enricher must not be nil")
	}
	if cfg.MaxConcurrentAreas <= 0 {
		cfg.MaxConcurrentAreas = DefaultConfig().MaxConcurrentAreas
	}
	if err := cfg.Climate.Validate(); err != nil {
		return nil, fmt.Errorf("climate config: %w", err)
	}
	if err := cfg.Infrastructure.Validate(); err != nil {
		return nil, fmt.Errorf("infrastructure config: %w", err)
	}
	if err := cfg.Equity.Validate(); err != nil {
		return nil, fmt.Errorf("equity config: %w", err)
	}
	overall, err := scoring.NewOverallScorer(cfg.Weights)
	if err != nil {
		return nil, fmt.Errorf("overall weights: %w", err)
	}

	a := &Analyzer{
		enricher:       enricher,
		cfg:            cfg,
		logger:         slog.Default(),
		now:            time.Now,
		convenience:    scoring.NewConvenienceScorer(cfg.Convenience),
		equity:         scoring.NewEquityScorer(cfg.Equity),
		climate:        scoring.NewClimateScorer(cfg.Climate),
		infrastructure: scoring.NewInfrastructureScorer(cfg.Infrastructure),
		overall:        overall,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.gaps, err = gaps.NewIdentifier(cfg.Gaps, a.logger)
	if err != nil {
		return nil, fmt.Errorf("gap config: %w", err)
	}
	return a, nil
}

// areaWork is one geography and the request indices of its stations.
type areaWork struct {
	geo      datatypes.Geography
	indices  []int
	stations []datatypes.ChargingStation
	batch    *enrich.Batch
}

// Run analyzes one request.
//
// # Description
//
// Validates the request and assigns every station to a geography,
// joining stations without one to the nearest centroid. Geographies are
// enriched concurrently, bounded by MaxConcurrentAreas, and the run
// waits for all of them before any scoring starts. Cancelling ctx yields
// a partial report from whatever finished.
//
// # Outputs
//
//   - *Report: Non-nil when err is nil. Check Partial.
//   - error: ErrInvalidRequest, ErrNoData, or a statistics error from
//     malformed input.
func (a *Analyzer) Run(ctx context.Context, req Request) (*Report, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidRequest)
	}
	start := a.now()
	runID := uuid.NewString()
	logger := a.logger.With(slog.String("run_id", runID))

	report, err := a.run(ctx, logger, req)
	elapsed := a.now().Sub(start)
	runDuration.Observe(elapsed.Seconds())

	switch {
	case errors.Is(err, ErrNoData):
		runsTotal.WithLabelValues(outcomeNoData).Inc()
		logger.Warn("Analysis produced no data", slog.String("error", err.Error()))
		return nil, err
	case err != nil:
		runsTotal.WithLabelValues(outcomeError).Inc()
		logger.Error("Analysis failed", slog.String("error", err.Error()))
		return nil, err
	case report.Partial:
		runsTotal.WithLabelValues(outcomePartial).Inc()
	default:
		runsTotal.WithLabelValues(outcomeComplete).Inc()
	}

	report.RunID = runID
	report.GeneratedAt = start.UnixMilli()
	report.DurationMs = elapsed.Milliseconds()
	gapCandidates.Set(float64(report.Gaps.TotalCandidates))

	logger.Info("Analysis complete",
		slog.Int("stations", len(report.Stations)),
		slog.Int("areas", len(report.Areas)),
		slog.Int("gaps", len(report.Gaps.Candidates)),
		slog.Float64("overall", report.Region.Overall.Score.Value),
		slog.Bool("partial", report.Partial),
		slog.Int64("duration_ms", report.DurationMs))
	return report, nil
}

func (a *Analyzer) run(ctx context.Context, logger *slog.Logger, req Request) (*Report, error) {
	work, err := a.plan(req)
	if err != nil {
		return nil, err
	}
	if len(req.Stations) == 0 {
		return nil, fmt.Errorf("%w: no stations in request", ErrNoData)
	}
	logger.Info("Analysis started",
		slog.Int("stations", len(req.Stations)),
		slog.Int("areas", len(work)))

	var g errgroup.Group
	g.SetLimit(a.cfg.MaxConcurrentAreas)
	for _, w := range work {
		g.Go(func() error {
			batch, err := a.enricher.Enrich(ctx, w.geo, w.stations)
			if err != nil {
				return fmt.Errorf("enrich %s: %w", w.geo.ID, err)
			}
			w.batch = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Stations:  make([]StationReport, len(req.Stations)),
		Areas:     make([]AreaReport, len(work)),
		Missing:   map[string]int{},
		Cancelled: ctx.Err() != nil,
	}

	anyDimension := false
	for _, w := range work {
		for j, idx := range w.indices {
			es := w.batch.Stations[j]
			anyDimension = anyDimension || es.HasAnyDimension()
			report.Stations[idx] = a.scoreStation(es)
		}
		for dim, n := range w.batch.Summary.Missing {
			report.Missing[dim] += n
		}
		report.Cancelled = report.Cancelled || w.batch.Summary.Cancelled
	}
	if !anyDimension {
		return nil, fmt.Errorf("%w: no station enriched in any dimension", ErrNoData)
	}
	for _, n := range report.Missing {
		if n > 0 {
			report.Partial = true
		}
	}

	if err := a.scoreAreas(report, work); err != nil {
		return nil, err
	}
	if err := a.scoreRegion(report, req); err != nil {
		return nil, err
	}
	return report, nil
}

// plan validates the request and groups stations by geography.
func (a *Analyzer) plan(req Request) ([]*areaWork, error) {
	if len(req.Geographies) == 0 {
		return nil, fmt.Errorf("%w: at least one geography is required", ErrInvalidRequest)
	}
	if !req.Region.IsZero() {
		if err := req.Region.Validate(); err != nil {
			return nil, fmt.Errorf("%w: region: %v", ErrInvalidRequest, err)
		}
	}

	work := make([]*areaWork, len(req.Geographies))
	byID := make(map[string]*areaWork, len(req.Geographies))
	centroids := geoindex.New[*areaWork]()
	for i, geo := range req.Geographies {
		if err := validation.ValidateIdentifier(geo.ID); err != nil {
			return nil, fmt.Errorf("%w: geography: %v", ErrInvalidRequest, err)
		}
		if _, dup := byID[geo.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate geography %q", ErrInvalidRequest, geo.ID)
		}
		if err := geo.Centroid.Validate(); err != nil {
			return nil, fmt.Errorf("%w: geography %s: %v", ErrInvalidRequest, geo.ID, err)
		}
		w := &areaWork{geo: geo}
		work[i] = w
		byID[geo.ID] = w
		if err := centroids.Insert(geo.Centroid, w); err != nil {
			return nil, fmt.Errorf("%w: geography %s: %v", ErrInvalidRequest, geo.ID, err)
		}
	}

	seen := make(map[string]struct{}, len(req.Stations))
	for i, st := range req.Stations {
		if err := validation.ValidateIdentifier(st.ID); err != nil {
			return nil, fmt.Errorf("%w: station: %v", ErrInvalidRequest, err)
		}
		if _, dup := seen[st.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate station %q", ErrInvalidRequest, st.ID)
		}
		seen[st.ID] = struct{}{}
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}

		w, ok := byID[st.GeographyID]
		if !ok {
			hit, found := centroids.Nearest(st.Location)
			if !found {
				return nil, fmt.Errorf("%w: no geography for station %s", ErrInvalidRequest, st.ID)
			}
			w = hit.Payload
			st.GeographyID = w.geo.ID
		}
		w.indices = append(w.indices, i)
		w.stations = append(w.stations, st)
	}
	return work, nil
}

func (a *Analyzer) scoreStation(es datatypes.EnrichedStation) StationReport {
	sr := StationReport{EnrichedStation: es, Missing: es.MissingDimensions()}
	if res, ok := a.convenience.Score(es); ok {
		sr.Convenience = &res
	}
	if w, ok := es.Weather.Get(); ok {
		if res, ok := a.climate.Score(w); ok {
			sr.Climate = &res
		}
	}
	return sr
}

func (a *Analyzer) scoreAreas(report *Report, work []*areaWork) error {
	inputs := make([]scoring.AreaInput, len(work))
	for i, w := range work {
		inputs[i] = scoring.AreaInput{
			GeographyID:  w.geo.ID,
			Demographics: w.batch.Demographics,
			Stations:     len(w.stations),
		}
	}
	equity, err := a.equity.Score(inputs)
	switch {
	case errors.Is(err, scoring.ErrNoEligibleAreas):
		report.Warnings = append(report.Warnings, "equity: no area with known population")
	case err != nil:
		return fmt.Errorf("equity: %w", err)
	default:
		regional := equity
		regional.Areas = nil
		report.Region.Equity = &regional
	}

	for i, w := range work {
		ar := AreaReport{
			Geography:    w.geo,
			Demographics: w.batch.Demographics,
			Stations:     len(w.stations),
			Enrichment:   w.batch.Summary,
		}
		if equity.Areas != nil {
			ar.Equity = equity.Areas[i]
		} else {
			ar.Equity = scoring.AreaEquity{GeographyID: w.geo.ID, Stations: len(w.stations), Excluded: "no eligible areas"}
		}
		stationReports := make([]StationReport, len(w.indices))
		for j, idx := range w.indices {
			stationReports[j] = report.Stations[idx]
		}
		ar.Convenience, ar.Climate = meanScores(stationReports)

		sub := scoring.SubScores{Equity: ar.Equity.Score, Convenience: ar.Convenience, Climate: ar.Climate}
		if overall, err := a.overall.Score(sub); err == nil {
			ar.Overall = &overall
		}
		report.Areas[i] = ar
	}
	return nil
}

func (a *Analyzer) scoreRegion(report *Report, req Request) error {
	bounds := req.Region
	if bounds.IsZero() {
		points := make([]datatypes.GeoPoint, 0, len(req.Stations)+len(req.Geographies))
		for _, st := range req.Stations {
			points = append(points, st.Location)
		}
		for _, geo := range req.Geographies {
			points = append(points, geo.Centroid)
		}
		bounds, _ = datatypes.BoundingBox(points)
	}
	report.Region.Bounds = bounds

	stations := make([]datatypes.ChargingStation, len(report.Stations))
	for i, sr := range report.Stations {
		stations[i] = sr.Station
	}
	infra, err := a.infrastructure.Score(stations, bounds)
	if err != nil {
		return fmt.Errorf("infrastructure: %w", err)
	}
	report.Region.Infrastructure = infra
	report.Region.Findings = gaps.Assess(infra, a.cfg.Gaps)
	report.Region.Convenience, report.Region.Climate = meanScores(report.Stations)
	report.Region.TopStations, report.Region.BottomStations = rankStations(
		report.Stations, a.cfg.RankLimit, a.cfg.Convenience.AccessRadiusM)

	sub := scoring.SubScores{
		Infrastructure: &infra.Score,
		Convenience:    report.Region.Convenience,
		Climate:        report.Region.Climate,
	}
	if report.Region.Equity != nil {
		sub.Equity = &report.Region.Equity.Score
	}
	overall, err := a.overall.Score(sub)
	if err != nil {
		return fmt.Errorf("overall: %w", err)
	}
	report.Region.Overall = overall

	areas := make([]gaps.Area, len(report.Areas))
	for i, ar := range report.Areas {
		areas[i] = gaps.Area{Geography: ar.Geography, Demographics: ar.Demographics}
	}
	gapResult, err := a.gaps.Identify(gaps.Input{Region: bounds, Areas: areas, Stations: stations})
	if err != nil {
		return fmt.Errorf("gaps: %w", err)
	}
	report.Gaps = gapResult
	return nil
}

// meanScores averages the available convenience and climate scores.
// Stations without a score are left out.
func meanScores(stations []StationReport) (*scoring.Score, *scoring.Score) {
	var conv, clim []float64
	for _, sr := range stations {
		if sr.Convenience != nil {
			conv = append(conv, sr.Convenience.Score.Value)
		}
		if sr.Climate != nil {
			clim = append(clim, sr.Climate.Score.Value)
		}
	}
	return meanScore(conv), meanScore(clim)
}

func meanScore(values []float64) *scoring.Score {
	m, err := stats.Mean(values)
	if err != nil {
		return nil
	}
	s := scoring.NewScore(m)
	return &s
}

// WorstServed returns the geography IDs of scored areas ordered from the
// lowest equity score.
func (r *Report) WorstServed(limit int) []string {
	equities := make([]scoring.AreaEquity, len(r.Areas))
	for i, ar := range r.Areas {
		equities[i] = ar.Equity
	}
	var out []string
	for _, e := range scoring.ByScore(equities) {
		if e.Score == nil || len(out) == limit {
			break
		}
		out = append(out, e.GeographyID)
	}
	return out
}
