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
	"errors"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/enrich"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/gaps"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/scoring"
)

var (
	// ErrNoData means nothing could be analyzed: no stations, or no
	// station enriched in any dimension. It is distinct from a partial
	// report, which is returned with Partial set.
	ErrNoData = errors.New("no data available")

	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid analysis request")
)

// Config carries every modeling parameter of a run.
type Config struct {
	// MaxConcurrentAreas caps geographies enriched at once. External
	// fetches are further capped by the enricher's in-flight limit.
	MaxConcurrentAreas int `yaml:"max_concurrent_areas" json:"max_concurrent_areas" validate:"gte=1"`

	// RankLimit is the length of the best and worst station lists.
	RankLimit int `yaml:"rank_limit" json:"rank_limit" validate:"gte=0"`

	Convenience    scoring.ConvenienceConfig    `yaml:"convenience" json:"convenience"`
	Equity         scoring.EquityConfig         `yaml:"equity" json:"equity"`
	Climate        scoring.ClimateConfig        `yaml:"climate" json:"climate"`
	Infrastructure scoring.InfrastructureConfig `yaml:"infrastructure" json:"infrastructure"`
	Weights        scoring.Weights              `yaml:"weights" json:"weights"`
	Gaps           gaps.Config                  `yaml:"gaps" json:"gaps"`
}

// DefaultConfig returns the documented defaults of every component.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentAreas: 4,
		RankLimit:          5,
		Convenience:        scoring.DefaultConvenienceConfig(),
		Equity:             scoring.DefaultEquityConfig(),
		Climate:            scoring.DefaultClimateConfig(),
		Infrastructure:     scoring.DefaultInfrastructureConfig(),
		Weights:            scoring.DefaultWeights(),
		Gaps:               gaps.DefaultConfig(),
	}
}

// Request is one analysis run's input.
type Request struct {
	// Region bounds the gap grid. Zero means the bounding box of every
	// station and geography centroid.
	Region datatypes.BBox `json:"region" yaml:"region"`

	Geographies []datatypes.Geography       `json:"geographies" yaml:"geographies" validate:"required,min=1,dive"`
	Stations    []datatypes.ChargingStation `json:"stations" yaml:"stations"`
}

// StationReport is one station with its scores.
type StationReport struct {
	datatypes.EnrichedStation

	Convenience *scoring.ConvenienceResult `json:"convenience,omitempty"`
	Climate     *scoring.ClimateResult     `json:"climate,omitempty"`
	Missing     []string                   `json:"missing,omitempty"`
}

// AreaReport is one geography's result.
type AreaReport struct {
	Geography    datatypes.Geography                               `json:"geography"`
	Demographics datatypes.Dimension[datatypes.DemographicProfile] `json:"demographics"`
	Stations     int                                               `json:"stations"`
	Equity       scoring.AreaEquity                                `json:"equity"`
	Convenience  *scoring.Score                                    `json:"convenience,omitempty"`
	Climate      *scoring.Score                                    `json:"climate,omitempty"`
	Overall      *scoring.OverallResult                            `json:"overall,omitempty"`
	Enrichment   enrich.Summary                                    `json:"enrichment"`
}

// RegionReport aggregates every area.
type RegionReport struct {
	Bounds         datatypes.BBox               `json:"bounds"`
	Infrastructure scoring.InfrastructureResult `json:"infrastructure"`
	Equity         *scoring.RegionEquity        `json:"equity,omitempty"`
	Convenience    *scoring.Score               `json:"convenience,omitempty"`
	Climate        *scoring.Score               `json:"climate,omitempty"`
	Overall        scoring.OverallResult        `json:"overall"`
	Findings       []gaps.Finding               `json:"findings,omitempty"`

	// TopStations and BottomStations rank stations by convenience.
	TopStations    []StationRank `json:"top_stations,omitempty"`
	BottomStations []StationRank `json:"bottom_stations,omitempty"`
}

// Report is the sole artifact of a run.
type Report struct {
	RunID       string          `json:"run_id"`
	GeneratedAt int64           `json:"generated_at"`
	DurationMs  int64           `json:"duration_ms"`
	Region      RegionReport    `json:"region"`
	Areas       []AreaReport    `json:"areas"`
	Stations    []StationReport `json:"stations"`
	Gaps        gaps.Result     `json:"gaps"`

	// Partial is set when any dimension of any station or area is
	// missing. Missing counts them per dimension.
	Partial   bool           `json:"partial"`
	Cancelled bool           `json:"cancelled"`
	Missing   map[string]int `json:"missing"`

	// Warnings lists computations skipped for lack of data.
	Warnings []string `json:"warnings,omitempty"`
}
