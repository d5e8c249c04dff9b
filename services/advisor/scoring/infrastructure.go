// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/geoindex"
)

// ErrNoStations is returned when infrastructure is scored without stations.
var ErrNoStations = errors.New("no stations")

// InfrastructureConfig configures InfrastructureScorer.
type InfrastructureConfig struct {
	// DensityCurve maps stations per square kilometre to a 0-10 score.
	DensityCurve Curve `yaml:"density_curve" json:"density_curve" validate:"min=1"`

	// FastShareTarget is the share of stations with DC fast charging
	// that earns full marks.
	FastShareTarget float64 `yaml:"fast_share_target" json:"fast_share_target" validate:"gt=0,lte=1"`

	// FastGapShare flags a fast-charging gap below this share.
	FastGapShare float64 `yaml:"fast_gap_share" json:"fast_gap_share" validate:"gte=0,lte=1"`

	DensityWeight  float64 `yaml:"density_weight" json:"density_weight" validate:"gte=0"`
	FastWeight     float64 `yaml:"fast_weight" json:"fast_weight" validate:"gte=0"`
	EvennessWeight float64 `yaml:"evenness_weight" json:"evenness_weight" validate:"gte=0"`

	// MinStationsForEvenness is the fewest stations for which quadrant
	// evenness is meaningful.
	MinStationsForEvenness int `yaml:"min_stations_for_evenness" json:"min_stations_for_evenness" validate:"gte=1"`
}

// DefaultInfrastructureConfig returns the documented defaults.
func DefaultInfrastructureConfig() InfrastructureConfig {
	return InfrastructureConfig{
		DensityCurve: Curve{
			{X: 0, Y: 0},
			{X: 0.5, Y: 4},
			{X: 1, Y: 6},
			{X: 3, Y: 8},
			{X: 5, Y: 10},
		},
		FastShareTarget:        0.2,
		FastGapShare:           0.1,
		DensityWeight:          0.5,
		FastWeight:             0.25,
		EvennessWeight:         0.25,
		MinStationsForEvenness: 4,
	}
}

// Validate checks the density curve and that some component carries
// weight.
func (c InfrastructureConfig) Validate() error {
	if err := c.DensityCurve.Validate(); err != nil {
		return fmt.Errorf("density_curve: %w", err)
	}
	if c.DensityWeight+c.FastWeight+c.EvennessWeight <= 0 {
		return fmt.Errorf("%w: infrastructure weights sum to zero", ErrInvalidWeights)
	}
	return nil
}

// InfrastructureResult describes the coverage of a station set.
type InfrastructureResult struct {
	Stations        int                            `json:"stations"`
	Connectors      int                            `json:"connectors"`
	FastStations    int                            `json:"fast_stations"`
	AreaKm2         float64                        `json:"area_km2"`
	DensityPerKm2   *float64                       `json:"density_per_km2,omitempty"`
	FastShare       float64                        `json:"fast_share"`
	Evenness        *float64                       `json:"evenness,omitempty"`
	OperatorHHI     float64                        `json:"operator_hhi"`
	Operators       []OperatorShare                `json:"operators"`
	Levels          map[datatypes.ChargerLevel]int `json:"levels"`
	FastChargingGap bool                           `json:"fast_charging_gap"`
	Components      map[string]float64             `json:"components"`
	Score           Score                          `json:"score"`
}

// OperatorShare is one operator's share of the stations.
type OperatorShare struct {
	Operator string  `json:"operator"`
	Stations int     `json:"stations"`
	Share    float64 `json:"share"`
}

// InfrastructureScorer scores how well a region is covered.
type InfrastructureScorer struct {
	cfg InfrastructureConfig
}

// NewInfrastructureScorer creates a scorer.
func NewInfrastructureScorer(cfg InfrastructureConfig) InfrastructureScorer {
	return InfrastructureScorer{cfg: cfg}
}

// Score computes the coverage score of stations within region.
//
// Description:
//
//	Combines three 0-10 components with renormalized weights: density
//	(stations per km2 through DensityCurve), fast-charging share against
//	FastShareTarget, and evenness of the station count across the four
//	quadrants of region. Density is dropped for a zero-area region and
//	evenness below MinStationsForEvenness stations.
func (s InfrastructureScorer) Score(stations []datatypes.ChargingStation, region datatypes.BBox) (InfrastructureResult, error) {
	if len(stations) == 0 {
		return InfrastructureResult{}, ErrNoStations
	}
	res := InfrastructureResult{
		Stations:   len(stations),
		Levels:     make(map[datatypes.ChargerLevel]int),
		Components: make(map[string]float64),
		AreaKm2:    geoindex.AreaKm2(region),
	}

	operators := make(map[string]int)
	for _, st := range stations {
		res.Connectors += st.TotalConnectors()
		if st.HasFastCharging() {
			res.FastStations++
		}
		for _, c := range st.Connectors {
			res.Levels[c.Level] += c.Count
		}
		op := st.Operator
		if op == "" {
			op = "unknown"
		}
		operators[op]++
	}

	n := float64(len(stations))
	res.FastShare = float64(res.FastStations) / n
	res.FastChargingGap = res.FastShare < s.cfg.FastGapShare
	res.Components[ComponentFastCharging] = 10 * math.Min(res.FastShare/s.cfg.FastShareTarget, 1)

	for op, count := range operators {
		share := float64(count) / n
		res.OperatorHHI += share * share
		res.Operators = append(res.Operators, OperatorShare{Operator: op, Stations: count, Share: share})
	}
	sort.Slice(res.Operators, func(i, j int) bool {
		if res.Operators[i].Stations != res.Operators[j].Stations {
			return res.Operators[i].Stations > res.Operators[j].Stations
		}
		return res.Operators[i].Operator < res.Operators[j].Operator
	})

	if res.AreaKm2 > 0 {
		d := n / res.AreaKm2
		res.DensityPerKm2 = &d
		res.Components[ComponentDensity] = s.cfg.DensityCurve.At(d)
	}

	if len(stations) >= s.cfg.MinStationsForEvenness {
		e := quadrantEvenness(stations, region.Center())
		res.Evenness = &e
		res.Components[ComponentEvenness] = 10 * e
	}

	v, _, ok := renormalize(res.Components, map[string]float64{
		ComponentDensity:      s.cfg.DensityWeight,
		ComponentFastCharging: s.cfg.FastWeight,
		ComponentEvenness:     s.cfg.EvennessWeight,
	})
	if !ok {
		v = 0
	}
	res.Score = NewScore(v)
	return res, nil
}

// quadrantEvenness returns 1 - var/maxVar of the per-quadrant station
// counts around center. All stations in one quadrant yields 0, an even
// split yields 1.
func quadrantEvenness(stations []datatypes.ChargingStation, center datatypes.GeoPoint) float64 {
	var q [4]float64
	for _, st := range stations {
		i := 0
		if st.Location.Lat >= center.Lat {
			i += 2
		}
		if st.Location.Lon >= center.Lon {
			i++
		}
		q[i]++
	}
	n := float64(len(stations))
	mean := n / 4
	variance := stat.PopVariance(q[:], nil)
	maxVar := (n*n - 2*n*mean + 4*mean*mean) / 4
	if maxVar == 0 {
		return 1
	}
	return math.Max(0, 1-variance/maxVar)
}
