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

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/stats"
)

// Component names used in weights and reports.
const (
	ComponentAccess         = "access"
	ComponentParity         = "parity"
	ComponentAffordability  = "affordability"
	ComponentMobility       = "mobility"
	ComponentDensity        = "density"
	ComponentFastCharging   = "fast_charging"
	ComponentEvenness       = "evenness"
	ComponentInfrastructure = "infrastructure"
	ComponentEquity         = "equity"
	ComponentConvenience    = "convenience"
	ComponentClimate        = "climate"
)

// ErrNoEligibleAreas is returned when no area has a known population.
var ErrNoEligibleAreas = errors.New("no area with known population")

// EquityConfig configures EquityScorer.
type EquityConfig struct {
	// AccessWeight weights per-capita density against the target.
	AccessWeight float64 `yaml:"access_weight" json:"access_weight" validate:"gte=0"`

	// ParityWeight weights density relative to the top income quintile.
	ParityWeight float64 `yaml:"parity_weight" json:"parity_weight" validate:"gte=0"`

	// AffordabilityWeight weights the poverty-rate term.
	AffordabilityWeight float64 `yaml:"affordability_weight" json:"affordability_weight" validate:"gte=0"`

	// MobilityWeight weights the household vehicle-access term.
	MobilityWeight float64 `yaml:"mobility_weight" json:"mobility_weight" validate:"gte=0"`

	// AffordabilityCurve maps the poverty rate (a share) to [0, 1].
	AffordabilityCurve Curve `yaml:"affordability_curve" json:"affordability_curve" validate:"min=1"`

	// MobilityCurve maps the share of households without a vehicle to
	// [0, 1].
	MobilityCurve Curve `yaml:"mobility_curve" json:"mobility_curve" validate:"min=1"`

	// TargetPer1000 is the stations per 1000 residents that earns full
	// access credit.
	TargetPer1000 float64 `yaml:"target_per_1000" json:"target_per_1000" validate:"gt=0"`

	// LowPercentile and HighPercentile split areas into the bottom and
	// top income groups.
	LowPercentile  float64 `yaml:"low_percentile" json:"low_percentile" validate:"gte=0,lte=100"`
	HighPercentile float64 `yaml:"high_percentile" json:"high_percentile" validate:"gte=0,lte=100,gtefield=LowPercentile"`

	Recommend RecommendConfig `yaml:"recommend" json:"recommend"`
}

// DefaultEquityConfig returns the documented defaults.
func DefaultEquityConfig() EquityConfig {
	return EquityConfig{
		AccessWeight:        0.3,
		ParityWeight:        0.3,
		AffordabilityWeight: 0.2,
		MobilityWeight:      0.2,
		AffordabilityCurve: Curve{
			{X: 0.05, Y: 1.0},
			{X: 0.10, Y: 0.6},
			{X: 0.20, Y: 0.3},
			{X: 0.40, Y: 0},
		},
		MobilityCurve: Curve{
			{X: 0.05, Y: 0.9},
			{X: 0.10, Y: 0.7},
			{X: 0.20, Y: 0.5},
			{X: 0.50, Y: 0.2},
		},
		TargetPer1000:  1.0,
		LowPercentile:  20,
		HighPercentile: 80,
		Recommend:      DefaultRecommendConfig(),
	}
}

// Validate checks the curves and that some term carries weight.
func (c EquityConfig) Validate() error {
	if c.AccessWeight+c.ParityWeight+c.AffordabilityWeight+c.MobilityWeight <= 0 {
		return fmt.Errorf("%w: equity weights sum to zero", ErrInvalidWeights)
	}
	for name, curve := range map[string]Curve{
		"affordability_curve": c.AffordabilityCurve,
		"mobility_curve":      c.MobilityCurve,
	} {
		if err := curve.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for i, p := range curve {
			if p.Y < 0 || p.Y > 1 {
				return fmt.Errorf("%s: %w: y %.3f at index %d outside [0, 1]", name, ErrInvalidCurve, p.Y, i)
			}
		}
	}
	return nil
}

// AreaInput is one geography's demographics and station count.
type AreaInput struct {
	GeographyID  string
	Demographics datatypes.Dimension[datatypes.DemographicProfile]
	Stations     int
}

// Income bands.
const (
	IncomeUnknown = "unknown"
	IncomeLow     = "low"
	IncomeMiddle  = "middle"
	IncomeHigh    = "high"
)

// Access adequacy levels.
const (
	AdequacyNone     = "none"
	AdequacyPoor     = "poor"
	AdequacyLimited  = "limited"
	AdequacyAdequate = "adequate"
)

// AreaEquity is one geography's equity breakdown. Score is nil when the
// area was excluded, with the reason in Excluded.
type AreaEquity struct {
	GeographyID     string   `json:"geography_id"`
	Stations        int      `json:"stations"`
	Population      int64    `json:"population,omitempty"`
	StationsPer1000 float64  `json:"stations_per_1000"`
	MedianIncome    *float64 `json:"median_income,omitempty"`
	PovertyRate     *float64 `json:"poverty_rate,omitempty"`
	NoVehicleRate   *float64 `json:"no_vehicle_rate,omitempty"`
	IncomeBand      string   `json:"income_band"`
	Adequacy        string   `json:"adequacy"`
	Need            string   `json:"need"`
	Priority        string   `json:"priority,omitempty"`
	Score           *Score   `json:"score,omitempty"`
	Excluded        string   `json:"excluded,omitempty"`

	// Components holds the 0-1 terms that entered Score.
	Components      map[string]float64 `json:"components,omitempty"`
	Recommendations []Recommendation   `json:"recommendations,omitempty"`
}

// RegionEquity is the equity result for a set of areas.
//
// Disparity compares the bottom income group's mean density with the top
// group's; it is negative when lower-income areas are worse served. It
// and Gini are nil when there were too few areas to compute them.
type RegionEquity struct {
	Areas           []AreaEquity `json:"areas"`
	StationsPer1000 float64      `json:"stations_per_1000"`
	Disparity       *float64     `json:"disparity,omitempty"`
	Gini            *float64     `json:"gini,omitempty"`

	// PovertyRate and NoVehicleRate are population-weighted over the
	// areas that report them.
	PovertyRate   *float64 `json:"poverty_rate,omitempty"`
	NoVehicleRate *float64 `json:"no_vehicle_rate,omitempty"`

	Score Score `json:"score"`
}

// EquityScorer scores how evenly charging access is spread across
// income groups.
type EquityScorer struct {
	cfg EquityConfig
}

// NewEquityScorer creates a scorer.
func NewEquityScorer(cfg EquityConfig) EquityScorer {
	return EquityScorer{cfg: cfg}
}

// Score computes per-area and region-level equity.
//
// Description:
//
//	Areas without a known population are excluded rather than treated
//	as zero. For each remaining area:
//
//	    access        = min(density / target, 1)
//	    parity        = 1 + min(disparity(density, topGroupMeanDensity), 0)
//	    affordability = AffordabilityCurve(povertyRate)
//	    mobility      = MobilityCurve(1 - vehicleOwnershipRate)
//	    score         = 10 * weighted mean of the terms present
//
//	The income groups are areas at or below the LowPercentile income and
//	at or above the HighPercentile income. With fewer than two known
//	incomes the parity term is dropped; an unknown rate drops its term.
//	Dropped terms are never counted as zero, the remaining weights are
//	renormalized. Lower density in an area never raises its score.
//	Every scored area also gets a need level, a priority, and
//	recommendations.
//
// Outputs:
//
//	RegionEquity - Per-area and region results, areas in input order.
//	error - ErrNoEligibleAreas, or a stats error on malformed input.
func (s EquityScorer) Score(areas []AreaInput) (RegionEquity, error) {
	res := RegionEquity{Areas: make([]AreaEquity, len(areas))}

	type eligible struct {
		idx       int
		density   float64
		income    float64
		hasInc    bool
		poverty   *float64
		noVehicle *float64
	}
	var pool []eligible
	var totalStations, totalPop float64
	var povPop, povSum, vehPop, vehSum float64

	for i, a := range areas {
		ae := AreaEquity{GeographyID: a.GeographyID, Stations: a.Stations, IncomeBand: IncomeUnknown}
		profile, ok := a.Demographics.Get()
		if !ok {
			ae.Excluded = "demographics missing: " + a.Demographics.Reason()
			ae.Adequacy = AdequacyNone
			ae.Need = NeedUnknown
			res.Areas[i] = ae
			continue
		}
		pop, ok := profile.KnownPopulation()
		if !ok {
			ae.Excluded = "population unknown"
			ae.Adequacy = AdequacyNone
			ae.Need = NeedUnknown
			res.Areas[i] = ae
			continue
		}
		density := float64(a.Stations) * 1000 / float64(pop)
		ae.Population = pop
		ae.StationsPer1000 = density
		ae.Adequacy = adequacy(density)

		el := eligible{idx: i, density: density}
		if inc, ok := profile.KnownIncome(); ok {
			ae.MedianIncome = &inc
			ae.IncomeBand = incomeBand(inc)
			el.income, el.hasInc = inc, true
		}
		ae.Need = NeedUnknown
		if pov, ok := profile.KnownPovertyRate(); ok {
			ae.PovertyRate = &pov
			ae.Need = s.cfg.Recommend.needLevel(pov)
			el.poverty = &pov
			povPop += float64(pop)
			povSum += pov * float64(pop)
		}
		if nv, ok := profile.KnownNoVehicleRate(); ok {
			ae.NoVehicleRate = &nv
			el.noVehicle = &nv
			vehPop += float64(pop)
			vehSum += nv * float64(pop)
		}
		res.Areas[i] = ae
		pool = append(pool, el)
		totalStations += float64(a.Stations)
		totalPop += float64(pop)
	}
	if len(pool) == 0 {
		return res, ErrNoEligibleAreas
	}

	var incomes []float64
	for _, el := range pool {
		if el.hasInc {
			incomes = append(incomes, el.income)
		}
	}

	var topMean float64
	parityKnown := false
	if len(incomes) >= 2 {
		low, err := stats.Percentile(s.cfg.LowPercentile, incomes)
		if err != nil {
			return res, fmt.Errorf("equity low percentile: %w", err)
		}
		high, err := stats.Percentile(s.cfg.HighPercentile, incomes)
		if err != nil {
			return res, fmt.Errorf("equity high percentile: %w", err)
		}
		var bottom, top []float64
		for _, el := range pool {
			if !el.hasInc {
				continue
			}
			if el.income <= low {
				bottom = append(bottom, el.density)
			}
			if el.income >= high {
				top = append(top, el.density)
			}
		}
		d, err := stats.Disparity(bottom, top)
		if err != nil {
			return res, fmt.Errorf("equity disparity: %w", err)
		}
		res.Disparity = &d
		if topMean, err = stats.Mean(top); err != nil {
			return res, fmt.Errorf("equity top group mean: %w", err)
		}
		parityKnown = true
	}

	for _, el := range pool {
		var parity *float64
		if parityKnown {
			p := 1 + math.Min(stats.DisparityOfMeans(el.density, topMean), 0)
			parity = &p
		}
		sc, components := s.combine(el.density, parity, el.poverty, el.noVehicle)
		ae := &res.Areas[el.idx]
		ae.Score = &sc
		ae.Components = components
		ae.Priority = priority(ae.Adequacy, ae.Need)
		ae.Recommendations = s.cfg.Recommend.recommend(*ae)
	}

	if len(pool) >= 2 {
		densities := make([]float64, len(pool))
		for i, el := range pool {
			densities[i] = el.density
		}
		g, err := stats.Gini(densities)
		if err != nil {
			return res, fmt.Errorf("equity gini: %w", err)
		}
		res.Gini = &g
	}

	res.StationsPer1000 = totalStations * 1000 / totalPop
	var regionParity *float64
	if res.Disparity != nil {
		p := 1 + math.Min(*res.Disparity, 0)
		regionParity = &p
	}
	if povPop > 0 {
		v := povSum / povPop
		res.PovertyRate = &v
	}
	if vehPop > 0 {
		v := vehSum / vehPop
		res.NoVehicleRate = &v
	}
	res.Score, _ = s.combine(res.StationsPer1000, regionParity, res.PovertyRate, res.NoVehicleRate)
	return res, nil
}

// combine returns the score and the 0-1 terms that entered it.
func (s EquityScorer) combine(density float64, parity, poverty, noVehicle *float64) (Score, map[string]float64) {
	values := map[string]float64{
		ComponentAccess: math.Min(density/s.cfg.TargetPer1000, 1),
	}
	if parity != nil {
		values[ComponentParity] = *parity
	}
	if poverty != nil {
		values[ComponentAffordability] = s.cfg.AffordabilityCurve.At(*poverty)
	}
	if noVehicle != nil {
		values[ComponentMobility] = s.cfg.MobilityCurve.At(*noVehicle)
	}
	weights := map[string]float64{
		ComponentAccess:        s.cfg.AccessWeight,
		ComponentParity:        s.cfg.ParityWeight,
		ComponentAffordability: s.cfg.AffordabilityWeight,
		ComponentMobility:      s.cfg.MobilityWeight,
	}
	v, _, ok := renormalize(values, weights)
	if !ok {
		return NewScore(0), values
	}
	return NewScore(10 * v), values
}

func incomeBand(income float64) string {
	switch {
	case income < 50000:
		return IncomeLow
	case income < 100000:
		return IncomeMiddle
	default:
		return IncomeHigh
	}
}

func adequacy(per1000 float64) string {
	switch {
	case per1000 >= 1.0:
		return AdequacyAdequate
	case per1000 >= 0.5:
		return AdequacyLimited
	case per1000 > 0:
		return AdequacyPoor
	default:
		return AdequacyNone
	}
}

// ByScore orders area results ascending by score, excluded areas last,
// then by geography ID.
func ByScore(areas []AreaEquity) []AreaEquity {
	out := append([]AreaEquity(nil), areas...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Score == nil) != (b.Score == nil) {
			return a.Score != nil
		}
		if a.Score != nil && a.Score.Value != b.Score.Value {
			return a.Score.Value < b.Score.Value
		}
		return a.GeographyID < b.GeographyID
	})
	return out
}
