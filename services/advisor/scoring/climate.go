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
	"fmt"
	"math"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
)

// Impact levels for range derate.
const (
	ImpactMinimal  = "minimal"
	ImpactLow      = "low"
	ImpactModerate = "moderate"
	ImpactHigh     = "high"
)

// ClimateConfig configures ClimateScorer. Curve maps temperature in
// degrees Celsius to a range factor in (0, 1].
type ClimateConfig struct {
	Curve Curve `yaml:"curve" json:"curve" validate:"min=1"`
}

// DefaultClimateConfig returns the default derate curve, flat at 1.0
// between 20 and 25 degrees.
func DefaultClimateConfig() ClimateConfig {
	return ClimateConfig{Curve: Curve{
		{X: -20, Y: 0.50},
		{X: -10, Y: 0.60},
		{X: 0, Y: 0.75},
		{X: 10, Y: 0.90},
		{X: 20, Y: 1.00},
		{X: 25, Y: 1.00},
		{X: 30, Y: 0.95},
		{X: 35, Y: 0.90},
		{X: 40, Y: 0.85},
	}}
}

// Validate checks the curve shape and that every factor is in (0, 1].
func (c ClimateConfig) Validate() error {
	if err := c.Curve.Validate(); err != nil {
		return err
	}
	for i, p := range c.Curve {
		if p.Y <= 0 || p.Y > 1 {
			return fmt.Errorf("%w: factor %.3f at index %d outside (0, 1]", ErrInvalidCurve, p.Y, i)
		}
	}
	return nil
}

// ClimateResult annotates one station with its expected range derate.
type ClimateResult struct {
	MeanTempC    float64 `json:"mean_temp_c"`
	Factor       float64 `json:"factor"`
	RangeLossPct float64 `json:"range_loss_pct"`
	Impact       string  `json:"impact"`
	Score        Score   `json:"score"`

	// WorstCaseFactor is the lower of the factors at the seasonal
	// extremes, when the profile carries them.
	WorstCaseFactor *float64 `json:"worst_case_factor,omitempty"`
}

// ClimateScorer maps temperature to a range-derate factor.
type ClimateScorer struct {
	cfg ClimateConfig
}

// NewClimateScorer creates a scorer.
func NewClimateScorer(cfg ClimateConfig) ClimateScorer {
	return ClimateScorer{cfg: cfg}
}

// Factor returns the range factor at tempC.
func (s ClimateScorer) Factor(tempC float64) float64 {
	return s.cfg.Curve.At(tempC)
}

// Score annotates a weather profile. The bool is false when the mean
// temperature is not a number.
func (s ClimateScorer) Score(w datatypes.WeatherProfile) (ClimateResult, bool) {
	if math.IsNaN(w.MeanTempC) || math.IsInf(w.MeanTempC, 0) {
		return ClimateResult{}, false
	}
	f := s.Factor(w.MeanTempC)
	res := ClimateResult{
		MeanTempC:    w.MeanTempC,
		Factor:       f,
		RangeLossPct: math.Round((1-f)*1000) / 10,
		Impact:       ImpactLevel(f),
		Score:        NewScore(10 * f),
	}

	worst := math.Inf(1)
	for _, t := range []*float64{w.MinTempC, w.MaxTempC} {
		if t != nil && !math.IsNaN(*t) {
			worst = math.Min(worst, s.Factor(*t))
		}
	}
	if !math.IsInf(worst, 1) {
		res.WorstCaseFactor = &worst
	}
	return res, true
}

// ImpactLevel classifies a range factor.
func ImpactLevel(factor float64) string {
	switch {
	case factor >= 0.95:
		return ImpactMinimal
	case factor >= 0.85:
		return ImpactLow
	case factor >= 0.70:
		return ImpactModerate
	default:
		return ImpactHigh
	}
}
