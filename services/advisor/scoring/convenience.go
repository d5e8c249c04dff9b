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
	"math"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
)

// Saturation awards MaxPoints * min(count, SaturateAt) / SaturateAt.
// Amenities past SaturateAt add nothing.
type Saturation struct {
	MaxPoints  float64 `yaml:"max_points" json:"max_points" validate:"gte=0"`
	SaturateAt int     `yaml:"saturate_at" json:"saturate_at" validate:"gte=1"`
}

// Points applies the saturating curve to count.
func (s Saturation) Points(count int) float64 {
	if count <= 0 || s.SaturateAt <= 0 {
		return 0
	}
	return s.MaxPoints * float64(min(count, s.SaturateAt)) / float64(s.SaturateAt)
}

// ConvenienceConfig configures ConvenienceScorer.
//
// Defaults sum to 10: dining 3, shopping 2, transit 3, and services 2
// (parking 1 plus healthcare 1).
type ConvenienceConfig struct {
	AmenityRadiusM float64    `yaml:"amenity_radius_m" json:"amenity_radius_m" validate:"gt=0"`
	AccessRadiusM  float64    `yaml:"access_radius_m" json:"access_radius_m" validate:"gt=0"`
	Dining         Saturation `yaml:"dining" json:"dining"`
	Shopping       Saturation `yaml:"shopping" json:"shopping"`
	Transit        Saturation `yaml:"transit" json:"transit"`
	Parking        Saturation `yaml:"parking" json:"parking"`
	Healthcare     Saturation `yaml:"healthcare" json:"healthcare"`
}

// DefaultConvenienceConfig returns the documented defaults.
func DefaultConvenienceConfig() ConvenienceConfig {
	return ConvenienceConfig{
		AmenityRadiusM: 500,
		AccessRadiusM:  800,
		Dining:         Saturation{MaxPoints: 3, SaturateAt: 2},
		Shopping:       Saturation{MaxPoints: 2, SaturateAt: 2},
		Transit:        Saturation{MaxPoints: 3, SaturateAt: 3},
		Parking:        Saturation{MaxPoints: 1, SaturateAt: 1},
		Healthcare:     Saturation{MaxPoints: 1, SaturateAt: 1},
	}
}

// ConvenienceResult is one station's convenience breakdown. A nil
// sub-score was not computable because its dimension is missing.
type ConvenienceResult struct {
	Score    Score    `json:"score"`
	Dining   *float64 `json:"dining,omitempty"`
	Shopping *float64 `json:"shopping,omitempty"`
	Transit  *float64 `json:"transit,omitempty"`
	Services *float64 `json:"services,omitempty"`

	// Missing lists the dimensions that could not contribute.
	Missing []string `json:"missing,omitempty"`
}

// Partial reports whether some sub-scores were left out.
func (r ConvenienceResult) Partial() bool {
	return len(r.Missing) > 0
}

// ConvenienceScorer scores the amenities around a station.
type ConvenienceScorer struct {
	cfg ConvenienceConfig
}

// NewConvenienceScorer creates a scorer.
func NewConvenienceScorer(cfg ConvenienceConfig) ConvenienceScorer {
	return ConvenienceScorer{cfg: cfg}
}

// Score sums the sub-scores that the station's available dimensions
// support. Missing dimensions are left out, not counted as zero. The
// bool is false when neither amenity dimension is present.
func (s ConvenienceScorer) Score(st datatypes.EnrichedStation) (ConvenienceResult, bool) {
	var res ConvenienceResult
	amen, hasAmen := st.Amenities.Get()
	acc, hasAcc := st.Access.Get()
	if !hasAmen && !hasAcc {
		return res, false
	}

	var total, services float64
	servicesKnown := false

	if hasAmen {
		d := s.cfg.Dining.Points(amen.CountWithin(datatypes.AmenityDining, s.cfg.AmenityRadiusM))
		sh := s.cfg.Shopping.Points(amen.CountWithin(datatypes.AmenityShopping, s.cfg.AmenityRadiusM))
		services += s.cfg.Healthcare.Points(amen.CountWithin(datatypes.AmenityHealthcare, s.cfg.AmenityRadiusM))
		servicesKnown = true
		res.Dining, res.Shopping = &d, &sh
		total += d + sh
	} else {
		res.Missing = append(res.Missing, datatypes.DimAmenities)
	}

	if hasAcc {
		tr := s.cfg.Transit.Points(acc.CountWithin(datatypes.AmenityTransit, s.cfg.AccessRadiusM))
		services += s.cfg.Parking.Points(acc.CountWithin(datatypes.AmenityParking, s.cfg.AccessRadiusM))
		servicesKnown = true
		res.Transit = &tr
		total += tr
	} else {
		res.Missing = append(res.Missing, datatypes.DimAccess)
	}

	if servicesKnown {
		res.Services = &services
		total += services
	}
	res.Score = NewScore(math.Min(total, ScoreMax))
	return res, true
}
