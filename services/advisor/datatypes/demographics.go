// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "math"

// Geography is a census-style unit covering part of the analyzed region.
type Geography struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name,omitempty" yaml:"name"`
	Centroid GeoPoint `json:"centroid" yaml:"centroid"`
}

// DemographicProfile holds the statistics of one geography.
//
// Every statistic is optional. A nil field means the source did not report
// it and must be treated as unknown, never as zero.
type DemographicProfile struct {
	GeographyID          string   `json:"geography_id" yaml:"geography_id"`
	Population           *int64   `json:"population,omitempty" yaml:"population"`
	MedianIncome         *float64 `json:"median_income,omitempty" yaml:"median_income"`
	PovertyRate          *float64 `json:"poverty_rate,omitempty" yaml:"poverty_rate"`
	VehicleOwnershipRate *float64 `json:"vehicle_ownership_rate,omitempty" yaml:"vehicle_ownership_rate"`
}

// KnownPopulation returns the population when it is known and positive.
func (d DemographicProfile) KnownPopulation() (int64, bool) {
	if d.Population == nil || *d.Population <= 0 {
		return 0, false
	}
	return *d.Population, true
}

// KnownIncome returns the median income when it is known.
func (d DemographicProfile) KnownIncome() (float64, bool) {
	if d.MedianIncome == nil {
		return 0, false
	}
	return *d.MedianIncome, true
}

// KnownPovertyRate returns the poverty rate when it is a share in [0, 1].
func (d DemographicProfile) KnownPovertyRate() (float64, bool) {
	return knownShare(d.PovertyRate)
}

// KnownNoVehicleRate returns the share of households without a vehicle,
// derived from VehicleOwnershipRate.
func (d DemographicProfile) KnownNoVehicleRate() (float64, bool) {
	own, ok := knownShare(d.VehicleOwnershipRate)
	if !ok {
		return 0, false
	}
	return 1 - own, true
}

func knownShare(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || *v < 0 || *v > 1 {
		return 0, false
	}
	return *v, true
}

// Int64Ptr and Float64Ptr build optional fields in literals.
func Int64Ptr(v int64) *int64 { return &v }

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }
