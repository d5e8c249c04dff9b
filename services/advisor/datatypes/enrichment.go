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

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AmenityType categorizes a point of interest near a station.
type AmenityType string

const (
	AmenityDining     AmenityType = "dining"
	AmenityShopping   AmenityType = "shopping"
	AmenityTransit    AmenityType = "transit"
	AmenityParking    AmenityType = "parking"
	AmenityHealthcare AmenityType = "healthcare"
)

// Amenity is one point of interest and its distance from the station.
type Amenity struct {
	Type      AmenityType `json:"type" yaml:"type"`
	Name      string      `json:"name,omitempty" yaml:"name"`
	DistanceM float64     `json:"distance_m" yaml:"distance_m"`
}

// AmenitySet is the result of one amenity search around a station.
type AmenitySet struct {
	RadiusM float64   `json:"radius_m" yaml:"radius_m"`
	Entries []Amenity `json:"entries" yaml:"entries"`
}

// CountWithin counts entries of type t no farther than radiusM.
func (a AmenitySet) CountWithin(t AmenityType, radiusM float64) int {
	n := 0
	for _, e := range a.Entries {
		if e.Type == t && e.DistanceM <= radiusM {
			n++
		}
	}
	return n
}

// WeatherProfile summarizes the climate at a station.
type WeatherProfile struct {
	MeanTempC float64  `json:"mean_temp_c" yaml:"mean_temp_c"`
	MinTempC  *float64 `json:"min_temp_c,omitempty" yaml:"min_temp_c"`
	MaxTempC  *float64 `json:"max_temp_c,omitempty" yaml:"max_temp_c"`
}

// =============================================================================
// Dimension
// =============================================================================

// Dimension names, used in missing markers, logs, and metrics.
const (
	DimDemographics = "demographics"
	DimAmenities    = "amenities"
	DimAccess       = "access"
	DimWeather      = "weather"
)

// missingLiteral is the JSON encoding of an absent dimension.
const missingLiteral = "missing"

// Dimension is one independently optional part of an enriched station.
//
// It is either present with a value, or missing with a reason. The zero
// value is missing. A Dimension is never partially filled.
type Dimension[T any] struct {
	value   T
	present bool
	reason  string
}

// Present returns a dimension holding v.
func Present[T any](v T) Dimension[T] {
	return Dimension[T]{value: v, present: true}
}

// Missing returns an absent dimension with the given reason.
func Missing[T any](reason string) Dimension[T] {
	return Dimension[T]{reason: reason}
}

// Get returns the value and whether it is present.
func (d Dimension[T]) Get() (T, bool) {
	return d.value, d.present
}

// IsMissing reports whether the dimension is absent.
func (d Dimension[T]) IsMissing() bool {
	return !d.present
}

// Reason explains why the dimension is missing. Empty when present.
func (d Dimension[T]) Reason() string {
	return d.reason
}

// MarshalJSON encodes the value, or the string "missing" when absent.
func (d Dimension[T]) MarshalJSON() ([]byte, error) {
	if !d.present {
		return json.Marshal(missingLiteral)
	}
	return json.Marshal(d.value)
}

// UnmarshalJSON accepts either "missing" or an encoded value.
func (d *Dimension[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte(`"`+missingLiteral+`"`)) {
		*d = Missing[T](missingLiteral)
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode dimension: %w", err)
	}
	*d = Present(v)
	return nil
}

// =============================================================================
// EnrichedStation
// =============================================================================

// EnrichedStation joins a station with its context for one analysis run.
//
// Amenities holds the dining, shopping, and healthcare search; Access holds
// the transit and parking search. They are fetched separately so that one
// failing does not take the other down.
type EnrichedStation struct {
	Station      ChargingStation               `json:"station"`
	Demographics Dimension[DemographicProfile] `json:"demographics"`
	Amenities    Dimension[AmenitySet]         `json:"amenities"`
	Access       Dimension[AmenitySet]         `json:"access"`
	Weather      Dimension[WeatherProfile]     `json:"weather"`
}

// MissingDimensions lists absent dimensions in a fixed order.
func (e EnrichedStation) MissingDimensions() []string {
	var out []string
	if e.Demographics.IsMissing() {
		out = append(out, DimDemographics)
	}
	if e.Amenities.IsMissing() {
		out = append(out, DimAmenities)
	}
	if e.Access.IsMissing() {
		out = append(out, DimAccess)
	}
	if e.Weather.IsMissing() {
		out = append(out, DimWeather)
	}
	return out
}

// HasAnyDimension reports whether at least one dimension was enriched.
func (e EnrichedStation) HasAnyDimension() bool {
	return len(e.MissingDimensions()) < 4
}
