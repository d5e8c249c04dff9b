// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the records that flow through the advisor
// pipeline: stations, demographics, amenities, weather, and the enriched
// station that joins them.
package datatypes

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate indicates a latitude or longitude out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// GeoPoint is a WGS84 position in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate checks -90 <= Lat <= 90 and -180 <= Lon <= 180.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, p.Lon)
	}
	return nil
}

// String formats the point with 6 decimals (about 0.1 m).
func (p GeoPoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// BBox is an axis-aligned latitude/longitude rectangle.
// Boxes crossing the antimeridian are not supported.
type BBox struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// Validate checks both corners and that Min <= Max on each axis.
func (b BBox) Validate() error {
	if err := (GeoPoint{Lat: b.MinLat, Lon: b.MinLon}).Validate(); err != nil {
		return err
	}
	if err := (GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon}).Validate(); err != nil {
		return err
	}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return fmt.Errorf("%w: bbox min exceeds max", ErrInvalidCoordinate)
	}
	return nil
}

// IsZero reports whether the box is the zero value.
func (b BBox) IsZero() bool {
	return b == BBox{}
}

// Contains reports whether p lies inside the box, edges included.
func (b BBox) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Center returns the midpoint of the box.
func (b BBox) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// BoundingBox returns the smallest box containing every point.
// The second return is false when points is empty.
func BoundingBox(points []GeoPoint) (BBox, bool) {
	if len(points) == 0 {
		return BBox{}, false
	}
	b := BBox{MinLat: points[0].Lat, MaxLat: points[0].Lat, MinLon: points[0].Lon, MaxLon: points[0].Lon}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
	}
	return b, true
}

// metersPerDegreeLat matches the mean-radius sphere used for distances.
const metersPerDegreeLat = 111195.08

// Expand grows the box by meters on every side. Longitude growth uses the
// latitude farthest from the equator so the result always covers the
// requested margin. Latitudes are clamped to the poles.
func (b BBox) Expand(meters float64) BBox {
	if meters <= 0 {
		return b
	}
	dLat := meters / metersPerDegreeLat
	out := BBox{
		MinLat: math.Max(-90, b.MinLat-dLat),
		MaxLat: math.Min(90, b.MaxLat+dLat),
		MinLon: b.MinLon,
		MaxLon: b.MaxLon,
	}
	cos := math.Cos(math.Max(math.Abs(out.MinLat), math.Abs(out.MaxLat)) * math.Pi / 180)
	if cos < 1e-6 {
		out.MinLon, out.MaxLon = -180, 180
		return out
	}
	dLon := meters / (metersPerDegreeLat * cos)
	out.MinLon = math.Max(-180, b.MinLon-dLon)
	out.MaxLon = math.Min(180, b.MaxLon+dLon)
	return out
}
