// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package geoindex

import (
	"math"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
)

// EarthRadiusM is the IUGG mean Earth radius in meters.
const EarthRadiusM = 6371008.8

// MetersPerDegree is the length of one degree of latitude (and of
// longitude at the equator) on the mean sphere.
const MetersPerDegree = EarthRadiusM * math.Pi / 180

// Haversine returns the great-circle distance between a and b in meters.
// Identical points are exactly 0 apart.
func Haversine(a, b datatypes.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Offset moves p by the given meters north and east using a local
// equirectangular step. Used for cell geometry, not for distances.
func Offset(p datatypes.GeoPoint, northM, eastM float64) datatypes.GeoPoint {
	lat := p.Lat + northM/MetersPerDegree
	cos := math.Cos(p.Lat * math.Pi / 180)
	lon := p.Lon
	if cos > 1e-12 {
		lon += eastM / (MetersPerDegree * cos)
	}
	return datatypes.GeoPoint{Lat: lat, Lon: lon}
}

// AreaKm2 approximates the area of a lat/lon box on the sphere.
func AreaKm2(b datatypes.BBox) float64 {
	r := EarthRadiusM / 1000
	lat1 := b.MinLat * math.Pi / 180
	lat2 := b.MaxLat * math.Pi / 180
	dLon := (b.MaxLon - b.MinLon) * math.Pi / 180
	return r * r * dLon * math.Abs(math.Sin(lat2)-math.Sin(lat1))
}
