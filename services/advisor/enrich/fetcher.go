// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
)

// =============================================================================
// Fetcher contract
// =============================================================================

// Query is a fetcher request. Params must name every field that affects
// the result; it is hashed into the cache key.
type Query interface {
	Params() map[string]string
}

// Fetcher retrieves already-parsed domain records from an external source.
//
// The advisor does not know how a fetcher talks to its source. A fetcher
// should honor ctx; one that does not is abandoned at its timeout.
type Fetcher[Q Query, R any] interface {
	// Source names the upstream, e.g. "census_acs". It is the cache key
	// namespace.
	Source() string

	// Fetch returns the record for q.
	Fetch(ctx context.Context, q Q) (R, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc[Q Query, R any] struct {
	Name string
	Fn   func(ctx context.Context, q Q) (R, error)
}

// Source returns Name.
func (f FetcherFunc[Q, R]) Source() string { return f.Name }

// Fetch calls Fn.
func (f FetcherFunc[Q, R]) Fetch(ctx context.Context, q Q) (R, error) { return f.Fn(ctx, q) }

// Fetchers groups the collaborators for each enrichment dimension.
// A nil fetcher leaves its dimension missing.
type Fetchers struct {
	Demographics Fetcher[DemographicQuery, datatypes.DemographicProfile]
	Amenities    Fetcher[AmenityQuery, datatypes.AmenitySet]
	Access       Fetcher[AmenityQuery, datatypes.AmenitySet]
	Weather      Fetcher[WeatherQuery, datatypes.WeatherProfile]
}

// =============================================================================
// Queries
// =============================================================================

// DemographicQuery asks for the profile of one geography.
type DemographicQuery struct {
	GeographyID string
}

// Params implements Query.
func (q DemographicQuery) Params() map[string]string {
	return map[string]string{"geography_id": q.GeographyID}
}

// AmenityQuery asks for points of interest of the given types within
// RadiusM of Location.
type AmenityQuery struct {
	Location datatypes.GeoPoint
	RadiusM  float64
	Types    []datatypes.AmenityType
}

// Params implements Query. Coordinates are rounded to 5 decimals (about a
// meter) and types are sorted, so equivalent queries share a key.
func (q AmenityQuery) Params() map[string]string {
	types := make([]string, len(q.Types))
	for i, t := range q.Types {
		types[i] = string(t)
	}
	sort.Strings(types)
	return map[string]string{
		"lat":      fmt.Sprintf("%.5f", q.Location.Lat),
		"lon":      fmt.Sprintf("%.5f", q.Location.Lon),
		"radius_m": fmt.Sprintf("%.0f", q.RadiusM),
		"types":    strings.Join(types, ","),
	}
}

// WeatherQuery asks for the climate profile at Location.
type WeatherQuery struct {
	Location datatypes.GeoPoint
}

// Params implements Query. Weather is regional, so coordinates are rounded
// to 2 decimals (about a kilometer) and nearby stations share one fetch.
func (q WeatherQuery) Params() map[string]string {
	return map[string]string{
		"lat": fmt.Sprintf("%.2f", q.Location.Lat),
		"lon": fmt.Sprintf("%.2f", q.Location.Lon),
	}
}

// Amenity type groups for the two amenity dimensions.
var (
	AmenityTypes = []datatypes.AmenityType{datatypes.AmenityDining, datatypes.AmenityShopping, datatypes.AmenityHealthcare}
	AccessTypes  = []datatypes.AmenityType{datatypes.AmenityTransit, datatypes.AmenityParking}
)

// =============================================================================
// Errors
// =============================================================================

// FetchError wraps a failure reported by, or imposed on, a fetcher.
// It is recoverable: the affected dimension is marked missing.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
