// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fixture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/enrich"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/geoindex"
)

// Fetcher source names. They namespace cache keys.
const (
	SourceDemographics = "fixture_census"
	SourceAmenities    = "fixture_poi"
	SourceAccess       = "fixture_access"
	SourceWeather      = "fixture_weather"
)

var (
	// ErrSimulated is returned for lookups listed in Failures.
	ErrSimulated = errors.New("simulated upstream failure")

	// ErrNotFound is returned when the dataset has no answer for a query.
	ErrNotFound = errors.New("not recorded")
)

// Server answers enrichment queries from a dataset.
//
// It is safe for concurrent use once built.
type Server struct {
	ds       *Dataset
	profiles map[string]datatypes.DemographicProfile
	pois     *geoindex.Index[POI]
	byPoint  map[string]string
	failures map[string]map[string]bool
	calls    atomic.Int64
}

// NewServer indexes the dataset.
func NewServer(ds *Dataset) (*Server, error) {
	s := &Server{
		ds:       ds,
		profiles: make(map[string]datatypes.DemographicProfile, len(ds.Profiles)),
		pois:     geoindex.New[POI](),
		byPoint:  make(map[string]string, len(ds.Stations)),
		failures: map[string]map[string]bool{
			SourceDemographics: set(ds.Failures.Demographics),
			SourceAmenities:    set(ds.Failures.Amenities),
			SourceAccess:       set(ds.Failures.Access),
			SourceWeather:      set(ds.Failures.Weather),
		},
	}
	for _, p := range ds.Profiles {
		s.profiles[p.GeographyID] = p
	}
	for _, p := range ds.POIs {
		if err := s.pois.Insert(p.Location, p); err != nil {
			return nil, fmt.Errorf("index poi %q: %w", p.Name, err)
		}
	}
	for _, st := range ds.Stations {
		s.byPoint[pointKey(st.Location)] = st.ID
	}
	return s, nil
}

// Fetchers returns the four enrichment fetchers backed by the dataset.
func (s *Server) Fetchers() enrich.Fetchers {
	return enrich.Fetchers{
		Demographics: enrich.FetcherFunc[enrich.DemographicQuery, datatypes.DemographicProfile]{
			Name: SourceDemographics, Fn: s.demographics,
		},
		Amenities: enrich.FetcherFunc[enrich.AmenityQuery, datatypes.AmenitySet]{
			Name: SourceAmenities, Fn: s.amenityFetch(SourceAmenities),
		},
		Access: enrich.FetcherFunc[enrich.AmenityQuery, datatypes.AmenitySet]{
			Name: SourceAccess, Fn: s.amenityFetch(SourceAccess),
		},
		Weather: enrich.FetcherFunc[enrich.WeatherQuery, datatypes.WeatherProfile]{
			Name: SourceWeather, Fn: s.weather,
		},
	}
}

// Calls returns how many fetches reached the dataset.
func (s *Server) Calls() int64 {
	return s.calls.Load()
}

func (s *Server) demographics(ctx context.Context, q enrich.DemographicQuery) (datatypes.DemographicProfile, error) {
	if err := s.enter(ctx); err != nil {
		return datatypes.DemographicProfile{}, err
	}
	if s.failures[SourceDemographics][q.GeographyID] {
		return datatypes.DemographicProfile{}, ErrSimulated
	}
	p, ok := s.profiles[q.GeographyID]
	if !ok {
		return datatypes.DemographicProfile{}, fmt.Errorf("geography %s: %w", q.GeographyID, ErrNotFound)
	}
	return p, nil
}

func (s *Server) amenityFetch(source string) func(context.Context, enrich.AmenityQuery) (datatypes.AmenitySet, error) {
	return func(ctx context.Context, q enrich.AmenityQuery) (datatypes.AmenitySet, error) {
		if err := s.enter(ctx); err != nil {
			return datatypes.AmenitySet{}, err
		}
		if s.failures[source][s.byPoint[pointKey(q.Location)]] {
			return datatypes.AmenitySet{}, ErrSimulated
		}
		hits, err := s.pois.WithinRadius(q.Location, q.RadiusM)
		if err != nil {
			return datatypes.AmenitySet{}, err
		}
		wanted := make(map[datatypes.AmenityType]bool, len(q.Types))
		for _, t := range q.Types {
			wanted[t] = true
		}
		out := datatypes.AmenitySet{RadiusM: q.RadiusM, Entries: []datatypes.Amenity{}}
		for _, h := range hits {
			if !wanted[h.Payload.Type] {
				continue
			}
			out.Entries = append(out.Entries, datatypes.Amenity{
				Type:      h.Payload.Type,
				Name:      h.Payload.Name,
				DistanceM: h.DistanceM,
			})
		}
		return out, nil
	}
}

func (s *Server) weather(ctx context.Context, q enrich.WeatherQuery) (datatypes.WeatherProfile, error) {
	if err := s.enter(ctx); err != nil {
		return datatypes.WeatherProfile{}, err
	}
	if s.failures[SourceWeather][s.byPoint[pointKey(q.Location)]] {
		return datatypes.WeatherProfile{}, ErrSimulated
	}
	for _, z := range s.ds.Weather {
		if z.Bounds.IsZero() || z.Bounds.Contains(q.Location) {
			return z.Profile, nil
		}
	}
	return datatypes.WeatherProfile{}, fmt.Errorf("weather at %s: %w", q.Location, ErrNotFound)
}

// enter counts the call and waits out the configured latency.
func (s *Server) enter(ctx context.Context) error {
	s.calls.Add(1)
	if s.ds.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.ds.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func pointKey(p datatypes.GeoPoint) string {
	return fmt.Sprintf("%.5f,%.5f", p.Lat, p.Lon)
}

func set(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
