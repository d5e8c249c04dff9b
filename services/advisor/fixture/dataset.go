// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fixture serves a recorded dataset through the enrichment fetcher
// contracts, so the advisor can run offline against known inputs.
//
// A dataset names the geographies and stations to analyze together with
// the upstream answers: demographic profiles per geography, points of
// interest, and weather zones. Failures can be injected per dimension to
// exercise partial results.
package fixture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/EVChargeAdvisor/pkg/validation"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/analysis"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
)

// ErrInvalidDataset is returned when a dataset fails validation.
var ErrInvalidDataset = errors.New("invalid dataset")

// Dataset is one recorded analysis input.
type Dataset struct {
	Name        string                         `yaml:"name" json:"name"`
	Region      datatypes.BBox                 `yaml:"region" json:"region"`
	Geographies []datatypes.Geography          `yaml:"geographies" json:"geographies"`
	Stations    []datatypes.ChargingStation    `yaml:"stations" json:"stations"`
	Profiles    []datatypes.DemographicProfile `yaml:"demographics" json:"demographics"`
	POIs        []POI                          `yaml:"pois" json:"pois"`
	Weather     []WeatherZone                  `yaml:"weather" json:"weather"`
	Failures    Failures                       `yaml:"failures" json:"failures"`

	// Latency delays every fetch. Fetches still honor cancellation.
	Latency time.Duration `yaml:"latency" json:"latency"`
}

// POI is a point of interest. Amenity and access fetches measure
// distances from the station to each POI.
type POI struct {
	Type     datatypes.AmenityType `yaml:"type" json:"type"`
	Name     string                `yaml:"name" json:"name"`
	Location datatypes.GeoPoint    `yaml:"location" json:"location"`
}

// WeatherZone assigns a climate profile to every station inside Bounds.
// Zones are matched in order. A zone with zero Bounds matches everywhere.
type WeatherZone struct {
	Bounds  datatypes.BBox           `yaml:"bounds" json:"bounds"`
	Profile datatypes.WeatherProfile `yaml:"profile" json:"profile"`
}

// Failures lists the lookups that fail with ErrSimulated.
type Failures struct {
	// Demographics holds geography IDs.
	Demographics []string `yaml:"demographics" json:"demographics"`
	// Amenities, Access and Weather hold station IDs.
	Amenities []string `yaml:"amenities" json:"amenities"`
	Access    []string `yaml:"access" json:"access"`
	Weather   []string `yaml:"weather" json:"weather"`
}

// Load reads a dataset from a YAML or JSON file and validates it.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	return ds, nil
}

// Parse decodes and validates a dataset. JSON input is accepted as YAML.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDataset)
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks identifiers, coordinates and cross references.
//
// Stations may name an unknown geography; the analyzer reassigns them to
// the nearest centroid. Profiles for unknown geographies are rejected.
func (d *Dataset) Validate() error {
	if len(d.Geographies) == 0 {
		return fmt.Errorf("%w: no geographies", ErrInvalidDataset)
	}
	if !d.Region.IsZero() {
		if err := d.Region.Validate(); err != nil {
			return fmt.Errorf("%w: region: %v", ErrInvalidDataset, err)
		}
	}

	geos := make(map[string]bool, len(d.Geographies))
	for _, g := range d.Geographies {
		if err := validation.ValidateIdentifier(g.ID); err != nil {
			return fmt.Errorf("%w: geography: %v", ErrInvalidDataset, err)
		}
		if geos[g.ID] {
			return fmt.Errorf("%w: duplicate geography %q", ErrInvalidDataset, g.ID)
		}
		if err := g.Centroid.Validate(); err != nil {
			return fmt.Errorf("%w: geography %s: %v", ErrInvalidDataset, g.ID, err)
		}
		geos[g.ID] = true
	}

	stations := make(map[string]bool, len(d.Stations))
	for _, s := range d.Stations {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDataset, err)
		}
		if stations[s.ID] {
			return fmt.Errorf("%w: duplicate station %q", ErrInvalidDataset, s.ID)
		}
		stations[s.ID] = true
	}

	for _, p := range d.Profiles {
		if !geos[p.GeographyID] {
			return fmt.Errorf("%w: demographics for unknown geography %q", ErrInvalidDataset, p.GeographyID)
		}
	}
	for _, p := range d.POIs {
		if p.Type == "" {
			return fmt.Errorf("%w: poi %q has no type", ErrInvalidDataset, p.Name)
		}
		if err := p.Location.Validate(); err != nil {
			return fmt.Errorf("%w: poi %q: %v", ErrInvalidDataset, p.Name, err)
		}
	}
	for i, z := range d.Weather {
		if !z.Bounds.IsZero() {
			if err := z.Bounds.Validate(); err != nil {
				return fmt.Errorf("%w: weather zone %d: %v", ErrInvalidDataset, i, err)
			}
		}
	}

	for _, id := range d.Failures.Demographics {
		if !geos[id] {
			return fmt.Errorf("%w: failure for unknown geography %q", ErrInvalidDataset, id)
		}
	}
	for _, ids := range [][]string{d.Failures.Amenities, d.Failures.Access, d.Failures.Weather} {
		for _, id := range ids {
			if !stations[id] {
				return fmt.Errorf("%w: failure for unknown station %q", ErrInvalidDataset, id)
			}
		}
	}
	return nil
}

// Request returns the analysis request the dataset describes.
func (d *Dataset) Request() analysis.Request {
	req := analysis.Request{
		Region:      d.Region,
		Geographies: make([]datatypes.Geography, len(d.Geographies)),
		Stations:    make([]datatypes.ChargingStation, len(d.Stations)),
	}
	copy(req.Geographies, d.Geographies)
	for i, s := range d.Stations {
		req.Stations[i] = s.Clone()
	}
	return req
}
