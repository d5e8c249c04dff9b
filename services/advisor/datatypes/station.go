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
	"errors"
	"fmt"
)

// ChargerLevel classifies a connector.
type ChargerLevel string

const (
	LevelOne    ChargerLevel = "level1"
	LevelTwo    ChargerLevel = "level2"
	LevelDCFast ChargerLevel = "dc_fast"
)

// Valid reports whether the level is one of the known constants.
func (l ChargerLevel) Valid() bool {
	switch l {
	case LevelOne, LevelTwo, LevelDCFast:
		return true
	}
	return false
}

// StationStatus is the lifecycle state reported by the station feed.
type StationStatus string

const (
	StatusOperational StationStatus = "operational"
	StatusPlanned     StationStatus = "planned"
	StatusUnknown     StationStatus = "unknown"
)

// Connector describes one group of identical plugs at a station.
type Connector struct {
	Level   ChargerLevel `json:"level" yaml:"level"`
	PowerKW float64      `json:"power_kw" yaml:"power_kw"`
	Count   int          `json:"count" yaml:"count"`
}

// ChargingStation is a station record as parsed by the station fetcher.
//
// Stations are treated as immutable once created. Enrichment produces an
// EnrichedStation wrapping a copy rather than mutating the original.
type ChargingStation struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name,omitempty" yaml:"name"`
	Location    GeoPoint      `json:"location" yaml:"location"`
	Operator    string        `json:"operator,omitempty" yaml:"operator"`
	Connectors  []Connector   `json:"connectors" yaml:"connectors"`
	Status      StationStatus `json:"status" yaml:"status"`
	GeographyID string        `json:"geography_id" yaml:"geography_id"`
}

// ErrInvalidStation indicates a malformed station record.
var ErrInvalidStation = errors.New("invalid station")

// Validate checks the ID, location, and connector descriptors.
func (s ChargingStation) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidStation)
	}
	if err := s.Location.Validate(); err != nil {
		return fmt.Errorf("%w: station %s: %v", ErrInvalidStation, s.ID, err)
	}
	for i, c := range s.Connectors {
		if !c.Level.Valid() {
			return fmt.Errorf("%w: station %s connector %d: unknown level %q", ErrInvalidStation, s.ID, i, c.Level)
		}
		if c.Count < 0 || c.PowerKW < 0 {
			return fmt.Errorf("%w: station %s connector %d: negative count or power", ErrInvalidStation, s.ID, i)
		}
	}
	switch s.Status {
	case StatusOperational, StatusPlanned, StatusUnknown, "":
	default:
		return fmt.Errorf("%w: station %s: unknown status %q", ErrInvalidStation, s.ID, s.Status)
	}
	return nil
}

// TotalConnectors sums connector counts.
func (s ChargingStation) TotalConnectors() int {
	total := 0
	for _, c := range s.Connectors {
		total += c.Count
	}
	return total
}

// Capacity is the number of vehicles the station can charge at once.
// A station with no connector records counts as one.
func (s ChargingStation) Capacity() int {
	if n := s.TotalConnectors(); n > 0 {
		return n
	}
	return 1
}

// FastConnectors counts DC fast connectors.
func (s ChargingStation) FastConnectors() int {
	total := 0
	for _, c := range s.Connectors {
		if c.Level == LevelDCFast {
			total += c.Count
		}
	}
	return total
}

// HasFastCharging reports whether any DC fast connector is present.
func (s ChargingStation) HasFastCharging() bool {
	return s.FastConnectors() > 0
}

// Clone returns a deep copy so callers never share the connector slice.
func (s ChargingStation) Clone() ChargingStation {
	out := s
	out.Connectors = append([]Connector(nil), s.Connectors...)
	return out
}
