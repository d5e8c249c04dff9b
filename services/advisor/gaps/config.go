// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gaps finds underserved places: cells with enough charging
// demand whose nearest station is too far away.
package gaps

import (
	"errors"
	"fmt"
)

// Mode selects how the region is partitioned.
type Mode string

const (
	// ModeGrid partitions the region bounding box into square cells.
	ModeGrid Mode = "grid"

	// ModeUnits uses each geography as one cell.
	ModeUnits Mode = "units"
)

// Severity ranks a candidate by how far it is from service.
type Severity string

const (
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var (
	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid gap config")

	// ErrGridTooLarge is returned when the grid would exceed MaxCells.
	ErrGridTooLarge = errors.New("grid too large")
)

// Config carries the gap thresholds. Nothing here is hard-coded in the
// identifier.
type Config struct {
	Mode Mode `yaml:"mode" json:"mode" validate:"oneof=grid units"`

	// DistanceThresholdM: a cell is a candidate only if its nearest
	// station is strictly farther than this.
	DistanceThresholdM float64 `yaml:"distance_threshold_m" json:"distance_threshold_m" validate:"gt=0"`

	// MinDemand: a cell is a candidate only if its demand proxy is
	// strictly greater than this.
	MinDemand float64 `yaml:"min_demand" json:"min_demand" validate:"gte=0"`

	// CapacityRadiusM: in grid mode, a candidate's capacity counts the
	// connectors within this distance of the cell center. It must exceed
	// DistanceThresholdM, or every candidate would count zero.
	CapacityRadiusM float64 `yaml:"capacity_radius_m" json:"capacity_radius_m" validate:"gt=0"`

	CellSizeM float64 `yaml:"cell_size_m" json:"cell_size_m" validate:"gt=0"`
	TopK      int     `yaml:"top_k" json:"top_k" validate:"gte=1"`
	MaxCells  int     `yaml:"max_cells" json:"max_cells" validate:"gte=1"`

	// Region-level findings.
	MinOperators     int     `yaml:"min_operators" json:"min_operators" validate:"gte=0"`
	MinDensityPerKm2 float64 `yaml:"min_density_per_km2" json:"min_density_per_km2" validate:"gte=0"`
}

// DefaultConfig returns the documented defaults: 2 km threshold, demand
// above 500, capacity counted within 5 km, 1 km cells, top 10.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeGrid,
		DistanceThresholdM: 2000,
		MinDemand:          500,
		CapacityRadiusM:    5000,
		CellSizeM:          1000,
		TopK:               10,
		MaxCells:           250000,
		MinOperators:       3,
		MinDensityPerKm2:   1,
	}
}

// Validate checks the fields the identifier depends on.
func (c Config) Validate() error {
	switch {
	case c.Mode != ModeGrid && c.Mode != ModeUnits:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	case c.DistanceThresholdM <= 0:
		return fmt.Errorf("%w: distance threshold must be positive", ErrInvalidConfig)
	case c.MinDemand < 0:
		return fmt.Errorf("%w: min demand must not be negative", ErrInvalidConfig)
	case c.Mode == ModeGrid && !(c.CapacityRadiusM > c.DistanceThresholdM):
		return fmt.Errorf("%w: capacity radius must exceed the distance threshold", ErrInvalidConfig)
	case c.Mode == ModeGrid && c.CellSizeM <= 0:
		return fmt.Errorf("%w: cell size must be positive", ErrInvalidConfig)
	case c.TopK < 1:
		return fmt.Errorf("%w: top_k must be at least 1", ErrInvalidConfig)
	case c.Mode == ModeGrid && c.MaxCells < 1:
		return fmt.Errorf("%w: max_cells must be at least 1", ErrInvalidConfig)
	}
	return nil
}
