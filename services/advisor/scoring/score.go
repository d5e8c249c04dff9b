// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring converts enriched stations and area statistics into
// bounded scores with letter grades.
//
// Every scorer is a pure function of its inputs and its configuration.
// Scores are on a 0 to 10 scale and graded with one set of cut points:
// A >= 9, B >= 7, C >= 5, D >= 3, F otherwise.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Grade is a letter grade.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Score bounds shared by every scorer.
const (
	ScoreMin = 0.0
	ScoreMax = 10.0
)

// GradeFor maps a 0-10 value to its grade.
func GradeFor(value float64) Grade {
	switch {
	case value >= 9:
		return GradeA
	case value >= 7:
		return GradeB
	case value >= 5:
		return GradeC
	case value >= 3:
		return GradeD
	default:
		return GradeF
	}
}

// Score is a bounded value and its grade.
type Score struct {
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Grade Grade   `json:"grade"`
}

// NewScore clamps v into [ScoreMin, ScoreMax] and grades it.
func NewScore(v float64) Score {
	if math.IsNaN(v) {
		v = ScoreMin
	}
	v = math.Max(ScoreMin, math.Min(ScoreMax, v))
	return Score{Value: v, Min: ScoreMin, Max: ScoreMax, Grade: GradeFor(v)}
}

// =============================================================================
// Piecewise-linear curves
// =============================================================================

// ErrInvalidCurve is returned for an empty or unsorted curve.
var ErrInvalidCurve = errors.New("invalid curve")

// CurvePoint is one knot of a piecewise-linear curve.
type CurvePoint struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Curve is a piecewise-linear function through its knots, held constant
// beyond the first and last knot.
type Curve []CurvePoint

// Validate checks that the curve has knots with strictly increasing X.
func (c Curve) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: no points", ErrInvalidCurve)
	}
	for i := 1; i < len(c); i++ {
		if !(c[i].X > c[i-1].X) {
			return fmt.Errorf("%w: x must be strictly increasing at index %d", ErrInvalidCurve, i)
		}
	}
	return nil
}

// At evaluates the curve at x.
func (c Curve) At(x float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if x <= c[0].X {
		return c[0].Y
	}
	last := c[len(c)-1]
	if x >= last.X {
		return last.Y
	}
	i := sort.Search(len(c), func(i int) bool { return c[i].X >= x })
	lo, hi := c[i-1], c[i]
	t := (x - lo.X) / (hi.X - lo.X)
	return lo.Y + t*(hi.Y-lo.Y)
}

// renormalize returns the weighted mean of values over the keys present,
// with the effective weights used. Keys are summed in sorted order so the
// result does not depend on map iteration.
func renormalize(values, weights map[string]float64) (float64, map[string]float64, bool) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var total float64
	for _, name := range names {
		total += weights[name]
	}
	if total <= 0 {
		return 0, nil, false
	}
	effective := make(map[string]float64, len(values))
	var sum float64
	for _, name := range names {
		w := weights[name] / total
		effective[name] = w
		sum += w * values[name]
	}
	return sum, effective, true
}
