// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeFor(t *testing.T) {
	tests := []struct {
		value float64
		want  Grade
	}{
		{10, GradeA},
		{9, GradeA},
		{8.99, GradeB},
		{7, GradeB},
		{5, GradeC},
		{4.999, GradeD},
		{3, GradeD},
		{2.9, GradeF},
		{0, GradeF},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GradeFor(tt.value), "value %v", tt.value)
	}
}

func TestNewScore_Clamps(t *testing.T) {
	assert.Equal(t, Score{Value: 0, Min: 0, Max: 10, Grade: GradeF}, NewScore(-3))
	assert.Equal(t, Score{Value: 10, Min: 0, Max: 10, Grade: GradeA}, NewScore(12))
	assert.Equal(t, 0.0, NewScore(math.NaN()).Value)
	assert.Equal(t, GradeC, NewScore(6.2).Grade)
}

func TestCurve(t *testing.T) {
	c := Curve{{X: 0, Y: 0}, {X: 10, Y: 5}, {X: 20, Y: 5}}
	require.NoError(t, c.Validate())

	assert.Equal(t, 0.0, c.At(-5))
	assert.Equal(t, 2.5, c.At(5))
	assert.Equal(t, 5.0, c.At(10))
	assert.Equal(t, 5.0, c.At(15))
	assert.Equal(t, 5.0, c.At(100))

	assert.ErrorIs(t, Curve{}.Validate(), ErrInvalidCurve)
	assert.ErrorIs(t, Curve{{X: 1}, {X: 1}}.Validate(), ErrInvalidCurve)
	assert.Equal(t, 0.0, Curve{}.At(3))
}

func TestSaturation_Points(t *testing.T) {
	s := Saturation{MaxPoints: 3, SaturateAt: 2}
	assert.Equal(t, 0.0, s.Points(0))
	assert.Equal(t, 1.5, s.Points(1))
	assert.Equal(t, 3.0, s.Points(2))
	assert.Equal(t, 3.0, s.Points(7))
	assert.Equal(t, 0.0, Saturation{MaxPoints: 3}.Points(4))
}

func TestRenormalize(t *testing.T) {
	values := map[string]float64{"a": 0.1, "b": 0.7, "c": 0.3, "d": 0.9, "e": 0.2}
	weights := map[string]float64{"a": 0.3, "b": 0.1, "c": 0.7, "d": 0.2, "e": 0.4, "unused": 5}

	first, effective, ok := renormalize(values, weights)
	require.True(t, ok)
	assert.InDelta(t, (0.03+0.07+0.21+0.18+0.08)/1.7, first, 1e-12)
	assert.NotContains(t, effective, "unused", "absent components carry no weight")

	for i := 0; i < 50; i++ {
		got, _, _ := renormalize(values, weights)
		require.Equal(t, first, got, "summation order does not change the result")
	}

	_, _, ok = renormalize(map[string]float64{"a": 1}, map[string]float64{"a": 0})
	assert.False(t, ok)
}
