// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats holds the numeric primitives behind the scorers: disparity
// index, Gini coefficient, percentile, Pearson correlation, and simple
// linear regression.
//
// Every function is pure. Malformed input (too few samples, values out of
// domain, mismatched lengths) returns InsufficientDataError or
// InvalidRangeError. Statistically degenerate but valid input, such as a
// constant series passed to Correlate, returns a result marked undefined
// with NaN values and no error.
package stats

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Epsilon guards the disparity denominator when both means are zero.
const Epsilon = 1e-9

// Mean returns the arithmetic mean of values.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, &InsufficientDataError{Op: "mean", Need: 1, Got: 0}
	}
	if err := checkFinite("mean", values); err != nil {
		return 0, err
	}
	return stat.Mean(values, nil), nil
}

// Disparity returns the disparity index of group a relative to group b:
//
//	(mean(a) - mean(b)) / max(mean(a), mean(b), Epsilon)
//
// clamped to [-1, 1]. It is antisymmetric: Disparity(a, b) == -Disparity(b, a).
// Both groups need at least one value.
func Disparity(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, &InsufficientDataError{Op: "disparity", Need: 1, Got: min(len(a), len(b))}
	}
	ma, err := Mean(a)
	if err != nil {
		return 0, err
	}
	mb, err := Mean(b)
	if err != nil {
		return 0, err
	}
	return DisparityOfMeans(ma, mb), nil
}

// DisparityOfMeans applies the disparity formula to precomputed means.
func DisparityOfMeans(meanA, meanB float64) float64 {
	denom := math.Max(math.Max(meanA, meanB), Epsilon)
	d := (meanA - meanB) / denom
	return math.Max(-1, math.Min(1, d))
}

// Gini returns the Gini coefficient of a non-negative distribution.
//
// Description:
//
//	Uses the cumulative-share form over values sorted ascending:
//
//	    G = 2 * sum(i * x_i) / (n * sum(x)) - (n + 1) / n,  i = 1..n
//
//	All-equal input yields 0. One nonzero value among n yields (n-1)/n.
//	An all-zero distribution is treated as perfectly equal and yields 0.
//
// Outputs:
//
//	float64 - Coefficient in [0, (n-1)/n].
//	error - InsufficientDataError for n < 2, InvalidRangeError for a
//	        negative or non-finite value.
func Gini(values []float64) (float64, error) {
	n := len(values)
	if n < 2 {
		return 0, &InsufficientDataError{Op: "gini", Need: 2, Got: n}
	}
	if err := checkFinite("gini", values); err != nil {
		return 0, err
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if sorted[0] < 0 {
		return 0, &InvalidRangeError{Op: "gini", Detail: "negative value in distribution"}
	}

	var sum, weighted float64
	for i, x := range sorted {
		sum += x
		weighted += float64(i+1) * x
	}
	if sum == 0 {
		return 0, nil
	}
	fn := float64(n)
	g := 2*weighted/(fn*sum) - (fn+1)/fn
	return math.Max(0, g), nil
}

// Percentile returns the p-th percentile (0 <= p <= 100) of data using
// linear interpolation between order statistics at rank p/100 * (n-1).
func Percentile(p float64, data []float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return 0, &InvalidRangeError{Op: "percentile", Detail: "p must be within [0, 100]"}
	}
	if len(data) == 0 {
		return 0, &InsufficientDataError{Op: "percentile", Need: 1, Got: 0}
	}
	if err := checkFinite("percentile", data); err != nil {
		return 0, err
	}
	sorted := slices.Clone(data)
	slices.Sort(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), nil
}

// Correlation is the result of Correlate.
type Correlation struct {
	// R is Pearson's r, or NaN when undefined.
	R float64 `json:"r"`
	N int     `json:"n"`

	// Defined is false when either series has zero variance.
	Defined bool `json:"defined"`
}

// Correlate returns Pearson's r between paired samples x and y.
func Correlate(x, y []float64) (Correlation, error) {
	if err := checkPairs("correlate", x, y); err != nil {
		return Correlation{}, err
	}
	if zeroVariance(x) || zeroVariance(y) {
		return Correlation{R: math.NaN(), N: len(x)}, nil
	}
	r := stat.Correlation(x, y, nil)
	return Correlation{R: math.Max(-1, math.Min(1, r)), N: len(x), Defined: true}, nil
}

// Regression is the result of Regress.
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`

	// RSquared is the coefficient of determination.
	RSquared float64 `json:"r_squared"`
	N        int     `json:"n"`

	// Defined is false when x has zero variance.
	Defined bool `json:"defined"`
}

// Regress fits y = Intercept + Slope*x by ordinary least squares.
//
// A constant x has no defined slope; the result then has NaN fields and
// Defined=false. A constant y with varying x is a valid flat fit.
func Regress(x, y []float64) (Regression, error) {
	if err := checkPairs("regress", x, y); err != nil {
		return Regression{}, err
	}
	if zeroVariance(x) {
		nan := math.NaN()
		return Regression{Slope: nan, Intercept: nan, RSquared: nan, N: len(x)}, nil
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r2 := 1.0
	if !zeroVariance(y) {
		r2 = stat.RSquared(x, y, nil, alpha, beta)
	}
	return Regression{Slope: beta, Intercept: alpha, RSquared: r2, N: len(x), Defined: true}, nil
}

func checkPairs(op string, x, y []float64) error {
	if len(x) != len(y) {
		return &InvalidRangeError{Op: op, Detail: "x and y must have equal length"}
	}
	if len(x) < 2 {
		return &InsufficientDataError{Op: op, Need: 2, Got: len(x)}
	}
	if err := checkFinite(op, x); err != nil {
		return err
	}
	return checkFinite(op, y)
}

func checkFinite(op string, values []float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvalidRangeError{Op: op, Detail: "non-finite value"}
		}
	}
	return nil
}

func zeroVariance(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
