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
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidWeights is returned for negative weights or a zero sum.
var ErrInvalidWeights = errors.New("invalid weights")

// ErrNoSubScores is returned when no sub-score is available to combine.
var ErrNoSubScores = errors.New("no sub-scores available")

// Weights are the OverallScorer component weights. They need not sum to
// one; they are normalized over the sub-scores present.
type Weights struct {
	Infrastructure float64 `yaml:"infrastructure" json:"infrastructure" validate:"gte=0"`
	Equity         float64 `yaml:"equity" json:"equity" validate:"gte=0"`
	Convenience    float64 `yaml:"convenience" json:"convenience" validate:"gte=0"`
	Climate        float64 `yaml:"climate" json:"climate" validate:"gte=0"`
}

// DefaultWeights weights the four components equally.
func DefaultWeights() Weights {
	return Weights{Infrastructure: 0.25, Equity: 0.25, Convenience: 0.25, Climate: 0.25}
}

// Validate rejects negative or non-finite weights and an all-zero set.
func (w Weights) Validate() error {
	var sum float64
	for name, v := range w.asMap() {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s = %v", ErrInvalidWeights, name, v)
		}
		sum += v
	}
	if sum <= 0 {
		return fmt.Errorf("%w: weights sum to zero", ErrInvalidWeights)
	}
	return nil
}

func (w Weights) asMap() map[string]float64 {
	return map[string]float64{
		ComponentInfrastructure: w.Infrastructure,
		ComponentEquity:         w.Equity,
		ComponentConvenience:    w.Convenience,
		ComponentClimate:        w.Climate,
	}
}

// SubScores are the inputs to OverallScorer. Nil means unavailable.
type SubScores struct {
	Infrastructure *Score
	Equity         *Score
	Convenience    *Score
	Climate        *Score
}

func (s SubScores) asMap() map[string]float64 {
	out := make(map[string]float64, 4)
	for name, sc := range map[string]*Score{
		ComponentInfrastructure: s.Infrastructure,
		ComponentEquity:         s.Equity,
		ComponentConvenience:    s.Convenience,
		ComponentClimate:        s.Climate,
	} {
		if sc != nil {
			out[name] = sc.Value
		}
	}
	return out
}

// OverallResult is the composite score with the weights actually applied.
type OverallResult struct {
	Score      Score              `json:"score"`
	Components map[string]float64 `json:"components"`
	Weights    map[string]float64 `json:"weights"`
	Missing    []string           `json:"missing,omitempty"`
}

// OverallScorer combines sub-scores into one composite.
type OverallScorer struct {
	weights Weights
}

// NewOverallScorer validates w and creates a scorer.
func NewOverallScorer(w Weights) (OverallScorer, error) {
	if err := w.Validate(); err != nil {
		return OverallScorer{}, err
	}
	return OverallScorer{weights: w}, nil
}

// Score returns the weighted mean of the available sub-scores. Weights of
// missing sub-scores are redistributed proportionally over the rest. A
// composite whose available sub-scores all carry zero weight is an error.
func (o OverallScorer) Score(sub SubScores) (OverallResult, error) {
	values := sub.asMap()
	if len(values) == 0 {
		return OverallResult{}, ErrNoSubScores
	}
	v, effective, ok := renormalize(values, o.weights.asMap())
	if !ok {
		return OverallResult{}, fmt.Errorf("%w: available sub-scores carry no weight", ErrNoSubScores)
	}

	res := OverallResult{
		Score:      NewScore(v),
		Components: values,
		Weights:    effective,
	}
	for name := range o.weights.asMap() {
		if _, ok := values[name]; !ok {
			res.Missing = append(res.Missing, name)
		}
	}
	sort.Strings(res.Missing)
	return res, nil
}
