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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
)

func area(id string, pop int64, income float64, stations int) AreaInput {
	p := datatypes.DemographicProfile{GeographyID: id, Population: datatypes.Int64Ptr(pop)}
	if income > 0 {
		p.MedianIncome = datatypes.Float64Ptr(income)
	}
	return AreaInput{GeographyID: id, Demographics: datatypes.Present(p), Stations: stations}
}

func TestEquityScorer_LowerIncomeFewerStationsScoresLower(t *testing.T) {
	s := NewEquityScorer(DefaultEquityConfig())
	res, err := s.Score([]AreaInput{
		area("A", 10000, 40000, 1),
		area("B", 10000, 90000, 2),
	})
	require.NoError(t, err)

	a, b := res.Areas[0], res.Areas[1]
	require.NotNil(t, a.Score)
	require.NotNil(t, b.Score)
	assert.Less(t, a.Score.Value, b.Score.Value)
	assert.InDelta(t, 3.0, a.Score.Value, 1e-9)
	assert.InDelta(t, 6.0, b.Score.Value, 1e-9)

	assert.InDelta(t, 0.1, a.StationsPer1000, 1e-12)
	assert.Equal(t, IncomeLow, a.IncomeBand)
	assert.Equal(t, IncomeMiddle, b.IncomeBand)
	assert.Equal(t, AdequacyPoor, a.Adequacy)

	require.NotNil(t, res.Disparity)
	assert.InDelta(t, -0.5, *res.Disparity, 1e-9)
	require.NotNil(t, res.Gini)
	assert.InDelta(t, 1.0/6.0, *res.Gini, 1e-9)
	assert.InDelta(t, 0.15, res.StationsPer1000, 1e-12)
	assert.InDelta(t, 3.25, res.Score.Value, 1e-9)
}

func TestEquityScorer_MonotoneInLowIncomeDensity(t *testing.T) {
	s := NewEquityScorer(DefaultEquityConfig())
	prev := -1.0
	for stations := 0; stations <= 4; stations++ {
		res, err := s.Score([]AreaInput{
			area("A", 10000, 40000, stations),
			area("B", 10000, 90000, 2),
		})
		require.NoError(t, err)
		got := res.Areas[0].Score.Value
		assert.GreaterOrEqual(t, got, prev, "stations=%d", stations)
		prev = got
	}
}

func TestEquityScorer_ExcludesUnknownPopulation(t *testing.T) {
	s := NewEquityScorer(DefaultEquityConfig())
	res, err := s.Score([]AreaInput{
		{GeographyID: "gone", Demographics: datatypes.Missing[datatypes.DemographicProfile]("timeout"), Stations: 5},
		{GeographyID: "nopop", Demographics: datatypes.Present(datatypes.DemographicProfile{}), Stations: 1},
		area("C", 2000, 60000, 1),
	})
	require.NoError(t, err)

	assert.Nil(t, res.Areas[0].Score)
	assert.Contains(t, res.Areas[0].Excluded, "timeout")
	assert.Nil(t, res.Areas[1].Score)
	assert.Equal(t, "population unknown", res.Areas[1].Excluded)

	// One known income: parity dropped, access alone decides.
	require.NotNil(t, res.Areas[2].Score)
	assert.InDelta(t, 5.0, res.Areas[2].Score.Value, 1e-9)
	assert.Nil(t, res.Disparity)
	assert.Nil(t, res.Gini)
}

func TestEquityScorer_NoEligibleAreas(t *testing.T) {
	s := NewEquityScorer(DefaultEquityConfig())
	_, err := s.Score([]AreaInput{
		{GeographyID: "x", Demographics: datatypes.Missing[datatypes.DemographicProfile]("cancelled")},
	})
	assert.ErrorIs(t, err, ErrNoEligibleAreas)

	_, err = s.Score(nil)
	assert.ErrorIs(t, err, ErrNoEligibleAreas)
}

func TestEquityScorer_Bounds(t *testing.T) {
	s := NewEquityScorer(DefaultEquityConfig())
	res, err := s.Score([]AreaInput{
		area("a", 100, 20000, 50),
		area("b", 50000, 35000, 0),
		area("c", 8000, 70000, 3),
		area("d", 12000, 150000, 40),
		area("e", 3000, 0, 2),
	})
	require.NoError(t, err)
	for _, a := range res.Areas {
		require.NotNil(t, a.Score, a.GeographyID)
		assert.GreaterOrEqual(t, a.Score.Value, ScoreMin)
		assert.LessOrEqual(t, a.Score.Value, ScoreMax)
		assert.Equal(t, GradeFor(a.Score.Value), a.Score.Grade)
	}
	assert.Equal(t, AdequacyAdequate, res.Areas[0].Adequacy)
	assert.Equal(t, AdequacyNone, res.Areas[1].Adequacy)
	assert.Equal(t, IncomeHigh, res.Areas[3].IncomeBand)
	assert.Equal(t, IncomeUnknown, res.Areas[4].IncomeBand)
}

func TestByScore(t *testing.T) {
	s1, s2 := NewScore(7), NewScore(2)
	sorted := ByScore([]AreaEquity{
		{GeographyID: "z"},
		{GeographyID: "b", Score: &s1},
		{GeographyID: "a", Score: &s2},
	})
	ids := []string{sorted[0].GeographyID, sorted[1].GeographyID, sorted[2].GeographyID}
	assert.Equal(t, []string{"a", "b", "z"}, ids)
}

func areaWithRates(id string, pop int64, income float64, stations int, poverty, ownership *float64) AreaInput {
	a := area(id, pop, income, stations)
	p, _ := a.Demographics.Get()
	p.PovertyRate = poverty
	p.VehicleOwnershipRate = ownership
	a.Demographics = datatypes.Present(p)
	return a
}

func TestEquityScorer_AffordabilityAndMobility(t *testing.T) {
	s := NewEquityScorer(DefaultEquityConfig())
	res, err := s.Score([]AreaInput{
		areaWithRates("A", 10000, 40000, 1, datatypes.Float64Ptr(0.15), datatypes.Float64Ptr(0.9)),
		areaWithRates("B", 10000, 90000, 2, datatypes.Float64Ptr(0.05), datatypes.Float64Ptr(0.95)),
	})
	require.NoError(t, err)

	a, b := res.Areas[0], res.Areas[1]
	require.NotNil(t, a.Score)
	assert.InDelta(t, 0.1, a.Components[ComponentAccess], 1e-12)
	assert.InDelta(t, 0.5, a.Components[ComponentParity], 1e-12)
	assert.InDelta(t, 0.45, a.Components[ComponentAffordability], 1e-12)
	assert.InDelta(t, 0.7, a.Components[ComponentMobility], 1e-12)
	assert.InDelta(t, 4.1, a.Score.Value, 1e-9)
	assert.InDelta(t, 0.1, *a.NoVehicleRate, 1e-12)

	require.NotNil(t, b.Score)
	assert.InDelta(t, 7.4, b.Score.Value, 1e-9)

	require.NotNil(t, res.PovertyRate)
	assert.InDelta(t, 0.10, *res.PovertyRate, 1e-12)
	require.NotNil(t, res.NoVehicleRate)
	assert.InDelta(t, 0.075, *res.NoVehicleRate, 1e-12)
	assert.InDelta(t, 4.75, res.Score.Value, 1e-9)
}

func TestEquityScorer_UnknownRatesAreDropped(t *testing.T) {
	s := NewEquityScorer(DefaultEquityConfig())
	res, err := s.Score([]AreaInput{
		areaWithRates("A", 2000, 60000, 1, datatypes.Float64Ptr(0.05), nil),
	})
	require.NoError(t, err)

	a := res.Areas[0]
	assert.NotContains(t, a.Components, ComponentMobility)
	assert.NotContains(t, a.Components, ComponentParity)
	// access 0.5 at weight 0.3, affordability 1.0 at weight 0.2.
	assert.InDelta(t, 10*(0.3*0.5+0.2*1.0)/0.5, a.Score.Value, 1e-9)
	assert.Nil(t, res.NoVehicleRate)
}

func TestEquityScorer_NeedPriorityAndRecommendations(t *testing.T) {
	s := NewEquityScorer(DefaultEquityConfig())
	res, err := s.Score([]AreaInput{
		areaWithRates("A", 10000, 40000, 1, datatypes.Float64Ptr(0.15), datatypes.Float64Ptr(0.9)),
		areaWithRates("B", 10000, 90000, 2, datatypes.Float64Ptr(0.05), datatypes.Float64Ptr(0.95)),
		areaWithRates("C", 1000, 30000, 0, datatypes.Float64Ptr(0.25), nil),
	})
	require.NoError(t, err)

	categories := func(a AreaEquity) []string {
		var out []string
		for _, r := range a.Recommendations {
			out = append(out, r.Category)
		}
		return out
	}

	a, b, c := res.Areas[0], res.Areas[1], res.Areas[2]
	assert.Equal(t, NeedHigh, a.Need)
	assert.Equal(t, PriorityUrgent, a.Priority)
	assert.Equal(t, []string{CategoryExpansion, CategoryFinancial, CategoryEquityFocus}, categories(a))

	assert.Equal(t, NeedStandard, b.Need)
	assert.Equal(t, PriorityHigh, b.Priority)
	assert.Equal(t, []string{CategoryExpansion, CategoryEngagement}, categories(b))

	assert.Equal(t, NeedCritical, c.Need)
	assert.Equal(t, PriorityUrgent, c.Priority)
	assert.Equal(t, []string{CategoryExpansion, CategoryAffordable, CategoryLocation, CategoryFinancial, CategoryEquityFocus}, categories(c))
	assert.Equal(t, RecHigh, c.Recommendations[0].Priority)
}

func TestPriority(t *testing.T) {
	tests := []struct {
		adequacy, need, want string
	}{
		{AdequacyPoor, NeedCritical, PriorityUrgent},
		{AdequacyNone, NeedStandard, PriorityHigh},
		{AdequacyAdequate, NeedHigh, PriorityModerate},
		{AdequacyLimited, NeedUnknown, PriorityStandard},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, priority(tt.adequacy, tt.need), "%s/%s", tt.adequacy, tt.need)
	}
}

func TestEquityConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultEquityConfig().Validate())

	cfg := DefaultEquityConfig()
	cfg.AccessWeight, cfg.ParityWeight, cfg.AffordabilityWeight, cfg.MobilityWeight = 0, 0, 0, 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidWeights)

	cfg = DefaultEquityConfig()
	cfg.MobilityCurve = Curve{{X: 0, Y: 2}}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidCurve)

	cfg = DefaultEquityConfig()
	cfg.AffordabilityCurve = nil
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidCurve)
}
