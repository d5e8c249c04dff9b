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

import "fmt"

// Community need levels, from the poverty rate.
const (
	NeedUnknown  = "unknown"
	NeedStandard = "standard"
	NeedModerate = "moderate"
	NeedHigh     = "high"
	NeedCritical = "critical"
)

// Area priorities, from access adequacy and need.
const (
	PriorityUrgent   = "urgent"
	PriorityHigh     = "high"
	PriorityModerate = "moderate"
	PriorityStandard = "standard"
)

// Recommendation priorities.
const (
	RecHigh     = "high"
	RecMedium   = "medium"
	RecStandard = "standard"
)

// Recommendation categories.
const (
	CategoryExpansion   = "infrastructure_expansion"
	CategoryAffordable  = "affordability"
	CategoryLocation    = "location_strategy"
	CategoryFinancial   = "financial_support"
	CategoryEquityFocus = "equity_focus"
	CategoryEngagement  = "community_engagement"
)

// Recommendation is one rule-based action for an area. Fields are plain
// data so callers can render or filter them.
type Recommendation struct {
	Priority  string `json:"priority"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
}

// RecommendConfig holds the thresholds behind need levels and
// recommendations. Rates are shares in [0, 1].
type RecommendConfig struct {
	// MinStationsPer1000: below this an area is told to expand.
	MinStationsPer1000 float64 `yaml:"min_stations_per_1000" json:"min_stations_per_1000" validate:"gte=0"`

	ModeratePovertyRate float64 `yaml:"moderate_poverty_rate" json:"moderate_poverty_rate" validate:"gte=0,lte=1"`
	HighPovertyRate     float64 `yaml:"high_poverty_rate" json:"high_poverty_rate" validate:"gte=0,lte=1,gtefield=ModeratePovertyRate"`
	CriticalPovertyRate float64 `yaml:"critical_poverty_rate" json:"critical_poverty_rate" validate:"gte=0,lte=1,gtefield=HighPovertyRate"`

	// LowScore: an equity score below this asks for an equity study.
	LowScore float64 `yaml:"low_score" json:"low_score" validate:"gte=0,lte=10"`

	// MinRecommendations pads short lists with community engagement.
	MinRecommendations int `yaml:"min_recommendations" json:"min_recommendations" validate:"gte=0"`
}

// DefaultRecommendConfig returns 0.3 stations per 1000, poverty bands at
// 10/15/20 percent, a low score of 5, and at least 3 recommendations.
func DefaultRecommendConfig() RecommendConfig {
	return RecommendConfig{
		MinStationsPer1000:  0.3,
		ModeratePovertyRate: 0.10,
		HighPovertyRate:     0.15,
		CriticalPovertyRate: 0.20,
		LowScore:            5,
		MinRecommendations:  3,
	}
}

func (c RecommendConfig) needLevel(poverty float64) string {
	switch {
	case poverty >= c.CriticalPovertyRate:
		return NeedCritical
	case poverty >= c.HighPovertyRate:
		return NeedHigh
	case poverty >= c.ModeratePovertyRate:
		return NeedModerate
	default:
		return NeedStandard
	}
}

// priority ranks an area: inadequate access in a high-need area is
// urgent, inadequate access alone is high, high need alone is moderate.
func priority(adequacy, need string) string {
	adequate := adequacy == AdequacyAdequate || adequacy == AdequacyLimited
	pressing := need == NeedHigh || need == NeedCritical
	switch {
	case !adequate && pressing:
		return PriorityUrgent
	case !adequate:
		return PriorityHigh
	case pressing:
		return PriorityModerate
	default:
		return PriorityStandard
	}
}

// recommend applies the rules in a fixed order, so the output is stable.
func (c RecommendConfig) recommend(a AreaEquity) []Recommendation {
	var out []Recommendation

	if a.StationsPer1000 < c.MinStationsPer1000 {
		out = append(out, Recommendation{
			Priority:  RecHigh,
			Category:  CategoryExpansion,
			Action:    "Significantly increase charging station deployment",
			Rationale: fmt.Sprintf("Current density (%.2f per 1000) is below %.2f", a.StationsPer1000, c.MinStationsPer1000),
		})
	}
	if a.PovertyRate != nil && *a.PovertyRate > c.HighPovertyRate {
		out = append(out,
			Recommendation{
				Priority:  RecHigh,
				Category:  CategoryAffordable,
				Action:    "Implement subsidized charging programs",
				Rationale: fmt.Sprintf("Poverty rate of %.0f%% calls for affordability measures", *a.PovertyRate*100),
			},
			Recommendation{
				Priority:  RecMedium,
				Category:  CategoryLocation,
				Action:    "Prioritize charging at affordable housing and public facilities",
				Rationale: "Increase access for low-income residents",
			})
	}
	if a.IncomeBand == IncomeLow {
		out = append(out, Recommendation{
			Priority:  RecMedium,
			Category:  CategoryFinancial,
			Action:    "Partner with utilities for reduced-rate charging",
			Rationale: "Make EV ownership more accessible for lower-income households",
		})
	}
	if a.Score != nil && a.Score.Value < c.LowScore {
		out = append(out, Recommendation{
			Priority:  RecHigh,
			Category:  CategoryEquityFocus,
			Action:    "Conduct a detailed equity mapping study",
			Rationale: fmt.Sprintf("Equity score %.1f indicates significant disparities", a.Score.Value),
		})
	}
	if len(out) < c.MinRecommendations {
		out = append(out, Recommendation{
			Priority:  RecStandard,
			Category:  CategoryEngagement,
			Action:    "Engage the community in charging location planning",
			Rationale: "Ensure infrastructure meets local needs",
		})
	}
	return out
}
