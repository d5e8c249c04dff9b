// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"sort"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/scoring"
)

// StationRank is one station in the best- or worst-convenience list.
// TransitStops is nil when the access dimension is missing.
type StationRank struct {
	StationID    string        `json:"station_id"`
	Name         string        `json:"name,omitempty"`
	GeographyID  string        `json:"geography_id"`
	Score        scoring.Score `json:"score"`
	TransitStops *int          `json:"transit_stops,omitempty"`
}

// rankStations returns up to limit stations with a convenience score,
// best first and worst first. Ties go to the lower station ID.
func rankStations(stations []StationReport, limit int, accessRadiusM float64) (top, bottom []StationRank) {
	if limit <= 0 {
		return nil, nil
	}
	var scored []StationRank
	for _, sr := range stations {
		if sr.Convenience == nil {
			continue
		}
		r := StationRank{
			StationID:   sr.Station.ID,
			Name:        sr.Station.Name,
			GeographyID: sr.Station.GeographyID,
			Score:       sr.Convenience.Score,
		}
		if acc, ok := sr.Access.Get(); ok {
			n := acc.CountWithin(datatypes.AmenityTransit, accessRadiusM)
			r.TransitStops = &n
		}
		scored = append(scored, r)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score.Value != scored[j].Score.Value {
			return scored[i].Score.Value > scored[j].Score.Value
		}
		return scored[i].StationID < scored[j].StationID
	})
	top = append(top, scored[:min(limit, len(scored))]...)

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score.Value != scored[j].Score.Value {
			return scored[i].Score.Value < scored[j].Score.Value
		}
		return scored[i].StationID < scored[j].StationID
	})
	bottom = append(bottom, scored[:min(limit, len(scored))]...)
	return top, bottom
}
