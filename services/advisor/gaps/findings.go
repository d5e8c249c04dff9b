// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gaps

import (
	"fmt"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/scoring"
)

// Finding types.
const (
	FindingFastCharging      = "fast_charging"
	FindingOperatorDiversity = "operator_diversity"
	FindingCoverageDensity   = "coverage_density"
)

// Finding is a region-wide shortfall, as opposed to a located candidate.
type Finding struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Assess derives region-level findings from an infrastructure result.
func Assess(infra scoring.InfrastructureResult, cfg Config) []Finding {
	var out []Finding
	if infra.FastChargingGap {
		out = append(out, Finding{
			Type:        FindingFastCharging,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("Only %d of %d stations offer DC fast charging", infra.FastStations, infra.Stations),
		})
	}
	if len(infra.Operators) < cfg.MinOperators {
		out = append(out, Finding{
			Type:        FindingOperatorDiversity,
			Severity:    SeverityModerate,
			Description: fmt.Sprintf("Limited operator diversity (%d operators)", len(infra.Operators)),
		})
	}
	if infra.DensityPerKm2 != nil && *infra.DensityPerKm2 < cfg.MinDensityPerKm2 {
		out = append(out, Finding{
			Type:        FindingCoverageDensity,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("Low station density (%.2f per sq km)", *infra.DensityPerKm2),
		})
	}
	return out
}
