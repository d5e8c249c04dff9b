// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/EVChargeAdvisor/pkg/ux"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/analysis"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/scoring"
)

// renderReport prints the human-readable summary of a report.
func renderReport(p *ux.Printer, r *analysis.Report, top int) {
	p.Title("EV charging assessment")
	p.KeyValue("run", r.RunID)
	p.KeyValue("stations", fmt.Sprintf("%d", r.Region.Infrastructure.Stations))
	p.KeyValue("areas", fmt.Sprintf("%d", len(r.Areas)))
	if r.Cancelled {
		p.Warning("Run was cancelled; results cover what finished")
	}
	if r.Partial {
		p.Warning("Partial data: " + missingSummary(r.Missing))
	}

	fmt.Fprintln(p.Writer())
	p.Title("Region")
	region := [][2]string{
		{"overall", scoreText(p, &r.Region.Overall.Score)},
		{"infrastructure", scoreText(p, &r.Region.Infrastructure.Score)},
		{"convenience", scoreText(p, r.Region.Convenience)},
		{"climate", scoreText(p, r.Region.Climate)},
	}
	if r.Region.Equity != nil {
		region = append(region, [2]string{"equity", scoreText(p, &r.Region.Equity.Score)})
	} else {
		region = append(region, [2]string{"equity", "n/a"})
	}
	for _, kv := range region {
		p.KeyValue(kv[0], kv[1])
	}
	for _, f := range r.Region.Findings {
		p.Warning(fmt.Sprintf("[%s] %s", f.Severity, f.Description))
	}

	fmt.Fprintln(p.Writer())
	p.Title("Areas")
	rows := make([][]string, 0, len(r.Areas))
	for _, ar := range r.Areas {
		var overall *scoring.Score
		if ar.Overall != nil {
			overall = &ar.Overall.Score
		}
		rows = append(rows, []string{
			ar.Geography.ID,
			fmt.Sprintf("%d", ar.Stations),
			fmt.Sprintf("%.2f", ar.Equity.StationsPer1000),
			ar.Equity.IncomeBand,
			scoreCell(ar.Equity.Score),
			scoreCell(ar.Convenience),
			scoreCell(ar.Climate),
			scoreCell(overall),
		})
	}
	p.Table([]string{"geography", "stations", "per 1000", "income", "equity", "convenience", "climate", "overall"}, rows)

	if worst := r.WorstServed(top); len(worst) > 0 {
		p.Info("Worst served: " + strings.Join(worst, ", "))
	}

	fmt.Fprintln(p.Writer())
	p.Title("Coverage gaps")
	if len(r.Gaps.Candidates) == 0 {
		p.Success("No area exceeds the distance and demand thresholds")
		return
	}
	gapRows := make([][]string, 0, len(r.Gaps.Candidates))
	for _, c := range r.Gaps.Candidates {
		nearest := "none"
		if c.NearestDistanceM != nil {
			nearest = fmt.Sprintf("%s (%.1f km)", c.NearestStationID, *c.NearestDistanceM/1000)
		}
		gapRows = append(gapRows, []string{
			fmt.Sprintf("%d", c.Rank),
			c.CellID,
			c.Center.String(),
			fmt.Sprintf("%.0f", c.Demand),
			fmt.Sprintf("%d", c.Capacity),
			nearest,
			string(c.Severity),
		})
	}
	p.Table([]string{"rank", "cell", "center", "demand", "capacity", "nearest", "severity"}, gapRows)
	if r.Gaps.TotalCandidates > len(r.Gaps.Candidates) {
		p.Info(fmt.Sprintf("%d more candidates not shown", r.Gaps.TotalCandidates-len(r.Gaps.Candidates)))
	}
}

func scoreText(p *ux.Printer, s *scoring.Score) string {
	if s == nil {
		return "n/a"
	}
	return fmt.Sprintf("%s  %s", p.ScoreBar(s.Value, 20), s.Grade)
}

func scoreCell(s *scoring.Score) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f %s", s.Value, s.Grade)
}

func missingSummary(missing map[string]int) string {
	dims := make([]string, 0, len(missing))
	for dim, n := range missing {
		if n > 0 {
			dims = append(dims, fmt.Sprintf("%s=%d", dim, n))
		}
	}
	sort.Strings(dims)
	return strings.Join(dims, " ")
}
