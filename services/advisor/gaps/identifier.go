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
	"log/slog"
	"math"
	"sort"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/geoindex"
)

// Area is one geography with its demographics, which may be missing.
type Area struct {
	Geography    datatypes.Geography
	Demographics datatypes.Dimension[datatypes.DemographicProfile]
}

// Input is everything the identifier looks at.
type Input struct {
	Region   datatypes.BBox
	Areas    []Area
	Stations []datatypes.ChargingStation
}

// Candidate is one ranked gap.
type Candidate struct {
	Rank       int                `json:"rank"`
	CellID     string             `json:"cell_id"`
	Center     datatypes.GeoPoint `json:"center"`
	Population int64              `json:"population"`
	Demand     float64            `json:"demand"`
	Capacity   int                `json:"capacity"`
	Priority   float64            `json:"priority"`
	Severity   Severity           `json:"severity"`

	// NearestStationID and NearestDistanceM are empty when there is no
	// station at all.
	NearestStationID string   `json:"nearest_station_id,omitempty"`
	NearestDistanceM *float64 `json:"nearest_distance_m,omitempty"`

	Geographies []string `json:"geographies"`

	distance float64
}

// Result is the identifier output.
type Result struct {
	Mode          Mode        `json:"mode"`
	CellsWithData int         `json:"cells_with_data"`
	Candidates    []Candidate `json:"candidates"`

	// TotalCandidates counts candidates before truncation to TopK.
	TotalCandidates int `json:"total_candidates"`

	// Skipped lists geographies left out for unknown population or a
	// centroid outside the region.
	Skipped []string `json:"skipped,omitempty"`
}

// Identifier ranks gap candidates. It is stateless and safe for
// concurrent use.
type Identifier struct {
	cfg    Config
	logger *slog.Logger
}

// NewIdentifier validates cfg and creates an Identifier. A nil logger
// uses slog.Default().
func NewIdentifier(cfg Config, logger *slog.Logger) (*Identifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Identifier{cfg: cfg, logger: logger}, nil
}

type cellAgg struct {
	id          string
	center      datatypes.GeoPoint
	population  int64
	demand      float64
	capacity    int
	geographies []string
}

// Identify partitions the region, measures demand and service per cell,
// and returns the top candidates.
//
// Description:
//
//	For every cell with demand, the nearest station to the cell center
//	is found through a GeoIndex. A cell is a candidate when that
//	distance exceeds DistanceThresholdM and its demand exceeds
//	MinDemand. Candidates are ordered by demand / (1 + capacity)
//	descending, then nearest distance descending, then cell ID
//	ascending, and truncated to TopK. The same input always produces
//	the same list.
//
//	Capacity is the connector count of stations within CapacityRadiusM
//	of the cell center in grid mode, and of stations assigned to the
//	geography in units mode.
//
//	Demand is population times vehicle ownership rate when the rate is
//	known, otherwise population. Areas without a known population are
//	skipped, never counted as zero.
//
// Outputs:
//
//	Result - Ranked candidates plus bookkeeping.
//	error - ErrGridTooLarge, or an invalid region or station location.
func (g *Identifier) Identify(in Input) (Result, error) {
	res := Result{Mode: g.cfg.Mode}

	index := geoindex.New[datatypes.ChargingStation](geoindex.WithCellSize(g.cfg.DistanceThresholdM))
	for _, st := range in.Stations {
		if err := index.Insert(st.Location, st); err != nil {
			return res, fmt.Errorf("index station %s: %w", st.ID, err)
		}
	}

	var cells map[string]*cellAgg
	var err error
	switch g.cfg.Mode {
	case ModeUnits:
		cells = g.unitCells(in, &res)
	default:
		cells, err = g.gridCells(in, &res)
		if err != nil {
			return res, err
		}
	}
	res.CellsWithData = len(cells)

	var candidates []Candidate
	for _, c := range cells {
		if !(c.demand > g.cfg.MinDemand) {
			continue
		}
		if g.cfg.Mode == ModeGrid {
			nearby, err := index.WithinRadius(c.center, g.cfg.CapacityRadiusM)
			if err != nil {
				return res, fmt.Errorf("capacity near %s: %w", c.id, err)
			}
			for _, hit := range nearby {
				c.capacity += hit.Payload.Capacity()
			}
		}
		cand := Candidate{
			CellID:      c.id,
			Center:      c.center,
			Population:  c.population,
			Demand:      c.demand,
			Capacity:    c.capacity,
			Priority:    c.demand / float64(1+c.capacity),
			Geographies: c.geographies,
			distance:    math.Inf(1),
		}
		if hit, ok := index.Nearest(c.center); ok {
			d := hit.DistanceM
			cand.distance = d
			cand.NearestDistanceM = &d
			cand.NearestStationID = hit.Payload.ID
		}
		if !(cand.distance > g.cfg.DistanceThresholdM) {
			continue
		}
		cand.Severity = g.severity(cand.distance)
		candidates = append(candidates, cand)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.distance != b.distance {
			return a.distance > b.distance
		}
		return a.CellID < b.CellID
	})
	res.TotalCandidates = len(candidates)
	if len(candidates) > g.cfg.TopK {
		candidates = candidates[:g.cfg.TopK]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	res.Candidates = candidates
	sort.Strings(res.Skipped)

	g.logger.Debug("Gap identification finished",
		slog.String("mode", string(g.cfg.Mode)),
		slog.Int("cells_with_data", res.CellsWithData),
		slog.Int("candidates", res.TotalCandidates),
		slog.Int("skipped", len(res.Skipped)))
	return res, nil
}

func (g *Identifier) severity(distance float64) Severity {
	ratio := distance / g.cfg.DistanceThresholdM
	switch {
	case ratio >= 3:
		return SeverityCritical
	case ratio >= 2:
		return SeverityHigh
	default:
		return SeverityModerate
	}
}

// demandOf returns the area's population and demand proxy.
func demandOf(a Area) (int64, float64, bool) {
	profile, ok := a.Demographics.Get()
	if !ok {
		return 0, 0, false
	}
	pop, ok := profile.KnownPopulation()
	if !ok {
		return 0, 0, false
	}
	demand := float64(pop)
	if r := profile.VehicleOwnershipRate; r != nil && *r >= 0 && !math.IsNaN(*r) {
		demand *= *r
	}
	return pop, demand, true
}

func (g *Identifier) unitCells(in Input, res *Result) map[string]*cellAgg {
	capacity := make(map[string]int)
	for _, st := range in.Stations {
		capacity[st.GeographyID] += st.Capacity()
	}

	cells := make(map[string]*cellAgg, len(in.Areas))
	for _, a := range in.Areas {
		pop, demand, ok := demandOf(a)
		if !ok {
			res.Skipped = append(res.Skipped, a.Geography.ID)
			continue
		}
		c, exists := cells[a.Geography.ID]
		if !exists {
			c = &cellAgg{id: a.Geography.ID, center: a.Geography.Centroid, capacity: capacity[a.Geography.ID]}
			cells[a.Geography.ID] = c
		}
		c.population += pop
		c.demand += demand
		c.geographies = append(c.geographies, a.Geography.ID)
	}
	return cells
}

// grid maps points in the region to row/column cells of roughly
// CellSizeM on a side.
type grid struct {
	region     datatypes.BBox
	dLat, dLon float64
	rows, cols int
}

func (g *Identifier) newGrid(region datatypes.BBox) (grid, error) {
	if err := region.Validate(); err != nil {
		return grid{}, fmt.Errorf("gap region: %w", err)
	}
	dLat := g.cfg.CellSizeM / geoindex.MetersPerDegree
	cos := math.Cos(region.Center().Lat * math.Pi / 180)
	if cos < 1e-6 {
		cos = 1e-6
	}
	dLon := g.cfg.CellSizeM / (geoindex.MetersPerDegree * cos)
	rows := max(1, int(math.Ceil((region.MaxLat-region.MinLat)/dLat)))
	cols := max(1, int(math.Ceil((region.MaxLon-region.MinLon)/dLon)))
	if float64(rows)*float64(cols) > float64(g.cfg.MaxCells) {
		return grid{}, fmt.Errorf("%w: %d x %d cells exceeds %d", ErrGridTooLarge, rows, cols, g.cfg.MaxCells)
	}
	return grid{region: region, dLat: dLat, dLon: dLon, rows: rows, cols: cols}, nil
}

func (gr grid) locate(p datatypes.GeoPoint) (int, int, bool) {
	if !gr.region.Contains(p) {
		return 0, 0, false
	}
	r := min(gr.rows-1, int((p.Lat-gr.region.MinLat)/gr.dLat))
	c := min(gr.cols-1, int((p.Lon-gr.region.MinLon)/gr.dLon))
	return r, c, true
}

func (gr grid) center(r, c int) datatypes.GeoPoint {
	lat := gr.region.MinLat + (float64(r)+0.5)*gr.dLat
	lon := gr.region.MinLon + (float64(c)+0.5)*gr.dLon
	return datatypes.GeoPoint{Lat: math.Min(lat, 90), Lon: math.Min(lon, 180)}
}

func cellID(r, c int) string {
	return fmt.Sprintf("cell-%04d-%04d", r, c)
}

func (g *Identifier) gridCells(in Input, res *Result) (map[string]*cellAgg, error) {
	gr, err := g.newGrid(in.Region)
	if err != nil {
		return nil, err
	}

	cells := make(map[string]*cellAgg)
	for _, a := range in.Areas {
		pop, demand, ok := demandOf(a)
		if !ok {
			res.Skipped = append(res.Skipped, a.Geography.ID)
			continue
		}
		r, c, inside := gr.locate(a.Geography.Centroid)
		if !inside {
			res.Skipped = append(res.Skipped, a.Geography.ID)
			continue
		}
		id := cellID(r, c)
		agg, exists := cells[id]
		if !exists {
			agg = &cellAgg{id: id, center: gr.center(r, c)}
			cells[id] = agg
		}
		agg.population += pop
		agg.demand += demand
		agg.geographies = append(agg.geographies, a.Geography.ID)
	}
	return cells, nil
}
