// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package geoindex provides a spatial index over stations and points of
// interest with radius and nearest-neighbor queries.
//
// Points are bucketed into a fixed-size latitude/longitude grid. Queries
// inspect only the buckets that can hold a match and measure candidates
// with the haversine formula, so results are great-circle exact at any
// latitude. An index is built per analysis run and not updated across
// runs.
package geoindex

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
)

// DefaultCellSizeM is the default bucket edge, in meters of latitude.
const DefaultCellSizeM = 2000.0

// ErrInvalidRadius is returned for a negative or NaN radius.
var ErrInvalidRadius = errors.New("invalid radius")

// Hit is one query result.
type Hit[T any] struct {
	Payload   T
	Point     datatypes.GeoPoint
	DistanceM float64
}

type cell struct {
	row, col int
}

type item[T any] struct {
	point   datatypes.GeoPoint
	payload T
}

// Index is a grid-bucketed point index.
//
// Thread Safety: Not safe for concurrent mutation. Concurrent queries
// after the last Insert are safe.
type Index[T any] struct {
	cellDeg float64
	rows    int
	cols    int
	items   []item[T]
	buckets map[cell][]int

	minRow, maxRow int
	minCol, maxCol int
}

// Option configures an Index.
type Option func(*config)

type config struct {
	cellSizeM float64
}

// WithCellSize sets the bucket edge in meters. Non-positive values are ignored.
func WithCellSize(meters float64) Option {
	return func(c *config) {
		if meters > 0 {
			c.cellSizeM = meters
		}
	}
}

// New creates an empty index.
func New[T any](opts ...Option) *Index[T] {
	cfg := config{cellSizeM: DefaultCellSizeM}
	for _, opt := range opts {
		opt(&cfg)
	}
	deg := cfg.cellSizeM / MetersPerDegree
	return &Index[T]{
		cellDeg: deg,
		rows:    int(math.Ceil(180 / deg)),
		cols:    int(math.Ceil(360 / deg)),
		buckets: make(map[cell][]int),
	}
}

// Insert adds payload at point p.
func (ix *Index[T]) Insert(p datatypes.GeoPoint, payload T) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	c := ix.cellOf(p)
	if len(ix.items) == 0 {
		ix.minRow, ix.maxRow, ix.minCol, ix.maxCol = c.row, c.row, c.col, c.col
	} else {
		ix.minRow = min(ix.minRow, c.row)
		ix.maxRow = max(ix.maxRow, c.row)
		ix.minCol = min(ix.minCol, c.col)
		ix.maxCol = max(ix.maxCol, c.col)
	}
	ix.buckets[c] = append(ix.buckets[c], len(ix.items))
	ix.items = append(ix.items, item[T]{point: p, payload: payload})
	return nil
}

// Len returns the number of indexed points.
func (ix *Index[T]) Len() int {
	return len(ix.items)
}

// WithinRadius returns every point no farther than radiusM from center,
// nearest first. Equal distances keep insertion order.
func (ix *Index[T]) WithinRadius(center datatypes.GeoPoint, radiusM float64) ([]Hit[T], error) {
	if math.IsNaN(radiusM) || radiusM < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRadius, radiusM)
	}
	if err := center.Validate(); err != nil {
		return nil, fmt.Errorf("within radius: %w", err)
	}

	var ids []int
	latSpan := radiusM / MetersPerDegree
	cosLat := math.Cos((math.Abs(center.Lat) + latSpan) * math.Pi / 180)
	if math.Abs(center.Lat)+latSpan >= 89 || cosLat <= 0 || latSpan/cosLat >= 90 {
		ids = ix.allIDs()
	} else {
		lonSpan := latSpan / cosLat
		lo := ix.cellOf(datatypes.GeoPoint{Lat: math.Max(center.Lat-latSpan, -90), Lon: center.Lon - lonSpan})
		hi := ix.cellOf(datatypes.GeoPoint{Lat: math.Min(center.Lat+latSpan, 90), Lon: center.Lon + lonSpan})
		span := (hi.row - lo.row + 1) * (hi.col - lo.col + 1)
		if center.Lon-lonSpan < -180 || center.Lon+lonSpan > 180 || span > len(ix.buckets) {
			ids = ix.allIDs()
		} else {
			for r := lo.row; r <= hi.row; r++ {
				for c := lo.col; c <= hi.col; c++ {
					ids = append(ids, ix.buckets[cell{r, c}]...)
				}
			}
		}
	}

	hits := make([]Hit[T], 0, len(ids))
	order := make([]int, 0, len(ids))
	for _, id := range ids {
		it := ix.items[id]
		d := Haversine(center, it.point)
		if d <= radiusM {
			hits = append(hits, Hit[T]{Payload: it.payload, Point: it.point, DistanceM: d})
			order = append(order, id)
		}
	}
	sort.Sort(byDistance[T]{hits: hits, order: order})
	return hits, nil
}

// Nearest returns the closest indexed point to p. The bool is false when
// the index is empty. Ties go to the earliest inserted point.
func (ix *Index[T]) Nearest(p datatypes.GeoPoint) (Hit[T], bool) {
	var zero Hit[T]
	if len(ix.items) == 0 || p.Validate() != nil {
		return zero, false
	}

	q := ix.cellOf(p)
	bestID, bestD := -1, math.Inf(1)
	consider := func(id int) {
		d := Haversine(p, ix.items[id].point)
		if d < bestD || (d == bestD && id < bestID) {
			bestID, bestD = id, d
		}
	}
	for r := 0; ; r++ {
		// Once a ring has more cells than there are occupied buckets, a
		// plain scan is cheaper than widening further.
		if 8*r > len(ix.buckets) {
			for id := range ix.items {
				consider(id)
			}
			break
		}
		ix.visitRing(q, r, consider)
		if q.row-r <= ix.minRow && q.row+r >= ix.maxRow && q.col-r <= ix.minCol && q.col+r >= ix.maxCol {
			break
		}
		if bestID >= 0 && bestD <= ix.ringBound(p, q, r) {
			break
		}
	}
	it := ix.items[bestID]
	return Hit[T]{Payload: it.payload, Point: it.point, DistanceM: bestD}, true
}

// visitRing calls fn for every point in buckets at Chebyshev distance r
// from q.
func (ix *Index[T]) visitRing(q cell, r int, fn func(id int)) {
	visit := func(row, col int) {
		for _, id := range ix.buckets[cell{row, col}] {
			fn(id)
		}
	}
	if r == 0 {
		visit(q.row, q.col)
		return
	}
	for col := q.col - r; col <= q.col+r; col++ {
		visit(q.row-r, col)
		visit(q.row+r, col)
	}
	for row := q.row - r + 1; row <= q.row+r-1; row++ {
		visit(row, q.col-r)
		visit(row, q.col+r)
	}
}

// ringBound is a lower bound, in meters, on the distance from p to any
// point outside the buckets within Chebyshev distance r of q.
func (ix *Index[T]) ringBound(p datatypes.GeoPoint, q cell, r int) float64 {
	south := float64(q.row-r)*ix.cellDeg - 90
	north := float64(q.row+r+1)*ix.cellDeg - 90
	latGap := math.Inf(1)
	if south > -90 {
		latGap = p.Lat - south
	}
	if north < 90 {
		latGap = math.Min(latGap, north-p.Lat)
	}
	latGapM := latGap * MetersPerDegree

	west := float64(q.col-r)*ix.cellDeg - 180
	east := float64(q.col+r+1)*ix.cellDeg - 180
	if west <= -180 || east >= 180 {
		return 0
	}
	dLon := math.Min(p.Lon-west, east-p.Lon)
	if dLon >= 90 {
		return 0
	}
	// Distance from p to the meridian great circle dLon away.
	s := math.Abs(math.Cos(p.Lat*math.Pi/180) * math.Sin(dLon*math.Pi/180))
	lonGapM := EarthRadiusM * math.Asin(math.Min(s, 1))

	return math.Min(latGapM, lonGapM)
}

func (ix *Index[T]) cellOf(p datatypes.GeoPoint) cell {
	row := int(math.Floor((p.Lat + 90) / ix.cellDeg))
	col := int(math.Floor((p.Lon + 180) / ix.cellDeg))
	return cell{row: min(max(row, 0), ix.rows-1), col: min(max(col, 0), ix.cols-1)}
}

func (ix *Index[T]) allIDs() []int {
	ids := make([]int, len(ix.items))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

type byDistance[T any] struct {
	hits  []Hit[T]
	order []int
}

func (b byDistance[T]) Len() int { return len(b.hits) }
func (b byDistance[T]) Less(i, j int) bool {
	if b.hits[i].DistanceM != b.hits[j].DistanceM {
		return b.hits[i].DistanceM < b.hits[j].DistanceM
	}
	return b.order[i] < b.order[j]
}
func (b byDistance[T]) Swap(i, j int) {
	b.hits[i], b.hits[j] = b.hits[j], b.hits[i]
	b.order[i], b.order[j] = b.order[j], b.order[i]
}
