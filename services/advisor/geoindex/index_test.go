// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package geoindex

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
)

func pt(lat, lon float64) datatypes.GeoPoint {
	return datatypes.GeoPoint{Lat: lat, Lon: lon}
}

func TestHaversine(t *testing.T) {
	t.Run("identical points", func(t *testing.T) {
		assert.Equal(t, 0.0, Haversine(pt(64.8378, -147.7164), pt(64.8378, -147.7164)))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		assert.InDelta(t, MetersPerDegree, Haversine(pt(10, 20), pt(11, 20)), 1e-6)
	})

	t.Run("high latitude longitude shrinks", func(t *testing.T) {
		// One degree of longitude at 60N is about half of one at the equator.
		d := Haversine(pt(60, 10), pt(60, 11))
		assert.InDelta(t, MetersPerDegree/2, d, 100)
	})

	t.Run("symmetric", func(t *testing.T) {
		a, b := pt(37.7749, -122.4194), pt(34.0522, -118.2437)
		assert.Equal(t, Haversine(a, b), Haversine(b, a))
		assert.InDelta(t, 559_000, Haversine(a, b), 2_000)
	})
}

func TestIndex_NearestSinglePoint(t *testing.T) {
	ix := New[string]()
	p := pt(61.2181, -149.9003)
	require.NoError(t, ix.Insert(p, "anchorage"))

	hit, ok := ix.Nearest(p)
	require.True(t, ok)
	assert.Equal(t, "anchorage", hit.Payload)
	assert.Equal(t, 0.0, hit.DistanceM)
}

func TestIndex_NearestEmpty(t *testing.T) {
	ix := New[int]()
	_, ok := ix.Nearest(pt(0, 0))
	assert.False(t, ok)
}

func TestIndex_InsertRejectsInvalidPoint(t *testing.T) {
	ix := New[int]()
	assert.Error(t, ix.Insert(pt(91, 0), 1))
	assert.Equal(t, 0, ix.Len())
}

func TestIndex_NearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, base := range []datatypes.GeoPoint{pt(37.77, -122.42), pt(69.65, 18.96), pt(-33.87, 151.21)} {
		t.Run(base.String(), func(t *testing.T) {
			ix := New[int](WithCellSize(500))
			var points []datatypes.GeoPoint
			for i := 0; i < 300; i++ {
				p := pt(base.Lat+rng.Float64()*0.3-0.15, base.Lon+rng.Float64()*0.6-0.3)
				points = append(points, p)
				require.NoError(t, ix.Insert(p, i))
			}
			for q := 0; q < 50; q++ {
				query := pt(base.Lat+rng.Float64()*0.5-0.25, base.Lon+rng.Float64()*0.9-0.45)
				want, wantD := -1, math.Inf(1)
				for i, p := range points {
					if d := Haversine(query, p); d < wantD {
						want, wantD = i, d
					}
				}
				hit, ok := ix.Nearest(query)
				require.True(t, ok)
				assert.Equal(t, want, hit.Payload, "query %d", q)
				assert.InDelta(t, wantD, hit.DistanceM, 1e-9)
			}
		})
	}
}

func TestIndex_NearestFarAway(t *testing.T) {
	ix := New[string](WithCellSize(100))
	require.NoError(t, ix.Insert(pt(10, 10), "a"))
	require.NoError(t, ix.Insert(pt(10.5, 10.5), "b"))

	hit, ok := ix.Nearest(pt(-40, 100))
	require.True(t, ok)
	assert.Equal(t, "b", hit.Payload)
}

func TestIndex_WithinRadius(t *testing.T) {
	ix := New[string]()
	center := pt(47.6062, -122.3321)
	require.NoError(t, ix.Insert(Offset(center, 300, 0), "300m"))
	require.NoError(t, ix.Insert(Offset(center, 0, 100), "100m"))
	require.NoError(t, ix.Insert(Offset(center, 0, -800), "800m"))
	require.NoError(t, ix.Insert(Offset(center, 5000, 0), "5km"))

	hits, err := ix.WithinRadius(center, 1000)
	require.NoError(t, err)
	var names []string
	for _, h := range hits {
		names = append(names, h.Payload)
		assert.LessOrEqual(t, h.DistanceM, 1000.0)
	}
	assert.Equal(t, []string{"100m", "300m", "800m"}, names)

	hits, err = ix.WithinRadius(center, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = ix.WithinRadius(center, -1)
	assert.ErrorIs(t, err, ErrInvalidRadius)
}

func TestIndex_WithinRadiusNearPoleAndAntimeridian(t *testing.T) {
	ix := New[string]()
	require.NoError(t, ix.Insert(pt(89.9, 0), "pole-a"))
	require.NoError(t, ix.Insert(pt(89.9, 180), "pole-b"))
	require.NoError(t, ix.Insert(pt(0, 179.999), "east"))
	require.NoError(t, ix.Insert(pt(0, -179.999), "west"))

	hits, err := ix.WithinRadius(pt(89.95, 90), 20_000)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = ix.WithinRadius(pt(0, 180), 1_000)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestAreaKm2(t *testing.T) {
	// A 1x1 degree box at the equator is about 111.2 km on a side.
	area := AreaKm2(datatypes.BBox{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1})
	assert.InDelta(t, 12364, area, 20)
	assert.Equal(t, 0.0, AreaKm2(datatypes.BBox{}))
}

func ExampleIndex_Nearest() {
	ix := New[string]()
	_ = ix.Insert(datatypes.GeoPoint{Lat: 40.7128, Lon: -74.0060}, "nyc-001")
	hit, _ := ix.Nearest(datatypes.GeoPoint{Lat: 40.7128, Lon: -74.0060})
	fmt.Println(hit.Payload, hit.DistanceM)
	// Output: nyc-001 0
}
