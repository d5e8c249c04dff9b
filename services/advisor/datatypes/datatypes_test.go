// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoPoint_Validate(t *testing.T) {
	assert.NoError(t, GeoPoint{Lat: 90, Lon: -180}.Validate())
	assert.ErrorIs(t, GeoPoint{Lat: 90.01, Lon: 0}.Validate(), ErrInvalidCoordinate)
	assert.ErrorIs(t, GeoPoint{Lat: 0, Lon: 181}.Validate(), ErrInvalidCoordinate)
}

func TestBoundingBox(t *testing.T) {
	_, ok := BoundingBox(nil)
	assert.False(t, ok)

	b, ok := BoundingBox([]GeoPoint{{Lat: 1, Lon: 5}, {Lat: -2, Lon: 7}, {Lat: 0, Lon: 6}})
	require.True(t, ok)
	assert.Equal(t, BBox{MinLat: -2, MinLon: 5, MaxLat: 1, MaxLon: 7}, b)
	assert.True(t, b.Contains(GeoPoint{Lat: 1, Lon: 7}))
	assert.False(t, b.Contains(GeoPoint{Lat: 1.1, Lon: 7}))
	assert.Equal(t, GeoPoint{Lat: -0.5, Lon: 6}, b.Center())
	assert.ErrorIs(t, BBox{MinLat: 2, MaxLat: 1}.Validate(), ErrInvalidCoordinate)
}

func TestChargingStation_Connectors(t *testing.T) {
	s := ChargingStation{
		ID:       "s1",
		Location: GeoPoint{Lat: 37.77, Lon: -122.41},
		Connectors: []Connector{
			{Level: LevelTwo, PowerKW: 7.2, Count: 4},
			{Level: LevelDCFast, PowerKW: 150, Count: 2},
		},
		Status: StatusOperational,
	}
	require.NoError(t, s.Validate())
	assert.Equal(t, 6, s.TotalConnectors())
	assert.Equal(t, 2, s.FastConnectors())
	assert.True(t, s.HasFastCharging())

	c := s.Clone()
	c.Connectors[0].Count = 99
	assert.Equal(t, 4, s.Connectors[0].Count)

	bad := s
	bad.Connectors = []Connector{{Level: "level9", Count: 1}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidStation)
}

func TestDimension_JSON(t *testing.T) {
	t.Run("missing encodes as literal", func(t *testing.T) {
		e := EnrichedStation{
			Station: ChargingStation{ID: "s1"},
			Access:  Present(AmenitySet{RadiusM: 500, Entries: []Amenity{{Type: AmenityTransit, DistanceM: 120}}}),
		}
		data, err := json.Marshal(e)
		require.NoError(t, err)

		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.JSONEq(t, `"missing"`, string(raw["amenities"]))
		assert.JSONEq(t, `"missing"`, string(raw["weather"]))

		var back EnrichedStation
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, back.Amenities.IsMissing())
		access, ok := back.Access.Get()
		require.True(t, ok)
		assert.Equal(t, 1, access.CountWithin(AmenityTransit, 500))
	})

	t.Run("zero value is missing", func(t *testing.T) {
		var d Dimension[WeatherProfile]
		assert.True(t, d.IsMissing())
		assert.Empty(t, d.Reason())
	})

	t.Run("reason kept", func(t *testing.T) {
		d := Missing[WeatherProfile]("timeout")
		assert.Equal(t, "timeout", d.Reason())
	})
}

func TestEnrichedStation_MissingDimensions(t *testing.T) {
	e := EnrichedStation{Weather: Present(WeatherProfile{MeanTempC: 12})}
	assert.Equal(t, []string{DimDemographics, DimAmenities, DimAccess}, e.MissingDimensions())
	assert.True(t, e.HasAnyDimension())
	assert.False(t, EnrichedStation{}.HasAnyDimension())
}

func TestAmenitySet_CountWithin(t *testing.T) {
	set := AmenitySet{Entries: []Amenity{
		{Type: AmenityDining, DistanceM: 100},
		{Type: AmenityDining, DistanceM: 501},
		{Type: AmenityShopping, DistanceM: 10},
	}}
	assert.Equal(t, 1, set.CountWithin(AmenityDining, 500))
	assert.Equal(t, 2, set.CountWithin(AmenityDining, 600))
	assert.Equal(t, 0, set.CountWithin(AmenityParking, 600))
}

func TestDemographicProfile_Known(t *testing.T) {
	var d DemographicProfile
	_, ok := d.KnownPopulation()
	assert.False(t, ok)

	d.Population = Int64Ptr(0)
	_, ok = d.KnownPopulation()
	assert.False(t, ok)

	d.Population = Int64Ptr(1200)
	d.MedianIncome = Float64Ptr(52000)
	pop, ok := d.KnownPopulation()
	assert.True(t, ok)
	assert.Equal(t, int64(1200), pop)
	inc, ok := d.KnownIncome()
	assert.True(t, ok)
	assert.Equal(t, 52000.0, inc)

	_, ok = d.KnownPovertyRate()
	assert.False(t, ok)
	_, ok = d.KnownNoVehicleRate()
	assert.False(t, ok)

	d.PovertyRate = Float64Ptr(0.18)
	d.VehicleOwnershipRate = Float64Ptr(0.75)
	pov, ok := d.KnownPovertyRate()
	assert.True(t, ok)
	assert.Equal(t, 0.18, pov)
	noVehicle, ok := d.KnownNoVehicleRate()
	assert.True(t, ok)
	assert.InDelta(t, 0.25, noVehicle, 1e-12)

	d.PovertyRate = Float64Ptr(18)
	_, ok = d.KnownPovertyRate()
	assert.False(t, ok, "rates are shares, not percentages")
}

func TestBBox_Expand(t *testing.T) {
	b := BBox{MinLat: 37.7, MinLon: -122.5, MaxLat: 37.8, MaxLon: -122.4}
	assert.Equal(t, b, b.Expand(0))

	e := b.Expand(1000)
	assert.InDelta(t, 37.7-1000/111195.08, e.MinLat, 1e-9)
	assert.InDelta(t, 37.8+1000/111195.08, e.MaxLat, 1e-9)
	assert.Less(t, e.MinLon, b.MinLon)
	assert.Greater(t, e.MaxLon, b.MaxLon)
	assert.True(t, e.Contains(b.Center()))

	polar := BBox{MinLat: 89.99, MinLon: 10, MaxLat: 90, MaxLon: 20}.Expand(5000)
	assert.Equal(t, 90.0, polar.MaxLat)
	assert.Equal(t, -180.0, polar.MinLon)
	assert.Equal(t, 180.0, polar.MaxLon)
}

func TestChargingStation_Capacity(t *testing.T) {
	s := ChargingStation{ID: "s1"}
	assert.Equal(t, 1, s.Capacity())
	s.Connectors = []Connector{{Level: LevelTwo, Count: 4}, {Level: LevelDCFast, Count: 2}}
	assert.Equal(t, 6, s.Capacity())
	assert.Equal(t, 2, s.FastConnectors())
}
