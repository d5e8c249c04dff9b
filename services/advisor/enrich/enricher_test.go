// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/cache"
	"github.com/AleutianAI/EVChargeAdvisor/services/advisor/datatypes"
)

// =============================================================================
// Test fixtures
// =============================================================================

var testGeo = datatypes.Geography{ID: "06075", Name: "San Francisco", Centroid: datatypes.GeoPoint{Lat: 37.77, Lon: -122.42}}

func testStations(n int) []datatypes.ChargingStation {
	out := make([]datatypes.ChargingStation, n)
	for i := range out {
		out[i] = datatypes.ChargingStation{
			ID:          fmt.Sprintf("s%d", i),
			Location:    datatypes.GeoPoint{Lat: 37.70 + float64(i)*0.01, Lon: -122.45 + float64(i)*0.01},
			Connectors:  []datatypes.Connector{{Level: datatypes.LevelTwo, PowerKW: 7.2, Count: 2}},
			Status:      datatypes.StatusOperational,
			GeographyID: testGeo.ID,
		}
	}
	return out
}

// countingFetchers returns fetchers that succeed and count their calls.
type counts struct {
	demographics, amenities, access, weather atomic.Int32
}

func countingFetchers(c *counts) Fetchers {
	return Fetchers{
		Demographics: FetcherFunc[DemographicQuery, datatypes.DemographicProfile]{
			Name: "census",
			Fn: func(_ context.Context, q DemographicQuery) (datatypes.DemographicProfile, error) {
				c.demographics.Add(1)
				return datatypes.DemographicProfile{GeographyID: q.GeographyID, Population: datatypes.Int64Ptr(5000)}, nil
			},
		},
		Amenities: FetcherFunc[AmenityQuery, datatypes.AmenitySet]{
			Name: "poi",
			Fn: func(_ context.Context, q AmenityQuery) (datatypes.AmenitySet, error) {
				c.amenities.Add(1)
				return datatypes.AmenitySet{RadiusM: q.RadiusM, Entries: []datatypes.Amenity{{Type: datatypes.AmenityDining, DistanceM: 80}}}, nil
			},
		},
		Access: FetcherFunc[AmenityQuery, datatypes.AmenitySet]{
			Name: "poi",
			Fn: func(_ context.Context, q AmenityQuery) (datatypes.AmenitySet, error) {
				c.access.Add(1)
				return datatypes.AmenitySet{RadiusM: q.RadiusM, Entries: []datatypes.Amenity{{Type: datatypes.AmenityTransit, DistanceM: 200}}}, nil
			},
		},
		Weather: FetcherFunc[WeatherQuery, datatypes.WeatherProfile]{
			Name: "noaa",
			Fn: func(_ context.Context, _ WeatherQuery) (datatypes.WeatherProfile, error) {
				c.weather.Add(1)
				return datatypes.WeatherProfile{MeanTempC: 14}, nil
			},
		},
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestNewEnricher_PanicsOnNilCache(t *testing.T) {
	assert.Panics(t, func() { NewEnricher(Fetchers{}, nil) })
}

func TestNewEnricher_Defaults(t *testing.T) {
	e := NewEnricher(Fetchers{}, cache.New(), WithConfig(Config{}))
	cfg := e.Config()
	assert.Equal(t, 8, cfg.MaxInFlight)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 500.0, cfg.AmenityRadiusM)
	assert.Equal(t, 800.0, cfg.AccessRadiusM)
}

func TestEnrich_AllDimensions(t *testing.T) {
	var c counts
	e := NewEnricher(countingFetchers(&c), cache.New())

	batch, err := e.Enrich(context.Background(), testGeo, testStations(5))
	require.NoError(t, err)
	require.Len(t, batch.Stations, 5)

	for i, s := range batch.Stations {
		assert.Equal(t, fmt.Sprintf("s%d", i), s.Station.ID, "input order is kept")
		assert.Empty(t, s.MissingDimensions())
		demo, ok := s.Demographics.Get()
		require.True(t, ok)
		assert.Equal(t, "06075", demo.GeographyID)
	}
	assert.Equal(t, int32(1), c.demographics.Load(), "demographics are fetched once per geography")
	assert.Equal(t, int32(5), c.amenities.Load())
	assert.Equal(t, int32(5), c.access.Load())
	assert.False(t, batch.Summary.Partial())
	assert.Equal(t, 16, batch.Summary.Fetched)
}

func TestEnrich_AmenityFailureIsIsolated(t *testing.T) {
	var c counts
	fetchers := countingFetchers(&c)
	fetchers.Amenities = FetcherFunc[AmenityQuery, datatypes.AmenitySet]{
		Name: "poi",
		Fn: func(_ context.Context, q AmenityQuery) (datatypes.AmenitySet, error) {
			if q.Location.Lat > 37.705 && q.Location.Lat < 37.715 {
				return datatypes.AmenitySet{}, errors.New("overpass 504")
			}
			return datatypes.AmenitySet{RadiusM: q.RadiusM}, nil
		},
	}
	e := NewEnricher(fetchers, cache.New())

	batch, err := e.Enrich(context.Background(), testGeo, testStations(3))
	require.NoError(t, err)

	failed := batch.Stations[1]
	assert.Equal(t, []string{datatypes.DimAmenities}, failed.MissingDimensions())
	assert.Contains(t, failed.Amenities.Reason(), "overpass 504")
	_, ok := failed.Access.Get()
	assert.True(t, ok, "access is fetched separately and survives")

	assert.Empty(t, batch.Stations[0].MissingDimensions())
	assert.Empty(t, batch.Stations[2].MissingDimensions())
	assert.Equal(t, 1, batch.Summary.Missing[datatypes.DimAmenities])
	assert.True(t, batch.Summary.Partial())
}

func TestEnrich_RespectsInFlightLimit(t *testing.T) {
	var current, peak atomic.Int32
	slow := func() {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
	}
	fetchers := Fetchers{
		Amenities: FetcherFunc[AmenityQuery, datatypes.AmenitySet]{Name: "poi", Fn: func(context.Context, AmenityQuery) (datatypes.AmenitySet, error) {
			slow()
			return datatypes.AmenitySet{}, nil
		}},
		Weather: FetcherFunc[WeatherQuery, datatypes.WeatherProfile]{Name: "noaa", Fn: func(context.Context, WeatherQuery) (datatypes.WeatherProfile, error) {
			slow()
			return datatypes.WeatherProfile{}, nil
		}},
	}
	cfg := DefaultConfig()
	cfg.MaxInFlight = 3
	e := NewEnricher(fetchers, cache.New(), WithConfig(cfg))

	batch, err := e.Enrich(context.Background(), testGeo, testStations(12))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 12, batch.Summary.Missing[datatypes.DimAccess], "nil fetcher leaves access missing")
	assert.Equal(t, ReasonNoFetcher, batch.Stations[0].Access.Reason())
}

func TestEnrich_TimeoutMarksMissing(t *testing.T) {
	fetchers := Fetchers{
		Weather: FetcherFunc[WeatherQuery, datatypes.WeatherProfile]{Name: "noaa", Fn: func(context.Context, WeatherQuery) (datatypes.WeatherProfile, error) {
			// Ignores its context on purpose.
			time.Sleep(300 * time.Millisecond)
			return datatypes.WeatherProfile{MeanTempC: 1}, nil
		}},
	}
	cfg := DefaultConfig()
	cfg.FetchTimeout = 20 * time.Millisecond
	e := NewEnricher(fetchers, cache.New(), WithConfig(cfg))

	start := time.Now()
	batch, err := e.Enrich(context.Background(), testGeo, testStations(2))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond, "abandoned fetches do not hold the batch")
	assert.Equal(t, ReasonTimeout, batch.Stations[0].Weather.Reason())
	assert.Equal(t, ReasonTimeout, batch.Stations[1].Weather.Reason())
}

func TestEnrich_CancellationKeepsFinishedWork(t *testing.T) {
	var c counts
	fetchers := countingFetchers(&c)
	started := make(chan struct{})
	var once sync.Once
	fetchers.Amenities = FetcherFunc[AmenityQuery, datatypes.AmenitySet]{Name: "poi", Fn: func(ctx context.Context, _ AmenityQuery) (datatypes.AmenitySet, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return datatypes.AmenitySet{}, ctx.Err()
	}}
	e := NewEnricher(fetchers, cache.New())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	batch, err := e.Enrich(ctx, testGeo, testStations(3))
	require.NoError(t, err)
	assert.True(t, batch.Summary.Cancelled)
	for _, s := range batch.Stations {
		assert.Equal(t, ReasonCancelled, s.Amenities.Reason())
		_, ok := s.Weather.Get()
		assert.True(t, ok, "completed lookups are kept")
	}
}

func TestEnrich_CancelledBatchDoesNotSpoilSharedFetch(t *testing.T) {
	var c counts
	fetchers := countingFetchers(&c)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var amenityCalls atomic.Int32
	fetchers.Amenities = FetcherFunc[AmenityQuery, datatypes.AmenitySet]{Name: "poi", Fn: func(ctx context.Context, q AmenityQuery) (datatypes.AmenitySet, error) {
		amenityCalls.Add(1)
		once.Do(func() { close(started) })
		select {
		case <-release:
			return datatypes.AmenitySet{RadiusM: q.RadiusM, Entries: []datatypes.Amenity{{Type: datatypes.AmenityDining, DistanceM: 40}}}, nil
		case <-ctx.Done():
			return datatypes.AmenitySet{}, ctx.Err()
		}
	}}
	e := NewEnricher(fetchers, cache.New())
	stations := testStations(1)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	doneA := make(chan *Batch, 1)
	go func() {
		b, err := e.Enrich(ctxA, testGeo, stations)
		assert.NoError(t, err)
		doneA <- b
	}()
	<-started

	doneB := make(chan *Batch, 1)
	go func() {
		b, err := e.Enrich(context.Background(), testGeo, stations)
		assert.NoError(t, err)
		doneB <- b
	}()
	// Let batch B join the in-flight amenity fetch.
	time.Sleep(50 * time.Millisecond)

	cancelA()
	batchA := <-doneA
	assert.Equal(t, ReasonCancelled, batchA.Stations[0].Amenities.Reason())

	close(release)
	batchB := <-doneB
	amenities, ok := batchB.Stations[0].Amenities.Get()
	require.True(t, ok, "a batch that was never cancelled keeps its amenities")
	assert.Len(t, amenities.Entries, 1)
	assert.False(t, batchB.Summary.Cancelled)
	assert.Equal(t, int32(1), amenityCalls.Load(), "both batches share one fetch")
}

func TestEnrich_SecondRunServedFromCache(t *testing.T) {
	var c counts
	store := cache.New()
	e := NewEnricher(countingFetchers(&c), store)
	stations := testStations(4)

	_, err := e.Enrich(context.Background(), testGeo, stations)
	require.NoError(t, err)
	batch, err := e.Enrich(context.Background(), testGeo, stations)
	require.NoError(t, err)

	assert.Equal(t, int32(1), c.demographics.Load())
	assert.Equal(t, int32(4), c.amenities.Load())
	assert.Equal(t, 0, batch.Summary.Fetched)
	assert.Equal(t, 13, batch.Summary.CacheHits)
}

func TestEnrich_NoStationsStillFetchesDemographics(t *testing.T) {
	var c counts
	e := NewEnricher(countingFetchers(&c), cache.New())
	batch, err := e.Enrich(context.Background(), testGeo, nil)
	require.NoError(t, err)
	_, ok := batch.Demographics.Get()
	assert.True(t, ok)
	assert.Empty(t, batch.Stations)
}

func TestEnrich_InvalidInput(t *testing.T) {
	e := NewEnricher(Fetchers{}, cache.New())
	_, err := e.Enrich(context.Background(), datatypes.Geography{}, nil)
	assert.Error(t, err)

	bad := testStations(1)
	bad[0].Location.Lat = 123
	_, err = e.Enrich(context.Background(), testGeo, bad)
	assert.ErrorIs(t, err, datatypes.ErrInvalidStation)
}

func TestQueryParams(t *testing.T) {
	a := AmenityQuery{Location: datatypes.GeoPoint{Lat: 1.0000001, Lon: 2}, RadiusM: 500,
		Types: []datatypes.AmenityType{datatypes.AmenityShopping, datatypes.AmenityDining}}
	b := AmenityQuery{Location: datatypes.GeoPoint{Lat: 1, Lon: 2}, RadiusM: 500,
		Types: []datatypes.AmenityType{datatypes.AmenityDining, datatypes.AmenityShopping}}
	assert.Equal(t, cache.NewKey("poi", a.Params()), cache.NewKey("poi", b.Params()))

	w := WeatherQuery{Location: datatypes.GeoPoint{Lat: 37.771, Lon: -122.419}}
	assert.Equal(t, map[string]string{"lat": "37.77", "lon": "-122.42"}, w.Params())
}

func TestFetchError(t *testing.T) {
	inner := errors.New("503")
	err := error(&FetchError{Source: "poi", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "fetch poi: 503", err.Error())
}
