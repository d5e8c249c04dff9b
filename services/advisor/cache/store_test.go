// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachedb "github.com/AleutianAI/EVChargeAdvisor/services/advisor/storage/badger"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// failingDisk fails every operation.
type failingDisk struct{}

var errDisk = errors.New("disk on fire")

func (failingDisk) Get(context.Context, []byte) ([]byte, error)              { return nil, errDisk }
func (failingDisk) Set(context.Context, []byte, []byte, time.Duration) error { return errDisk }
func (failingDisk) Delete(context.Context, []byte) error                     { return errDisk }
func (failingDisk) Scan(context.Context, []byte, func(k, v []byte) error) error {
	return errDisk
}

func TestNewKey(t *testing.T) {
	t.Run("independent of insertion order", func(t *testing.T) {
		a := map[string]string{}
		a["lat"] = "37.77490"
		a["lon"] = "-122.41940"
		a["radius"] = "500"

		b := map[string]string{}
		b["radius"] = "500"
		b["lon"] = "-122.41940"
		b["lat"] = "37.77490"

		assert.Equal(t, NewKey("amenities", a), NewKey("amenities", b))
		assert.Len(t, string(NewKey("amenities", a)), 64)
	})

	t.Run("source participates", func(t *testing.T) {
		p := map[string]string{"geo": "06075"}
		assert.NotEqual(t, NewKey("demographics", p), NewKey("weather", p))
	})

	t.Run("no concatenation collisions", func(t *testing.T) {
		assert.NotEqual(t,
			NewKey("s", map[string]string{"ab": "c"}),
			NewKey("s", map[string]string{"a": "bc"}))
		assert.NotEqual(t, NewKey("s", nil), NewKey("s", map[string]string{"": ""}))
	})
}

func TestStore_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := New(WithClock(clock))
	key := NewKey("amenities", map[string]string{"id": "s1"})

	require.NoError(t, s.Put(ctx, key, []byte("payload"), ClassRawAPI))

	got, ok := s.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	got[0] = 'X'
	again, _ := s.Get(ctx, key)
	assert.Equal(t, []byte("payload"), again, "callers receive independent copies")

	clock.Advance(24 * time.Hour)
	_, ok = s.Get(ctx, key)
	assert.True(t, ok, "an entry exactly at its TTL is still live")

	clock.Advance(time.Millisecond)
	_, ok = s.Get(ctx, key)
	assert.False(t, ok, "expired entries are absent")
	assert.Equal(t, 0, s.Stats().Entries)
}

func TestStore_ClassLifetimes(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := New(WithClock(clock))

	raw := NewKey("raw", nil)
	ref := NewKey("ref", nil)
	derived := NewKey("derived", nil)
	require.NoError(t, s.Put(ctx, raw, []byte("r"), ClassRawAPI))
	require.NoError(t, s.Put(ctx, ref, []byte("f"), ClassReference))
	require.NoError(t, s.Put(ctx, derived, []byte("d"), ClassDerived))

	clock.Advance(48 * time.Hour)
	_, ok := s.Get(ctx, raw)
	assert.False(t, ok)
	_, ok = s.Get(ctx, ref)
	assert.True(t, ok)

	clock.Advance(6 * 24 * time.Hour)
	_, ok = s.Get(ctx, ref)
	assert.False(t, ok)
	_, ok = s.Get(ctx, derived)
	assert.True(t, ok, "derived entries last the whole session")
}

func TestStore_PutUnknownClass(t *testing.T) {
	s := New()
	err := s.Put(context.Background(), NewKey("x", nil), []byte("v"), TTLClass("forever"))
	assert.ErrorIs(t, err, ErrUnknownClass)
}

func TestStore_Invalidate(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := NewKey("weather", map[string]string{"lat": "1"})
	require.NoError(t, s.Put(ctx, key, []byte("v"), ClassDerived))
	require.NoError(t, s.Invalidate(ctx, key))
	_, ok := s.Get(ctx, key)
	assert.False(t, ok)
}

func TestStore_PersistentTier(t *testing.T) {
	ctx := context.Background()
	db, err := cachedb.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	clock := newFakeClock()
	first := New(WithPersistence(db), WithClock(clock))
	rawKey := NewKey("amenities", map[string]string{"id": "s1"})
	derivedKey := NewKey("report", nil)
	require.NoError(t, first.Put(ctx, rawKey, []byte(`{"entries":[]}`), ClassRawAPI))
	require.NoError(t, first.Put(ctx, derivedKey, []byte("d"), ClassDerived))
	n, err := first.DiskEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A fresh store over the same database simulates a restart.
	second := New(WithPersistence(db), WithClock(clock))
	got, ok := second.Get(ctx, rawKey)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"entries":[]}`), got)

	_, ok = second.Get(ctx, derivedKey)
	assert.False(t, ok, "derived entries are memory-only")

	clock.Advance(25 * time.Hour)
	third := New(WithPersistence(db), WithClock(clock))
	_, ok = third.Get(ctx, rawKey)
	assert.False(t, ok, "expiry uses the stored timestamp after restart")

	removed, err := third.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = db.Get(ctx, diskKey(rawKey))
	assert.ErrorIs(t, err, cachedb.ErrNotFound)
	n, err = third.DiskEntries(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_DiskErrorsDegradeToMiss(t *testing.T) {
	ctx := context.Background()
	s := New(WithPersistence(failingDisk{}))
	key := NewKey("amenities", nil)

	_, ok := s.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, int64(1), s.Stats().Errors)

	err := s.Put(ctx, key, []byte("v"), ClassRawAPI)
	var cerr *CacheError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, errDisk)

	got, ok := s.Get(ctx, key)
	require.True(t, ok, "the memory tier still serves the value")
	assert.Equal(t, []byte("v"), got)
}

func TestStore_GetOrFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches once then serves", func(t *testing.T) {
		s := New()
		key := NewKey("weather", nil)
		var calls atomic.Int32
		fetch := func(context.Context) ([]byte, error) {
			calls.Add(1)
			return []byte("sunny"), nil
		}

		v, hit, err := s.GetOrFetch(ctx, key, ClassRawAPI, fetch)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, []byte("sunny"), v)

		v, hit, err = s.GetOrFetch(ctx, key, ClassRawAPI, fetch)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, []byte("sunny"), v)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		s := New()
		key := NewKey("weather", map[string]string{"k": "err"})
		boom := errors.New("upstream 503")
		_, _, err := s.GetOrFetch(ctx, key, ClassRawAPI, func(context.Context) ([]byte, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
		_, ok := s.Get(ctx, key)
		assert.False(t, ok)
	})

	t.Run("coalesces concurrent identical fetches", func(t *testing.T) {
		s := New()
		key := NewKey("demographics", map[string]string{"geo": "06075"})
		release := make(chan struct{})
		var calls atomic.Int32
		fetch := func(context.Context) ([]byte, error) {
			calls.Add(1)
			<-release
			return []byte("profile"), nil
		}

		const n = 8
		var wg sync.WaitGroup
		results := make([][]byte, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, _, err := s.GetOrFetch(ctx, key, ClassReference, fetch)
				assert.NoError(t, err)
				results[i] = v
			}(i)
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		for _, r := range results {
			assert.Equal(t, []byte("profile"), r)
		}
		assert.LessOrEqual(t, calls.Load(), int32(n))
		assert.GreaterOrEqual(t, calls.Load(), int32(1))
		v, ok := s.Get(ctx, key)
		require.True(t, ok)
		assert.Equal(t, []byte("profile"), v)
	})

	t.Run("cancelled waiter returns promptly", func(t *testing.T) {
		s := New()
		key := NewKey("slow", nil)
		cctx, cancel := context.WithCancel(ctx)
		release := make(chan struct{})
		defer close(release)

		done := make(chan error, 1)
		go func() {
			_, _, err := s.GetOrFetch(cctx, key, ClassRawAPI, func(context.Context) ([]byte, error) {
				<-release
				return []byte("late"), nil
			})
			done <- err
		}()
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("GetOrFetch did not return after cancellation")
		}
	})
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := New()
	type profile struct {
		Pop int `json:"pop"`
	}
	key := NewKey("demographics", map[string]string{"geo": "A"})

	require.NoError(t, PutJSON(ctx, s, key, profile{Pop: 10}, ClassReference))
	got, ok := GetJSON[profile](ctx, s, key)
	require.True(t, ok)
	assert.Equal(t, 10, got.Pop)

	other := NewKey("demographics", map[string]string{"geo": "B"})
	v, hit, err := FetchJSON(ctx, s, other, ClassReference, func(context.Context) (profile, error) {
		return profile{Pop: 20}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 20, v.Pop)

	t.Run("corrupt payload is refetched", func(t *testing.T) {
		bad := NewKey("demographics", map[string]string{"geo": "C"})
		require.NoError(t, s.Put(ctx, bad, []byte("{not json"), ClassReference))
		v, hit, err := FetchJSON(ctx, s, bad, ClassReference, func(context.Context) (profile, error) {
			return profile{Pop: 30}, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 30, v.Pop)
	})
}

func TestStats_HitRate(t *testing.T) {
	assert.Equal(t, 0.0, Stats{}.HitRate())
	assert.Equal(t, 0.75, Stats{Hits: 3, Misses: 1}.HitRate())
	assert.Contains(t, Stats{Hits: 1}.String(), "hits=1")
}
