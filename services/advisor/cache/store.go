// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the content-addressed, TTL-aware store that the
// enricher consults before every external fetch.
//
// # Tiers
//
// Every entry lives in an in-process map. Entries of the raw-api and
// reference classes are also written to an optional persistent tier
// (BadgerDB), so they survive a restart. Derived entries are memory-only.
//
// # Expiry
//
// An entry of class c stored at time t is absent once now - t > TTL(c).
// An expired entry is indistinguishable from one that was never written.
// There is no stale serve.
//
// # Failure
//
// Errors from the persistent tier degrade to a miss on read. They are
// logged and counted but never surface as fetch errors.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	cachedb "github.com/AleutianAI/EVChargeAdvisor/services/advisor/storage/badger"
)

// Persistent is the disk tier. *cachedb.DB implements it.
//
// Get must return an error matching cachedb.ErrNotFound for absent keys.
type Persistent interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key []byte) error
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error
}

// diskPrefix namespaces cache records inside the database.
const diskPrefix = "cache/"

// diskGrace is added to the badger TTL so that the store's own clock, not
// badger's, decides expiry. Badger only reclaims the space later.
const diskGrace = time.Hour

type entry struct {
	payload  []byte
	storedAt time.Time
	class    TTLClass
}

// diskRecord is the persisted form: key -> (payload, timestamp, class).
type diskRecord struct {
	Payload    []byte   `json:"payload"`
	StoredAtMs int64    `json:"stored_at_ms"`
	Class      TTLClass `json:"ttl_class"`
}

// FetchFunc produces the payload for a missing key.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Store is the cache. The zero value is not usable; call New.
//
// Thread Safety: Safe for concurrent use. Writes to one key are serialized
// and concurrent GetOrFetch calls for one key share a single fetch.
type Store struct {
	mu      sync.RWMutex
	entries map[Key]entry

	flight singleflight.Group
	opts   options

	hits      atomic.Int64
	misses    atomic.Int64
	coalesced atomic.Int64
	errs      atomic.Int64
}

// New creates an empty store.
//
// Example:
//
//	db, _ := cachedb.Open(cachedb.DefaultConfig(dir))
//	store := cache.New(cache.WithPersistence(db), cache.WithLogger(logger))
func New(opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		entries: make(map[Key]entry),
		opts:    o,
	}
}

// Get returns a copy of the payload stored under key.
//
// Description:
//
//	Looks in memory first, then in the persistent tier. A disk hit that is
//	still live is promoted to memory. Expired entries and tier errors are
//	reported as absent.
//
// Inputs:
//
//	ctx - Cancels the disk lookup.
//	key - Entry key.
//
// Outputs:
//
//	[]byte - Payload copy owned by the caller.
//	bool - False when absent or expired.
func (s *Store) Get(ctx context.Context, key Key) ([]byte, bool) {
	start := time.Now()
	ctx, span := startCacheSpan(ctx, "Get", key)
	defer span.End()

	payload, ok := s.lookup(ctx, key)
	if ok {
		s.hits.Add(1)
		recordCacheHit(ctx)
	} else {
		s.misses.Add(1)
		recordCacheMiss(ctx)
	}
	setCacheSpanResult(span, ok)
	recordCacheGetLatency(ctx, time.Since(start), ok)
	return payload, ok
}

func (s *Store) lookup(ctx context.Context, key Key) ([]byte, bool) {
	now := s.opts.clock.Now()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		if !s.expired(e, now) {
			return clone(e.payload), true
		}
		s.dropIfUnchanged(key, e)
		return nil, false
	}

	if s.opts.persistent == nil {
		return nil, false
	}
	raw, err := s.opts.persistent.Get(ctx, diskKey(key))
	if err != nil {
		if !errors.Is(err, cachedb.ErrNotFound) {
			s.degrade(ctx, "get", key, err)
		}
		return nil, false
	}
	var rec diskRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.degrade(ctx, "decode", key, err)
		return nil, false
	}
	e = entry{payload: rec.Payload, storedAt: time.UnixMilli(rec.StoredAtMs), class: rec.Class}
	if !e.class.Valid() || s.expired(e, now) {
		return nil, false
	}

	s.mu.Lock()
	if cur, exists := s.entries[key]; !exists || cur.storedAt.Before(e.storedAt) {
		s.entries[key] = e
	}
	s.mu.Unlock()
	return clone(e.payload), true
}

// Put stores a copy of value under key with the given class.
//
// Outputs:
//
//	error - ErrUnknownClass, or a *CacheError when the disk write failed.
//	        The memory tier is updated in either case except ErrUnknownClass.
func (s *Store) Put(ctx context.Context, key Key, value []byte, class TTLClass) error {
	if !class.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	e := entry{payload: clone(value), storedAt: s.opts.clock.Now(), class: class}

	var diskErr error
	if class.Persistent() && s.opts.persistent != nil {
		diskErr = s.writeDisk(ctx, key, e)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()

	if diskErr != nil {
		s.degrade(ctx, "put", key, diskErr)
		return &CacheError{Op: "put", Key: key, Err: diskErr}
	}
	return nil
}

func (s *Store) writeDisk(ctx context.Context, key Key, e entry) error {
	data, err := json.Marshal(diskRecord{
		Payload:    e.payload,
		StoredAtMs: e.storedAt.UnixMilli(),
		Class:      e.class,
	})
	if err != nil {
		return err
	}
	ttl, _ := s.opts.policy.TTL(e.class)
	return s.opts.persistent.Set(ctx, diskKey(key), data, ttl+diskGrace)
}

// Invalidate removes key from both tiers.
func (s *Store) Invalidate(ctx context.Context, key Key) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	if s.opts.persistent == nil {
		return nil
	}
	if err := s.opts.persistent.Delete(ctx, diskKey(key)); err != nil {
		s.degrade(ctx, "invalidate", key, err)
		return &CacheError{Op: "invalidate", Key: key, Err: err}
	}
	return nil
}

// GetOrFetch returns the cached payload for key or runs fetch to fill it.
//
// Description:
//
//	Concurrent calls for the same key share one fetch. The first caller's
//	fetch result is stored and handed to every waiter as its own copy.
//	The shared fetch is detached from any single caller's cancellation, so
//	fetch must bound its own duration. A waiter whose ctx is cancelled
//	returns ctx.Err() immediately and abandons the shared fetch. Fetch
//	errors are returned unchanged and not cached. A failure to store the
//	result is logged; the payload is still returned.
//
// Inputs:
//
//	ctx - Caller context. Its values, not its cancellation, reach fetch.
//	key - Entry key.
//	class - TTL class for a newly fetched payload.
//	fetch - Producer for the payload.
//
// Outputs:
//
//	[]byte - Payload copy.
//	bool - True if served from cache without fetching.
//	error - The fetch error or ctx.Err().
func (s *Store) GetOrFetch(ctx context.Context, key Key, class TTLClass, fetch FetchFunc) ([]byte, bool, error) {
	if payload, ok := s.Get(ctx, key); ok {
		return payload, true, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(string(key), func() (interface{}, error) {
		if payload, ok := s.lookup(shared, key); ok {
			return payload, nil
		}
		payload, err := fetch(shared)
		if err != nil {
			return nil, err
		}
		_ = s.Put(shared, key, payload, class)
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.coalesced.Add(1)
			recordCacheCoalesced(ctx)
		}
		if res.Err != nil {
			return nil, false, res.Err
		}
		return clone(res.Val.([]byte)), false, nil
	}
}

// Purge removes expired entries from both tiers and returns how many
// were removed.
func (s *Store) Purge(ctx context.Context) (int, error) {
	now := s.opts.clock.Now()
	removed := 0

	s.mu.Lock()
	for k, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, k)
			removed++
		}
	}
	s.mu.Unlock()

	if s.opts.persistent == nil {
		return removed, nil
	}

	var stale [][]byte
	err := s.opts.persistent.Scan(ctx, []byte(diskPrefix), func(k, v []byte) error {
		var rec diskRecord
		if err := json.Unmarshal(v, &rec); err != nil || !rec.Class.Valid() ||
			s.expired(entry{storedAt: time.UnixMilli(rec.StoredAtMs), class: rec.Class}, now) {
			stale = append(stale, k)
		}
		return nil
	})
	if err != nil {
		return removed, &CacheError{Op: "purge", Err: err}
	}
	for _, k := range stale {
		if err := s.opts.persistent.Delete(ctx, k); err != nil {
			return removed, &CacheError{Op: "purge", Key: Key(k[len(diskPrefix):]), Err: err}
		}
		removed++
	}
	return removed, nil
}

// DiskEntries counts the records in the persistent tier, expired or not.
// It is zero without persistence.
func (s *Store) DiskEntries(ctx context.Context) (int, error) {
	if s.opts.persistent == nil {
		return 0, nil
	}
	n := 0
	err := s.opts.persistent.Scan(ctx, []byte(diskPrefix), func(_, _ []byte) error {
		n++
		return nil
	})
	if err != nil {
		return n, &CacheError{Op: "scan", Err: err}
	}
	return n, nil
}

// Stats returns a snapshot of the counters. Entries counts the memory tier.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	n := len(s.entries)
	s.mu.RUnlock()
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Coalesced: s.coalesced.Load(),
		Errors:    s.errs.Load(),
		Entries:   n,
	}
}

// expired applies the strict now - storedAt > ttl rule.
func (s *Store) expired(e entry, now time.Time) bool {
	ttl, expires := s.opts.policy.TTL(e.class)
	if !expires {
		return false
	}
	return now.Sub(e.storedAt) > ttl
}

// dropIfUnchanged deletes an expired memory entry unless a concurrent Put
// replaced it after it was read.
func (s *Store) dropIfUnchanged(key Key, seen entry) {
	s.mu.Lock()
	if cur, ok := s.entries[key]; ok && cur.storedAt.Equal(seen.storedAt) {
		delete(s.entries, key)
	}
	s.mu.Unlock()
}

func (s *Store) degrade(ctx context.Context, op string, key Key, err error) {
	s.errs.Add(1)
	recordCacheError(ctx, op)
	s.opts.logger.Warn("cache operation degraded to miss",
		slog.String("op", op),
		slog.String("key", shortKey(key)),
		slog.String("error", err.Error()),
	)
}

func diskKey(k Key) []byte {
	return []byte(diskPrefix + string(k))
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
