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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// TTL classes
// =============================================================================

// TTLClass names an expiry policy bucket.
type TTLClass string

const (
	// ClassRawAPI is for raw payloads returned by external fetchers.
	ClassRawAPI TTLClass = "raw-api"

	// ClassReference is for slow-changing reference data (demographics).
	ClassReference TTLClass = "reference"

	// ClassDerived is for values computed in this process. Derived entries
	// live in memory only and never expire within the session.
	ClassDerived TTLClass = "derived"
)

// Valid reports whether c is a known class.
func (c TTLClass) Valid() bool {
	switch c {
	case ClassRawAPI, ClassReference, ClassDerived:
		return true
	}
	return false
}

// Persistent reports whether entries of this class go to the disk tier.
func (c TTLClass) Persistent() bool {
	return c == ClassRawAPI || c == ClassReference
}

// TTLPolicy maps the expiring classes to their lifetimes.
type TTLPolicy struct {
	RawAPI    time.Duration `yaml:"raw_api" json:"raw_api"`
	Reference time.Duration `yaml:"reference" json:"reference"`
}

// DefaultTTLPolicy returns raw-api 24h and reference 7d.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{RawAPI: 24 * time.Hour, Reference: 7 * 24 * time.Hour}
}

// TTL returns the lifetime of class c. The second result is false for
// session-lifetime classes, which never expire.
func (p TTLPolicy) TTL(c TTLClass) (time.Duration, bool) {
	switch c {
	case ClassRawAPI:
		return p.RawAPI, true
	case ClassReference:
		return p.Reference, true
	default:
		return 0, false
	}
}

// =============================================================================
// Keys
// =============================================================================

// Key is the content address of a cache entry: hex SHA-256 over the source
// name and the query parameters sorted by name.
type Key string

// NewKey derives the key for a request to source with params.
//
// Description:
//
//	Parameters are sorted by name before hashing, so two logically
//	identical requests hash identically regardless of map iteration or
//	insertion order. Every component is length-prefixed, so no choice of
//	names or values can make two different requests collide by
//	concatenation.
//
// Inputs:
//
//	source - Fetcher source name, e.g. "amenities".
//	params - Query parameters. May be nil.
//
// Outputs:
//
//	Key - 64 hex characters.
func NewKey(source string, params map[string]string) Key {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	writeField(&b, source)
	for _, name := range names {
		writeField(&b, name)
		writeField(&b, params[name])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return Key(hex.EncodeToString(sum[:]))
}

func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// =============================================================================
// Clock
// =============================================================================

// Clock supplies the current time for expiry decisions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// =============================================================================
// Stats
// =============================================================================

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Coalesced int64 `json:"coalesced"`
	Errors    int64 `json:"errors"`
	Entries   int   `json:"entries"`
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// String formats the stats for CLI output.
func (s Stats) String() string {
	return fmt.Sprintf("entries=%d hits=%d misses=%d coalesced=%d errors=%d hit_rate=%.2f",
		s.Entries, s.Hits, s.Misses, s.Coalesced, s.Errors, s.HitRate())
}

// =============================================================================
// Options
// =============================================================================

// Option configures a Store.
type Option func(*options)

type options struct {
	persistent Persistent
	policy     TTLPolicy
	clock      Clock
	logger     *slog.Logger
}

func defaultOptions() options {
	return options{
		policy: DefaultTTLPolicy(),
		clock:  SystemClock,
		logger: slog.Default(),
	}
}

// WithPersistence enables the disk tier for raw-api and reference entries.
func WithPersistence(p Persistent) Option {
	return func(o *options) { o.persistent = p }
}

// WithTTLPolicy overrides the class lifetimes.
func WithTTLPolicy(p TTLPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithClock overrides the time source. Tests use it to step past TTLs.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger for degraded-operation warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
