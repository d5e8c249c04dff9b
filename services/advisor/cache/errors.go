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
	"errors"
	"fmt"
)

// ErrUnknownClass is returned by Put for a TTL class it does not know.
var ErrUnknownClass = errors.New("unknown ttl class")

// CacheError describes a failure in the cache layer itself.
//
// Lookups never return it: the store logs it and reports a miss instead.
// Put and Invalidate return it so callers can log it.
type CacheError struct {
	Op  string
	Key Key
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, shortKey(e.Key), e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func shortKey(k Key) string {
	if len(k) > 12 {
		return string(k[:12])
	}
	return string(k)
}
