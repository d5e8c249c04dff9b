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
	"encoding/json"
	"fmt"
)

// GetJSON decodes the payload under key into a T.
// A payload that fails to decode counts as absent.
func GetJSON[T any](ctx context.Context, s *Store, key Key) (T, bool) {
	var v T
	payload, ok := s.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		s.degrade(ctx, "decode", key, err)
		var zero T
		return zero, false
	}
	return v, true
}

// PutJSON encodes v and stores it under key.
func PutJSON[T any](ctx context.Context, s *Store, key Key, v T, class TTLClass) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return &CacheError{Op: "encode", Key: key, Err: err}
	}
	return s.Put(ctx, key, payload, class)
}

// FetchJSON is GetOrFetch for JSON-encodable values. The returned bool is
// true when the value came from the cache. A cached payload that no longer
// decodes is invalidated and refetched.
func FetchJSON[T any](ctx context.Context, s *Store, key Key, class TTLClass, fetch func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	payload, hit, err := s.GetOrFetch(ctx, key, class, func(ctx context.Context) ([]byte, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(payload, &v); err == nil {
		return v, hit, nil
	} else if !hit {
		return zero, false, fmt.Errorf("decode fetched payload: %w", err)
	} else {
		s.degrade(ctx, "decode", key, err)
	}

	_ = s.Invalidate(ctx, key)
	v, err = fetch(ctx)
	if err != nil {
		return zero, false, err
	}
	_ = PutJSON(ctx, s, key, v, class)
	return v, false, nil
}
