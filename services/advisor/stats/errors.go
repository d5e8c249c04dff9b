// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching.
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidRange     = errors.New("invalid range")
)

// InsufficientDataError means a function got fewer samples than it needs.
type InsufficientDataError struct {
	Op   string
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need at least %d values, got %d", e.Op, e.Need, e.Got)
}

// Is matches ErrInsufficientData.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// InvalidRangeError means an argument or sample is outside its domain.
type InvalidRangeError struct {
	Op     string
	Detail string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("%s: invalid range: %s", e.Op, e.Detail)
}

// Is matches ErrInvalidRange.
func (e *InvalidRangeError) Is(target error) bool {
	return target == ErrInvalidRange
}
