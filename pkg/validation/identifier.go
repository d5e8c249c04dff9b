// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks identifiers that flow into cache keys, InfluxDB
// tags, and log attributes.
//
// Station and geography IDs come from external datasets and are written
// as InfluxDB tag values by the history sink; source names form the
// namespace of every cache key. Restricting both to a small alphabet keeps
// Flux queries over the score history free of injected syntax.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches station and geography IDs.
// Allows letters, digits, dots, colons, underscores, and hyphens; 1-64 chars.
// Census GEOIDs ("06075"), OCM IDs ("ocm:12345"), and grid cells
// ("cell-0003-0012") all fit.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,63}$`)

// sourcePattern matches fetcher source names ("amenities", "weather_noaa").
var sourcePattern = regexp.MustCompile(`^[a-z][a-z0-9_\-]{0,31}$`)

// ValidateIdentifier validates a station or geography ID.
//
// Example:
//
//	if err := validation.ValidateIdentifier(station.ID); err != nil {
//	    return fmt.Errorf("station: %w", err)
//	}
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier format: %q (must be 1-64 chars of letters, digits, '.', ':', '_', '-')", id)
	}
	return nil
}

// ValidateIdentifiers validates every ID and reports all invalid ones.
func ValidateIdentifiers(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %q", invalid)
	}
	return nil
}

// ValidateSourceName validates a fetcher source name used as a cache
// key namespace.
func ValidateSourceName(source string) error {
	if source == "" {
		return fmt.Errorf("source name cannot be empty")
	}
	if !sourcePattern.MatchString(source) {
		return fmt.Errorf("invalid source name: %q (must be 1-32 lowercase alphanumeric chars, '_' or '-', starting with a letter)", source)
	}
	return nil
}

// SanitizeSourceName lowercases and trims a source name, then validates it.
func SanitizeSourceName(source string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(source))
	if err := ValidateSourceName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
