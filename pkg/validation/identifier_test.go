// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"06075", "ocm:12345", "cell-0003-0012", "A", "station_1.b", strings.Repeat("x", 64)}
	for _, id := range valid {
		t.Run("valid/"+id[:min(len(id), 16)], func(t *testing.T) {
			assert.NoError(t, ValidateIdentifier(id))
		})
	}

	invalid := []string{"", "-leading", "has space", `quote"`, "a|>drop()", strings.Repeat("x", 65)}
	for _, id := range invalid {
		t.Run("invalid", func(t *testing.T) {
			assert.Error(t, ValidateIdentifier(id))
		})
	}
}

func TestValidateIdentifiers(t *testing.T) {
	require.NoError(t, ValidateIdentifiers([]string{"a", "b"}))

	err := ValidateIdentifiers([]string{"ok", "not ok", "also bad!"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ok")
	assert.Contains(t, err.Error(), "also bad!")
	assert.NotContains(t, err.Error(), `"ok"`)
}

func TestSanitizeSourceName(t *testing.T) {
	got, err := SanitizeSourceName("  Amenities ")
	require.NoError(t, err)
	assert.Equal(t, "amenities", got)

	_, err = SanitizeSourceName("9weather")
	assert.Error(t, err)

	_, err = SanitizeSourceName("")
	assert.Error(t, err)

	assert.NoError(t, ValidateSourceName("weather_noaa"))
	assert.Error(t, ValidateSourceName("Weather"))
}
