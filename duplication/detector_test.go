/***************************************************************
 *
 * Copyright (C) 2024, Pelican Project, Morgridge Institute for Research
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package duplication

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectConsecutiveDuplicates(t *testing.T) {
	detector := NewDetector()

	testCases := []struct {
		name          string
		input         string
		hasDup        bool
		suggestedPath string
		dropped       []string
	}{
		{
			name:          "simple-repeat",
			input:         "documents/documents/rapport.pdf",
			hasDup:        true,
			suggestedPath: "documents/rapport.pdf",
			dropped:       []string{"documents"},
		},
		{
			name:          "triple-repeat-collapses-to-one",
			input:         "a/a/a/b",
			hasDup:        true,
			suggestedPath: "a/b",
			dropped:       []string{"a", "a"},
		},
		{
			name:          "two-separate-runs",
			input:         "x/x/y/y/z",
			hasDup:        true,
			suggestedPath: "x/y/z",
			dropped:       []string{"x", "y"},
		},
		{
			name:          "no-duplication",
			input:         "a/b/c",
			hasDup:        false,
			suggestedPath: "a/b/c",
		},
		{
			name:          "non-adjacent-repeat-ignored",
			input:         "a/b/a/c",
			hasDup:        false,
			suggestedPath: "a/b/a/c",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := detector.DetectConsecutiveDuplicates(tc.input)
			assert.Equal(t, tc.hasDup, result.HasDuplication)
			assert.Equal(t, tc.suggestedPath, result.SuggestedPath)
			if tc.hasDup {
				assert.Equal(t, tc.dropped, result.DuplicatedSegments)
			}
		})
	}
}

func TestDetectUserPatternDuplication(t *testing.T) {
	detector := NewDetector()

	result := detector.DetectUserPatternDuplication("users/john/users/john/f.txt")
	require.True(t, result.HasDuplication)
	assert.Equal(t, "users/john", result.DuplicatedPattern)
	assert.Equal(t, "users/john/f.txt", result.SuggestedPath)

	// Fewer than four segments can never hold a repeated pair
	result = detector.DetectUserPatternDuplication("a/b/c")
	assert.False(t, result.HasDuplication)

	result = detector.DetectUserPatternDuplication("a/b/c/d/e")
	assert.False(t, result.HasDuplication)
}

func TestAnalyzePathDuplication(t *testing.T) {
	detector := NewDetector()

	t.Run("consecutive-takes-priority", func(t *testing.T) {
		result := detector.AnalyzePathDuplication("documents/documents/rapport.pdf")
		assert.Equal(t, TypeConsecutive, result.Type)
		assert.True(t, result.HasDuplication)
		assert.Equal(t, "documents/rapport.pdf", result.SuggestedPath)
		assert.InDelta(t, 0.95, result.Confidence, 1e-9)
	})

	t.Run("user-pattern", func(t *testing.T) {
		result := detector.AnalyzePathDuplication("users/john/users/john/f.txt")
		assert.Equal(t, TypeUserPattern, result.Type)
		assert.InDelta(t, 0.85, result.Confidence, 1e-9)
	})

	t.Run("clean-path", func(t *testing.T) {
		result := detector.AnalyzePathDuplication("a/b/c.txt")
		assert.Equal(t, TypeNone, result.Type)
		assert.False(t, result.HasDuplication)
		assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	})

	t.Run("empty-path-is-error", func(t *testing.T) {
		result := detector.AnalyzePathDuplication("")
		assert.Equal(t, TypeError, result.Type)
		assert.Zero(t, result.Confidence)
		assert.Equal(t, "", result.SuggestedPath)
	})

	t.Run("oversized-path-echoed-unchanged", func(t *testing.T) {
		long := strings.Repeat("a/", 200) + "f.txt"
		result := detector.AnalyzePathDuplication(long)
		assert.Equal(t, TypeError, result.Type)
		assert.Equal(t, long, result.SuggestedPath)
	})
}
