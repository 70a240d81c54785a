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

package pathutil

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegments(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "simple", input: "a/b/c", expected: []string{"a", "b", "c"}},
		{name: "windows-separators", input: "a\\b\\c", expected: []string{"a", "b", "c"}},
		{name: "doubled-separators", input: "a//b///c", expected: []string{"a", "b", "c"}},
		{name: "leading-trailing", input: "/a/b/", expected: []string{"a", "b"}},
		{name: "empty", input: "", expected: []string{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Segments(tc.input))
		})
	}
}

func TestSanitizeSegment(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "clean", input: "documents", expected: "documents"},
		{name: "forbidden-chars", input: `rep<or>t:"x"`, expected: "reportx"},
		{name: "trimmed-dots", input: "..hidden..", expected: "hidden"},
		{name: "trimmed-whitespace", input: "  name  ", expected: "name"},
		{name: "empty-after-sanitize", input: " .. ", expected: UnnamedSegment},
		{name: "reserved-device", input: "CON", expected: "file_CON"},
		{name: "reserved-device-lower", input: "lpt1", expected: "file_lpt1"},
		{name: "control-chars", input: "a\x00b\x1fc", expected: "abc"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSegment(tc.input))
		})
	}
}

func TestSanitizeFileNameTruncation(t *testing.T) {
	long := strings.Repeat("a", 150) + ".pdf"
	got := SanitizeFileName(long)
	require.LessOrEqual(t, len(got), MaxFileNameLength)
	assert.True(t, strings.HasSuffix(got, ".pdf"), "extension must survive truncation")
}

func TestSanitizeFileNameMultibyteTruncation(t *testing.T) {
	// 40 three-byte runes; a byte-index cut would tear the rune straddling
	// the length limit
	long := strings.Repeat("世", 40) + ".md"
	got := SanitizeFileName(long)
	require.LessOrEqual(t, len(got), MaxFileNameLength)
	assert.True(t, utf8.ValidString(got), "truncation must not split a rune")
	assert.True(t, strings.HasSuffix(got, ".md"))
	assert.NoError(t, ValidateRelPath(got))
}

func TestValidateRelPathSentinels(t *testing.T) {
	assert.ErrorIs(t, ValidateRelPath(""), ErrEmptyPath)
	assert.ErrorIs(t, ValidateRelPath(strings.Repeat("a/", 200)+"f"), ErrPathTooLong)
	assert.ErrorIs(t, ValidateRelPath("/etc/passwd"), ErrAbsolutePath)
	assert.ErrorIs(t, ValidateRelPath("a/../b"), ErrTraversal)
}

func TestValidateRelPath(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expectErr bool
	}{
		{name: "valid", input: "documents/rapport.pdf", expectErr: false},
		{name: "empty", input: "", expectErr: true},
		{name: "traversal", input: "a/../b", expectErr: true},
		{name: "absolute", input: "/etc/passwd", expectErr: true},
		{name: "drive-letter", input: "C:/temp/x", expectErr: true},
		{name: "too-long", input: strings.Repeat("a/", 200) + "f", expectErr: true},
		{name: "forbidden-char", input: "doc<s/f.txt", expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRelPath(tc.input)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSafeJoin(t *testing.T) {
	joined, err := SafeJoin("dest", "sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "dest/sub/file.txt", joined)

	_, err = SafeJoin("dest", "../../etc/passwd")
	assert.ErrorIs(t, err, ErrTraversal)

	_, err = SafeJoin("dest", "/etc/passwd")
	assert.ErrorIs(t, err, ErrAbsolutePath)

	joined, err = SafeJoin("dest", "")
	require.NoError(t, err)
	assert.Equal(t, "dest", joined)
}
