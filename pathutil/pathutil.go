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

// Package pathutil holds the shared sanitization and validation rules used by
// every path-construction strategy. All functions are pure string
// manipulation; nothing here touches the filesystem.
package pathutil

import (
	"path"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	// MaxPathLength is the longest relative path we will ever emit
	MaxPathLength = 260

	// MaxFileNameLength caps a single filename; longer names are truncated
	// while preserving the extension
	MaxFileNameLength = 100

	// UnnamedSegment replaces a segment that sanitizes down to nothing
	UnnamedSegment = "unnamed_file"
)

var (
	ErrEmptyPath    = errors.New("path is empty")
	ErrPathTooLong  = errors.New("path exceeds the maximum allowed length")
	ErrTraversal    = errors.New("path traversal detected")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
)

// Windows reserved device names; a filename matching one of these gets a
// "file_" prefix so the result stays writable on every platform we support.
var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// NormalizeSeparators rewrites backslashes to forward slashes so that hints
// produced by Windows browsers split the same way as everyone else's.
func NormalizeSeparators(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// Segments splits a path on "/" after separator normalization, dropping empty
// segments (leading, trailing, or doubled separators).
func Segments(p string) []string {
	parts := strings.Split(NormalizeSeparators(p), "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// JoinSegments is the inverse of Segments.
func JoinSegments(segments []string) string {
	return strings.Join(segments, "/")
}

func isForbiddenRune(r rune) bool {
	if r < 0x20 || r == 0x7f {
		return true
	}
	switch r {
	case '<', '>', ':', '"', '|', '?', '*':
		return true
	}
	return false
}

// SanitizeSegment cleans a single path segment: forbidden characters are
// stripped, leading/trailing dots and whitespace are trimmed, reserved device
// names are prefixed, and a segment that sanitizes down to nothing becomes
// UnnamedSegment.
func SanitizeSegment(segment string) string {
	var b strings.Builder
	for _, r := range segment {
		if !isForbiddenRune(r) {
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), ". \t")
	if cleaned == "" {
		return UnnamedSegment
	}
	if _, reserved := reservedNames[strings.ToLower(cleaned)]; reserved {
		cleaned = "file_" + cleaned
	}
	return cleaned
}

// truncateAtRuneBoundary cuts the string to at most max bytes without ever
// splitting a multi-byte rune.
func truncateAtRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// SanitizeFileName sanitizes a filename and enforces MaxFileNameLength,
// truncating the stem rather than the extension when the name is too long.
func SanitizeFileName(name string) string {
	cleaned := SanitizeSegment(name)
	if len(cleaned) <= MaxFileNameLength {
		return cleaned
	}
	ext := path.Ext(cleaned)
	if len(ext) >= MaxFileNameLength {
		// Degenerate "extension" longer than the whole budget
		return truncateAtRuneBoundary(cleaned, MaxFileNameLength)
	}
	stem := truncateAtRuneBoundary(cleaned[:len(cleaned)-len(ext)], MaxFileNameLength-len(ext))
	if stem == "" {
		// The budget was smaller than the stem's first rune; keep that
		// rune rather than emitting a bare extension
		_, size := utf8.DecodeRuneInString(cleaned)
		stem = cleaned[:size]
	}
	return stem + ext
}

// SanitizeRelPath sanitizes every segment of a relative path and rejoins them
// with "/". The final segment is treated as a filename.
func SanitizeRelPath(p string) string {
	segments := Segments(p)
	if len(segments) == 0 {
		return ""
	}
	for i, segment := range segments {
		if i == len(segments)-1 {
			segments[i] = SanitizeFileName(segment)
		} else {
			segments[i] = SanitizeSegment(segment)
		}
	}
	return JoinSegments(segments)
}

// IsAbsolute reports whether the path is absolute in either the POSIX sense
// or the Windows drive-letter sense.
func IsAbsolute(p string) bool {
	normalized := NormalizeSeparators(p)
	if strings.HasPrefix(normalized, "/") {
		return true
	}
	// Drive letter, e.g. "C:/..."
	if len(normalized) >= 2 && normalized[1] == ':' {
		r := normalized[0]
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

// ContainsTraversal reports whether any segment of the path is "..".
func ContainsTraversal(p string) bool {
	for _, segment := range Segments(p) {
		if segment == ".." {
			return true
		}
	}
	return false
}

// ValidateRelPath enforces the shared rules on a fully-constructed relative
// path: non-empty, bounded length, not absolute, no traversal, and every
// segment must survive sanitization unchanged.
func ValidateRelPath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}
	if len(p) > MaxPathLength {
		return ErrPathTooLong
	}
	if IsAbsolute(p) {
		return ErrAbsolutePath
	}
	if ContainsTraversal(p) {
		return ErrTraversal
	}
	for _, segment := range Segments(p) {
		if SanitizeSegment(segment) != segment {
			return errors.Errorf("path segment %q contains forbidden content", segment)
		}
	}
	return nil
}

// SafeJoin joins an untrusted relative path onto a base directory, refusing
// anything that would escape the base through traversal or an absolute path.
// The returned path uses "/" separators.
func SafeJoin(base, untrusted string) (string, error) {
	if IsAbsolute(untrusted) {
		return "", ErrAbsolutePath
	}
	if ContainsTraversal(untrusted) {
		return "", ErrTraversal
	}
	segments := Segments(untrusted)
	if len(segments) == 0 {
		return NormalizeSeparators(path.Clean(base)), nil
	}
	joined := path.Join(NormalizeSeparators(base), JoinSegments(segments))
	return joined, nil
}
