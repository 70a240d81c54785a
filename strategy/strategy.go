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

// Package strategy implements the three path-construction strategies used
// for uploaded files. All constructors are pure: they compute and validate a
// relative path string and never touch the filesystem.
package strategy

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/pelicanplatform/uploadpath/pathutil"
	"github.com/pelicanplatform/uploadpath/structs"
)

// Strategy names the path-construction method applied to a file.
type Strategy string

const (
	// Basename ignores the hint and places the file directly under the
	// destination folder
	Basename Strategy = "basename"
	// WebkitPath uses the client-supplied relative path hint verbatim
	WebkitPath Strategy = "webkit_path"
	// SmartPath uses the hint after removing a leading segment that
	// duplicates the destination folder
	SmartPath Strategy = "smart_path"
	// Custom marks a final path that matches none of the constructors'
	// output (e.g. after a duplication fix)
	Custom Strategy = "custom"
)

var (
	ErrMissingHint  = errors.New("file carries no relative path hint")
	ErrInsecureHint = errors.New("security violation: relative path hint rejected")
	ErrEmptyRemains = errors.New("hint is empty after removing the duplicated leading segment")
)

// ConstructBasename builds destFolder/<basename of OriginalName>. This is the
// strategy of last resort; it fails only when the result cannot be validated,
// and never silently produces an empty filename.
func ConstructBasename(destFolder string, file structs.UploadFile) (string, error) {
	if file.OriginalName == "" {
		return "", errors.New("file has no original name")
	}
	dest := pathutil.SanitizeRelPath(destFolder)
	name := pathutil.SanitizeFileName(path.Base(pathutil.NormalizeSeparators(file.OriginalName)))
	joined := name
	if dest != "" {
		joined = dest + "/" + name
	}
	if err := pathutil.ValidateRelPath(joined); err != nil {
		return "", errors.Wrap(err, "basename construction produced an invalid path")
	}
	return joined, nil
}

// hintIsInsecure rejects hints that attempt traversal, are absolute, or are
// oversized. The check runs against the raw hint, before sanitization, so an
// attacker cannot smuggle traversal through the cleanup pass.
func hintIsInsecure(hint string) bool {
	normalized := pathutil.NormalizeSeparators(hint)
	if pathutil.ContainsTraversal(normalized) {
		return true
	}
	if strings.Contains(normalized, "./") || strings.Contains(hint, ".\\") {
		return true
	}
	if pathutil.IsAbsolute(normalized) {
		return true
	}
	return len(hint) > pathutil.MaxPathLength
}

// ConstructWebkitPath builds destFolder/<sanitized hint>, preserving the
// folder structure the client described. Hints containing traversal
// sequences or absolute paths are rejected with ErrInsecureHint.
func ConstructWebkitPath(destFolder string, file structs.UploadFile) (string, error) {
	if !file.HasHint() {
		return "", ErrMissingHint
	}
	if hintIsInsecure(file.RelativePathHint) {
		return "", errors.Wrapf(ErrInsecureHint, "hint %q", file.RelativePathHint)
	}
	dest := pathutil.SanitizeRelPath(destFolder)
	hint := pathutil.SanitizeRelPath(file.RelativePathHint)
	if hint == "" {
		return "", ErrMissingHint
	}
	joined := hint
	if dest != "" {
		joined = dest + "/" + hint
	}
	if err := pathutil.ValidateRelPath(joined); err != nil {
		return "", errors.Wrap(err, "webkit construction produced an invalid path")
	}
	return joined, nil
}

// ConstructSmartPath handles the common duplication case where the hint's
// first segment repeats the destination folder's own basename (a browser
// includes the folder name in every relative path). The leading segment is
// dropped and the remainder joined under destFolder; hints without the
// duplicate leading segment fall through to ConstructWebkitPath.
func ConstructSmartPath(destFolder string, file structs.UploadFile) (string, error) {
	if !file.HasHint() {
		return "", ErrMissingHint
	}
	if hintIsInsecure(file.RelativePathHint) {
		return "", errors.Wrapf(ErrInsecureHint, "hint %q", file.RelativePathHint)
	}
	destSegments := pathutil.Segments(destFolder)
	hintSegments := pathutil.Segments(file.RelativePathHint)
	if len(destSegments) > 0 && len(hintSegments) > 0 &&
		hintSegments[0] == destSegments[len(destSegments)-1] {
		remainder := hintSegments[1:]
		if len(remainder) == 0 {
			return "", ErrEmptyRemains
		}
		trimmed := file
		trimmed.RelativePathHint = pathutil.JoinSegments(remainder)
		return ConstructWebkitPath(destFolder, trimmed)
	}
	return ConstructWebkitPath(destFolder, file)
}

// Construct dispatches to the named strategy.
func Construct(s Strategy, destFolder string, file structs.UploadFile) (string, error) {
	switch s {
	case Basename:
		return ConstructBasename(destFolder, file)
	case WebkitPath:
		return ConstructWebkitPath(destFolder, file)
	case SmartPath:
		return ConstructSmartPath(destFolder, file)
	default:
		return "", errors.Errorf("unknown path construction strategy %q", s)
	}
}
