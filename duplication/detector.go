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

// Package duplication detects repeated path segments in upload paths, both
// immediate repeats ("documents/documents/rapport.pdf") and the subtler
// repeated two-segment patterns users create by uploading a folder into a
// copy of itself ("users/john/users/john/f.txt").
package duplication

import (
	log "github.com/sirupsen/logrus"

	"github.com/pelicanplatform/uploadpath/pathutil"
)

type (
	// Type classifies what kind of duplication (if any) was found
	Type string

	// Result is the outcome of a duplication analysis. SuggestedPath is the
	// input with the duplicated segments removed; when no duplication is
	// found it equals the (normalized) input.
	Result struct {
		HasDuplication     bool     `json:"hasDuplication"`
		Type               Type     `json:"duplicationType"`
		DuplicatedSegments []string `json:"duplicatedSegments,omitempty"`
		DuplicatedPattern  string   `json:"duplicatedPattern,omitempty"`
		SuggestedPath      string   `json:"suggestedPath"`
		Confidence         float64  `json:"confidence"`
	}
)

const (
	TypeNone        Type = "none"
	TypeConsecutive Type = "consecutive"
	TypeUserPattern Type = "user_pattern"
	TypeError       Type = "error"
)

// Detector performs pure string-pattern analysis; it keeps no state and is
// safe for concurrent use.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// DetectConsecutiveDuplicates collapses runs of identical adjacent segments
// down to a single occurrence. For "a/a/a/b" the dropped segments are
// ["a", "a"] and the suggested path is "a/b".
func (d *Detector) DetectConsecutiveDuplicates(p string) Result {
	segments := pathutil.Segments(p)
	cleaned := make([]string, 0, len(segments))
	var dropped []string
	for i, segment := range segments {
		if i > 0 && segment == segments[i-1] {
			dropped = append(dropped, segment)
			continue
		}
		cleaned = append(cleaned, segment)
	}
	return Result{
		HasDuplication:     len(dropped) > 0,
		Type:               TypeConsecutive,
		DuplicatedSegments: dropped,
		SuggestedPath:      pathutil.JoinSegments(cleaned),
		Confidence:         0.95,
	}
}

// DetectUserPatternDuplication looks for the first repeated two-segment
// subsequence: segments[i] == segments[j] and segments[i+1] == segments[j+1]
// with j >= i+2. The pair at j is removed. Paths with fewer than four
// segments cannot contain such a pattern.
func (d *Detector) DetectUserPatternDuplication(p string) Result {
	segments := pathutil.Segments(p)
	if len(segments) < 4 {
		return Result{
			Type:          TypeUserPattern,
			SuggestedPath: pathutil.JoinSegments(segments),
		}
	}
	for i := 0; i+1 < len(segments); i++ {
		for j := i + 2; j+1 < len(segments); j++ {
			if segments[i] == segments[j] && segments[i+1] == segments[j+1] {
				cleaned := make([]string, 0, len(segments)-2)
				cleaned = append(cleaned, segments[:j]...)
				cleaned = append(cleaned, segments[j+2:]...)
				return Result{
					HasDuplication:     true,
					Type:               TypeUserPattern,
					DuplicatedSegments: []string{segments[i], segments[i+1]},
					DuplicatedPattern:  segments[i] + "/" + segments[i+1],
					SuggestedPath:      pathutil.JoinSegments(cleaned),
					Confidence:         0.85,
				}
			}
		}
	}
	return Result{
		Type:          TypeUserPattern,
		SuggestedPath: pathutil.JoinSegments(segments),
	}
}

// AnalyzePathDuplication runs the full duplication analysis. The consecutive
// check wins over the user-pattern check. This function never panics to its
// caller; any internal failure is reported as TypeError with the original
// path echoed back untouched.
func (d *Detector) AnalyzePathDuplication(p string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorln("Duplication analysis panicked:", r)
			result = Result{
				Type:          TypeError,
				SuggestedPath: p,
				Confidence:    0.0,
			}
		}
	}()

	if p == "" || len(p) > pathutil.MaxPathLength {
		return Result{
			Type:          TypeError,
			SuggestedPath: p,
			Confidence:    0.0,
		}
	}

	if consecutive := d.DetectConsecutiveDuplicates(p); consecutive.HasDuplication {
		log.Debugln("Consecutive duplicate segments found in", p)
		return consecutive
	}
	if pattern := d.DetectUserPatternDuplication(p); pattern.HasDuplication {
		log.Debugln("User-pattern duplication found in", p)
		return pattern
	}
	return Result{
		Type:          TypeNone,
		SuggestedPath: pathutil.JoinSegments(pathutil.Segments(p)),
		Confidence:    1.0,
	}
}
