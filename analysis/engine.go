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

// Package analysis classifies an upload batch as either a set of individual
// files or a genuine folder upload, and recommends the path-construction
// strategy to use. Classification is heuristic; every decision carries a
// confidence score and a human-readable reasoning string.
package analysis

import (
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pelicanplatform/uploadpath/pathutil"
	"github.com/pelicanplatform/uploadpath/strategy"
	"github.com/pelicanplatform/uploadpath/structs"
)

type (
	// UploadType is the batch classification
	UploadType string

	// Result is the outcome of an upload-context analysis
	Result struct {
		UploadType UploadType        `json:"uploadType"`
		Strategy   strategy.Strategy `json:"strategy"`
		Confidence float64           `json:"confidence"`
		Warnings   []string          `json:"warnings,omitempty"`
		Reasoning  string            `json:"reasoning"`
	}
)

const (
	Individual UploadType = "individual"
	Folder     UploadType = "folder"
)

// The decision cutoff between a folder upload and individual files. Earlier
// revisions of this heuristic used 0.7; the more conservative 0.8 sticks us
// with basename unless the evidence for a folder upload is strong.
const folderDecisionCutoff = 0.8

var (
	// Hash-like segment: long runs of hex characters are almost always
	// machine-generated names, not folders a user created.
	hashLikeRe = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	// Temp-file-like segment names
	tempLikeRe = regexp.MustCompile(`(?i)^(~|te?mp[_\-.]?)|\.(tmp|temp|part|crdownload)$`)
)

// Folder names that commonly appear in genuine user directory structures.
var commonFolderNames = map[string]struct{}{
	"documents": {}, "downloads": {}, "pictures": {}, "photos": {},
	"images": {}, "videos": {}, "music": {}, "projects": {}, "reports": {},
	"archive": {}, "backup": {}, "data": {}, "files": {}, "uploads": {},
	"src": {}, "assets": {}, "static": {}, "site": {}, "public": {},
}

// Engine holds no mutable state; a single instance is safe for concurrent
// use. The segment splitter is injectable so a monitored caller can route
// the hot-path splits through its memo.
type Engine struct {
	segments func(string) []string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSegmenter swaps the path segment splitter, e.g. for a memoized one.
func WithSegmenter(fn func(string) []string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.segments = fn
		}
	}
}

func NewEngine(options ...EngineOption) *Engine {
	e := &Engine{segments: pathutil.Segments}
	for _, option := range options {
		option(e)
	}
	return e
}

func individualResult(confidence float64, reasoning string, warnings ...string) Result {
	return Result{
		UploadType: Individual,
		Strategy:   strategy.Basename,
		Confidence: confidence,
		Warnings:   warnings,
		Reasoning:  reasoning,
	}
}

// AnalyzeUploadContext classifies the batch. It never panics to its caller;
// an internal failure degrades to individual/basename with confidence 0.1 and
// the failure recorded as a warning.
func (e *Engine) AnalyzeUploadContext(batch []structs.UploadFile, destFolder string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorln("Upload context analysis panicked:", r)
			result = individualResult(0.1,
				"analysis failed; defaulting to individual file handling",
				fmt.Sprintf("analysis error: %v", r))
		}
	}()

	switch len(batch) {
	case 0:
		return individualResult(1.0, "empty batch")
	case 1:
		return e.analyzeSingleFile(batch[0], destFolder)
	default:
		return e.analyzeMultipleFiles(batch, destFolder)
	}
}

func segmentMatchesDest(hintSegments, destSegments []string) bool {
	for _, hs := range hintSegments {
		for _, ds := range destSegments {
			if hs == ds {
				return true
			}
		}
	}
	return false
}

func hasConsecutiveRepeat(segments []string) bool {
	for i := 1; i < len(segments); i++ {
		if segments[i] == segments[i-1] {
			return true
		}
	}
	return false
}

func hasSuspiciousSegment(segments []string) bool {
	for _, segment := range segments {
		if hashLikeRe.MatchString(segment) || tempLikeRe.MatchString(segment) {
			return true
		}
	}
	return false
}

// looksLikeRealFolder is a weak positive signal: no ultra-short segments, and
// either a recognizably common folder name or at least two levels of depth.
func looksLikeRealFolder(segments []string) bool {
	for _, segment := range segments {
		if len(segment) <= 2 {
			return false
		}
	}
	for _, segment := range segments {
		if _, ok := commonFolderNames[strings.ToLower(segment)]; ok {
			return true
		}
	}
	return len(segments) >= 2
}

func (e *Engine) analyzeSingleFile(file structs.UploadFile, destFolder string) Result {
	if !file.HasHint() {
		return individualResult(1.0, "single file without a relative path hint")
	}

	hintSegments := e.segments(file.RelativePathHint)
	destSegments := e.segments(destFolder)

	if file.RelativePathHint == file.OriginalName {
		return individualResult(1.0, "hint is identical to the original filename")
	}
	if len(hintSegments) <= 1 {
		return individualResult(0.95, "hint carries no folder structure")
	}

	if segmentMatchesDest(hintSegments, destSegments) || hasConsecutiveRepeat(hintSegments) {
		return individualResult(0.9,
			"hint would duplicate the destination folder structure",
			"potential path duplication detected in hint")
	}

	if hasSuspiciousSegment(hintSegments) {
		return individualResult(0.8,
			"hint contains hash-like or temporary-file segment names",
			"suspicious segment names in hint")
	}

	confidence := 0.5
	if len(hintSegments) > 2 {
		confidence += 0.2
	}
	if segmentMatchesDest(hintSegments, destSegments) {
		confidence -= 0.3
	}
	if looksLikeRealFolder(hintSegments[:len(hintSegments)-1]) {
		confidence += 0.2
	}
	if confidence < 0.1 {
		confidence = 0.1
	} else if confidence > 0.95 {
		confidence = 0.95
	}

	if confidence > folderDecisionCutoff {
		return Result{
			UploadType: Folder,
			Strategy:   strategy.WebkitPath,
			Confidence: confidence,
			Reasoning:  "hint carries plausible folder structure",
		}
	}
	return individualResult(confidence, "hint structure too weak to treat as a folder upload")
}

// hintIsSyntacticallyValid is a cheap validity filter used for cross-file
// inference; the construction strategies run the authoritative checks later.
func hintIsSyntacticallyValid(hint string) bool {
	if hint == "" || len(hint) > pathutil.MaxPathLength {
		return false
	}
	return !pathutil.IsAbsolute(hint) && !pathutil.ContainsTraversal(hint)
}

func commonPrefixLen(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func (e *Engine) analyzeMultipleFiles(batch []structs.UploadFile, destFolder string) Result {
	var validHints [][]string
	for _, file := range batch {
		if file.HasHint() && hintIsSyntacticallyValid(file.RelativePathHint) {
			validHints = append(validHints, e.segments(file.RelativePathHint))
		}
	}

	if len(validHints) == 0 {
		return individualResult(1.0, "no file in the batch carries a valid hint")
	}
	if float64(len(validHints)) < 0.5*float64(len(batch)) {
		return individualResult(0.9,
			fmt.Sprintf("only %d of %d files carry valid hints", len(validHints), len(batch)),
			"minority of batch carries hints")
	}

	prefix := validHints[0]
	minDepth, maxDepth := len(validHints[0]), len(validHints[0])
	totalDepth := 0
	for _, segments := range validHints {
		prefix = prefix[:commonPrefixLen(prefix, segments)]
		depth := len(segments)
		totalDepth += depth
		if depth < minDepth {
			minDepth = depth
		}
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	avgDepth := float64(totalDepth) / float64(len(validHints))

	if len(prefix) > 0 && avgDepth > 1.5 {
		confidence := 0.7
		if avgDepth > 2 {
			confidence += 0.1
		}
		if maxDepth-minDepth <= 1 {
			confidence += 0.1
		}
		if len(batch) > 3 {
			confidence += 0.05
		}
		if confidence > 0.95 {
			confidence = 0.95
		}
		if confidence > folderDecisionCutoff {
			return Result{
				UploadType: Folder,
				Strategy:   strategy.WebkitPath,
				Confidence: confidence,
				Reasoning: fmt.Sprintf("batch shares the %q prefix at average depth %.1f",
					pathutil.JoinSegments(prefix), avgDepth),
			}
		}
		return individualResult(confidence, "shared structure too shallow to treat as a folder upload")
	}

	return individualResult(0.7,
		"hints do not share a common structure",
		"mixed path patterns across batch")
}
