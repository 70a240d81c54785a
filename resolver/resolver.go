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

// Package resolver sequences the analysis engine, construction strategies,
// and duplication detector into one deterministic pipeline per uploaded
// file. ResolvePath always returns a usable result: every internal failure
// is routed through the recovery handler and surfaces as a fallback path
// with Error set, never as a Go error or panic.
package resolver

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pelicanplatform/uploadpath/analysis"
	"github.com/pelicanplatform/uploadpath/duplication"
	"github.com/pelicanplatform/uploadpath/metrics"
	"github.com/pelicanplatform/uploadpath/monitor"
	"github.com/pelicanplatform/uploadpath/pathutil"
	"github.com/pelicanplatform/uploadpath/recovery"
	"github.com/pelicanplatform/uploadpath/strategy"
	"github.com/pelicanplatform/uploadpath/structs"
)

type (
	// Result is the final outcome for one uploaded file. FinalPath is always
	// relative to the destination folder, never absolute, and never contains
	// ".." segments.
	Result struct {
		FinalPath            string            `json:"finalPath"`
		Strategy             strategy.Strategy `json:"strategy"`
		DuplicationPrevented bool              `json:"duplicationPrevented"`
		Warnings             []string          `json:"warnings,omitempty"`
		Reasoning            string            `json:"reasoning"`
		Confidence           float64           `json:"confidence"`
		ProcessingTime       time.Duration     `json:"processingTimeMs"`
		CacheHits            int               `json:"cacheHits"`
		Error                bool              `json:"error"`
		ErrorInfo            *recovery.Record  `json:"errorInfo,omitempty"`
	}

	// Resolver orchestrates one resolution pipeline. Collaborators are
	// constructor-injected; each instance owns its monitor and handler
	// state, so independent instances never contend.
	Resolver struct {
		engine   *analysis.Engine
		detector *duplication.Detector
		handler  *recovery.Handler
		monitor  *monitor.PerformanceMonitor
	}

	// ResolverOption configures a Resolver.
	ResolverOption func(*Resolver)
)

func WithHandler(h *recovery.Handler) ResolverOption {
	return func(r *Resolver) {
		if h != nil {
			r.handler = h
		}
	}
}

func WithMonitor(m *monitor.PerformanceMonitor) ResolverOption {
	return func(r *Resolver) {
		if m != nil {
			r.monitor = m
		}
	}
}

func NewResolver(options ...ResolverOption) *Resolver {
	r := &Resolver{
		detector: duplication.NewDetector(),
	}
	for _, option := range options {
		option(r)
	}
	if r.handler == nil {
		r.handler = recovery.NewHandler()
	}
	if r.monitor == nil {
		r.monitor = monitor.NewPerformanceMonitor()
	}
	// The engine splits every hint it inspects; route those through the
	// monitor's memo so repeated paths are split once and the string
	// operation timings get recorded.
	r.engine = analysis.NewEngine(analysis.WithSegmenter(r.monitor.Segments))
	return r
}

// Monitor exposes the instance's performance monitor so callers can
// subscribe to alerts or manage its lifecycle.
func (r *Resolver) Monitor() *monitor.PerformanceMonitor {
	return r.monitor
}

// Handler exposes the instance's recovery handler for statistics access.
func (r *Resolver) Handler() *recovery.Handler {
	return r.handler
}

// ResolvePath computes the corrected relative path for one file. The batch
// is read-only context for cross-file inference; pass nil when resolving a
// lone file. This function never panics and never returns an error: any
// failure yields a fallback result with Error set and confidence 0.1.
func (r *Resolver) ResolvePath(file *structs.UploadFile, destFolder string, batch []structs.UploadFile) (result Result) {
	start := time.Now()
	defer func() {
		result.ProcessingTime = time.Since(start)
		metrics.ResolutionDuration.Observe(time.Since(start).Seconds())
		metrics.ResolutionsTotal.WithLabelValues(string(result.Strategy)).Inc()
		r.monitor.ObserveDuration(monitor.OpPathResolution, time.Since(start))
	}()
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorln("Path resolution panicked:", rec)
			result = r.errorResult(errors.Errorf("internal path resolution failure: %v", rec), file, destFolder)
		}
	}()

	// VALIDATE
	if err := validateInput(file, destFolder); err != nil {
		return r.errorResult(err, file, destFolder)
	}

	// ANALYZE
	context := batch
	if len(context) == 0 {
		context = []structs.UploadFile{*file}
	}
	analyzed, analysisHit := r.monitor.AnalyzeUploadContext(r.engine, context, destFolder)

	// CONSTRUCT
	candidate, realized, constructWarnings, err := r.construct(analyzed.Strategy, destFolder, *file)
	if err != nil {
		return r.errorResult(errors.Wrap(err, "all path construction strategies failed"), file, destFolder)
	}

	// CHECK_DUPLICATION: always analyze the path the full-hint strategy
	// would produce, even when a different strategy was chosen, so that a
	// duplicated hint is caught regardless of the classification outcome.
	wouldBe := candidate
	if file.HasHint() {
		if hinted, herr := strategy.ConstructWebkitPath(destFolder, *file); herr == nil {
			wouldBe = hinted
		}
	}
	dup, dupHit := r.monitor.AnalyzePathDuplication(r.detector, wouldBe)
	if dup.Type == duplication.TypeError {
		return r.errorResult(errors.New("duplication analysis failed for candidate path"), file, destFolder)
	}

	// APPLY_FIX
	finalPath := candidate
	prevented := false
	var fixWarnings []string
	if dup.HasDuplication {
		fixed, fixWarning := r.applyFix(dup, destFolder, *file, candidate)
		if fixWarning != "" {
			fixWarnings = append(fixWarnings, fixWarning)
		}
		if fixed != wouldBe {
			prevented = true
			metrics.DuplicationsPrevented.Inc()
		}
		finalPath = fixed
	}

	// ASSEMBLE
	realized = realizedStrategy(finalPath, destFolder, *file)
	warnings := append(append(analyzed.Warnings, constructWarnings...), fixWarnings...)
	cacheHits := 0
	if analysisHit {
		cacheHits++
	}
	if dupHit {
		cacheHits++
	}
	return Result{
		FinalPath:            finalPath,
		Strategy:             realized,
		DuplicationPrevented: prevented,
		Warnings:             warnings,
		Reasoning:            buildReasoning(analyzed, dup, realized, prevented),
		Confidence:           analyzed.Confidence,
		CacheHits:            cacheHits,
	}
}

// ResolvePathsBatch resolves every file independently and in order; one
// file's failure never aborts the batch. A nil slice yields an empty result.
func (r *Resolver) ResolvePathsBatch(files []structs.UploadFile, destFolder string) []Result {
	results := make([]Result, 0, len(files))
	for i := range files {
		results = append(results, r.ResolvePath(&files[i], destFolder, files))
	}
	return results
}

func validateInput(file *structs.UploadFile, destFolder string) error {
	if file == nil {
		return errors.New("validation failed: no upload file provided")
	}
	if strings.TrimSpace(file.OriginalName) == "" {
		return errors.New("validation failed: upload file has an empty original name")
	}
	if strings.TrimSpace(destFolder) == "" {
		return errors.New("validation failed: destination folder is empty")
	}
	if pathutil.ContainsTraversal(destFolder) {
		return errors.New("security violation: destination folder contains a traversal sequence")
	}
	return nil
}

// construct builds the candidate path with the recommended strategy,
// downgrading to basename when the hint is missing or when the chosen
// strategy fails. Only a basename failure is fatal.
func (r *Resolver) construct(recommended strategy.Strategy, destFolder string, file structs.UploadFile) (string, strategy.Strategy, []string, error) {
	chosen := recommended
	if (chosen == strategy.WebkitPath || chosen == strategy.SmartPath) && !file.HasHint() {
		chosen = strategy.Basename
	}

	if chosen != strategy.Basename {
		if p, err := strategy.Construct(chosen, destFolder, file); err == nil {
			return p, chosen, nil, nil
		} else {
			log.Debugf("Strategy %s failed for %q, retrying with basename: %v", chosen, file.OriginalName, err)
			p, berr := strategy.ConstructBasename(destFolder, file)
			if berr != nil {
				return "", "", nil, berr
			}
			warning := fmt.Sprintf("%s strategy failed (%v); downgraded to basename", chosen, err)
			return p, strategy.Basename, []string{warning}, nil
		}
	}

	p, err := strategy.ConstructBasename(destFolder, file)
	if err != nil {
		return "", "", nil, err
	}
	return p, strategy.Basename, nil, nil
}

// stillUnderDestination checks that a detector-suggested path remains rooted
// in the requested destination folder after the duplicated segments were
// removed.
func (r *Resolver) stillUnderDestination(p, destFolder string) bool {
	if pathutil.ValidateRelPath(p) != nil {
		return false
	}
	destSegments := r.monitor.Segments(pathutil.SanitizeRelPath(destFolder))
	pSegments := r.monitor.Segments(p)
	if len(pSegments) <= len(destSegments) {
		return false
	}
	for i, segment := range destSegments {
		if pSegments[i] != segment {
			return false
		}
	}
	return true
}

// applyFix picks the corrected path after a duplication finding. The
// detector's suggestion wins when it still resolves under the destination;
// otherwise the fix is re-derived per duplication type (consecutive repeats
// are the smart-path case, user patterns fall back to basename).
func (r *Resolver) applyFix(dup duplication.Result, destFolder string, file structs.UploadFile, candidate string) (string, string) {
	if r.stillUnderDestination(dup.SuggestedPath, destFolder) {
		return dup.SuggestedPath, "duplicated path segments removed"
	}

	var corrected string
	var err error
	switch dup.Type {
	case duplication.TypeConsecutive:
		corrected, err = strategy.ConstructSmartPath(destFolder, file)
	default:
		corrected, err = strategy.ConstructBasename(destFolder, file)
	}
	if err != nil {
		log.Debugf("Duplication correction failed for %q, keeping candidate path: %v", file.OriginalName, err)
		return candidate, "duplication fix failed; candidate path kept"
	}
	return corrected, "duplication corrected via " + string(dup.Type) + " fix"
}

// realizedStrategy reports which strategy the final path actually matches,
// independent of which constructor produced it along the way.
func realizedStrategy(finalPath, destFolder string, file structs.UploadFile) strategy.Strategy {
	if p, err := strategy.ConstructBasename(destFolder, file); err == nil && p == finalPath {
		return strategy.Basename
	}
	if file.HasHint() {
		if p, err := strategy.ConstructWebkitPath(destFolder, file); err == nil && p == finalPath {
			return strategy.WebkitPath
		}
		if p, err := strategy.ConstructSmartPath(destFolder, file); err == nil && p == finalPath {
			return strategy.SmartPath
		}
	}
	return strategy.Custom
}

func buildReasoning(analyzed analysis.Result, dup duplication.Result, realized strategy.Strategy, prevented bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "classified as %s upload (%.2f confidence): %s", analyzed.UploadType, analyzed.Confidence, analyzed.Reasoning)
	if prevented {
		fmt.Fprintf(&b, "; %s duplication removed", dup.Type)
	}
	fmt.Fprintf(&b, "; realized strategy %s", realized)
	return b.String()
}

// errorResult funnels any pipeline failure through the recovery handler,
// which always produces a usable path.
func (r *Resolver) errorResult(err error, file *structs.UploadFile, destFolder string) Result {
	var safeFile structs.UploadFile
	if file != nil {
		safeFile = *file
	} else {
		safeFile = structs.UploadFile{OriginalName: "upload.bin"}
	}
	fallback := r.handler.HandlePathConstructionError(err, recovery.FallbackContext{
		DestinationFolder: destFolder,
		File:              safeFile,
	})
	metrics.ErrorsTotal.WithLabelValues(string(fallback.Record.Category), string(fallback.Record.Severity)).Inc()
	return Result{
		FinalPath:  fallback.Path,
		Strategy:   strategy.Custom,
		Warnings:   fallback.Warnings,
		Reasoning:  "resolution failed; recovery fallback applied: " + fallback.Record.Message,
		Confidence: 0.1,
		Error:      true,
		ErrorInfo:  &fallback.Record,
	}
}
