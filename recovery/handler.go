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

// Package recovery owns the error taxonomy for upload path resolution, the
// category-specific fallback path builders, and the retry/backoff helper for
// external filesystem operations. Its central guarantee: whatever went wrong
// upstream, HandlePathConstructionError always hands back a usable relative
// path, so the resolver never has to surface a failure to its caller.
package recovery

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/pelicanplatform/uploadpath/pathutil"
	"github.com/pelicanplatform/uploadpath/strategy"
	"github.com/pelicanplatform/uploadpath/structs"
)

type (
	// FallbackContext carries what the fallback builders need to place a
	// file somewhere sensible after a failure.
	FallbackContext struct {
		DestinationFolder string
		File              structs.UploadFile
	}

	// FallbackResult is the always-successful outcome of error handling.
	FallbackResult struct {
		Path     string
		Record   Record
		Flagged  bool
		Warnings []string
	}

	// OperationResult reports the outcome of a retried external operation.
	OperationResult struct {
		Success   bool
		Result    interface{}
		Err       error
		Attempts  int
		Recovered bool
	}

	// Handler implements the fallback dispatch and keeps running error
	// statistics for the lifetime of the owning resolver instance.
	Handler struct {
		maxRetries  int
		retryDelay  time.Duration
		fallbackDir string

		mu                sync.Mutex
		totalErrors       int
		byCategory        map[Category]int
		bySeverity        map[Severity]int
		recoverySuccesses int
		fallbackUsages    int
	}

	// Stats is a point-in-time snapshot of the running error statistics.
	Stats struct {
		TotalErrors         int                  `json:"totalErrors"`
		ByCategory          map[Category]int     `json:"byCategory"`
		BySeverity          map[Severity]int     `json:"bySeverity"`
		CategoryPercentages map[Category]float64 `json:"categoryPercentages"`
		RecoverySuccesses   int                  `json:"recoverySuccesses"`
		FallbackUsages      int                  `json:"fallbackUsages"`
	}

	// Option configures a Handler.
	Option func(*Handler)
)

const defaultFallbackDir = "recovered"

func WithMaxRetries(n int) Option {
	return func(h *Handler) {
		if n >= 0 {
			h.maxRetries = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.retryDelay = d
		}
	}
}

func WithFallbackDirectory(dir string) Option {
	return func(h *Handler) {
		if sanitized := pathutil.SanitizeRelPath(dir); sanitized != "" {
			h.fallbackDir = sanitized
		}
	}
}

func NewHandler(options ...Option) *Handler {
	h := &Handler{
		maxRetries:  3,
		retryDelay:  100 * time.Millisecond,
		fallbackDir: defaultFallbackDir,
		byCategory:  make(map[Category]int),
		bySeverity:  make(map[Severity]int),
	}
	for _, option := range options {
		option(h)
	}
	return h
}

func (h *Handler) recordError(record Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalErrors++
	h.byCategory[record.Category]++
	h.bySeverity[record.Severity]++
}

func (h *Handler) recordRecovery() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recoverySuccesses++
}

func (h *Handler) recordFallback() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallbackUsages++
}

// Stats returns a copy of the running statistics, with per-category
// percentage distributions derived on demand.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := Stats{
		TotalErrors:         h.totalErrors,
		ByCategory:          make(map[Category]int, len(h.byCategory)),
		BySeverity:          make(map[Severity]int, len(h.bySeverity)),
		CategoryPercentages: make(map[Category]float64, len(h.byCategory)),
		RecoverySuccesses:   h.recoverySuccesses,
		FallbackUsages:      h.fallbackUsages,
	}
	for category, count := range h.byCategory {
		stats.ByCategory[category] = count
		if h.totalErrors > 0 {
			stats.CategoryPercentages[category] = 100 * float64(count) / float64(h.totalErrors)
		}
	}
	for severity, count := range h.bySeverity {
		stats.BySeverity[severity] = count
	}
	return stats
}

// ResetStats zeroes all running counters.
func (h *Handler) ResetStats() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalErrors = 0
	h.byCategory = make(map[Category]int)
	h.bySeverity = make(map[Severity]int)
	h.recoverySuccesses = 0
	h.fallbackUsages = 0
}

// SafeFallbackPath builds a path that cannot fail:
// <stem>_<unix-ts>_<short-id><ext> under the sanitized destination, or under
// the configured fallback directory when the destination is unusable.
func (h *Handler) SafeFallbackPath(destFolder, originalName string) string {
	dest := pathutil.SanitizeRelPath(destFolder)
	if dest == "" || pathutil.ContainsTraversal(destFolder) || pathutil.IsAbsolute(destFolder) {
		dest = h.fallbackDir
	}

	name := pathutil.SanitizeFileName(path.Base(pathutil.NormalizeSeparators(originalName)))
	ext := path.Ext(name)
	stem := name[:len(name)-len(ext)]
	if stem == "" || stem == pathutil.UnnamedSegment {
		stem = "upload"
	}
	if ext == "" {
		ext = ".bin"
	}

	unique := fmt.Sprintf("%s_%d_%s%s", stem, time.Now().Unix(), uuid.NewString()[:8], ext)
	return dest + "/" + pathutil.SanitizeFileName(unique)
}

// ValidateRecoveryPath enforces the safety rules on any path produced by a
// fallback builder before it is handed back to the resolver.
func (h *Handler) ValidateRecoveryPath(p string) error {
	return pathutil.ValidateRelPath(p)
}

// HandlePathConstructionError converts any upstream failure into a usable
// fallback path via the category-specific builder. It never fails; in the
// worst case the file lands under the fallback directory with a
// timestamped, collision-resistant name.
func (h *Handler) HandlePathConstructionError(err error, fctx FallbackContext) FallbackResult {
	record := NewRecord(err, map[string]string{
		"destinationFolder": fctx.DestinationFolder,
		"originalName":      fctx.File.OriginalName,
	})
	h.recordError(record)
	log.WithFields(log.Fields{
		"category": record.Category,
		"severity": record.Severity,
	}).Debugln("Recovering from path construction failure:", record.Message)

	result := FallbackResult{Record: record}

	switch record.Category {
	case CategoryPathConstruction:
		if p, berr := strategy.ConstructBasename(fctx.DestinationFolder, fctx.File); berr == nil {
			result.Path = p
			result.Warnings = append(result.Warnings, "recovered with basename strategy")
			h.recordRecovery()
			return result
		}
	case CategoryFilesystem:
		name := pathutil.SanitizeFileName(path.Base(pathutil.NormalizeSeparators(fctx.File.OriginalName)))
		if name != "" && name != pathutil.UnnamedSegment {
			candidate := pathutil.SanitizeRelPath(fctx.DestinationFolder)
			if candidate != "" {
				candidate += "/"
			}
			candidate += defaultFallbackDir + "/" + name
			if h.ValidateRecoveryPath(candidate) == nil {
				result.Path = candidate
				result.Warnings = append(result.Warnings, "file rerouted to the recovery subdirectory")
				h.recordRecovery()
				return result
			}
		}
	case CategorySecurity:
		// Never trust the requested destination after a security failure
		result.Flagged = true
		result.Path = h.SafeFallbackPath(h.fallbackDir, fctx.File.OriginalName)
		result.Warnings = append(result.Warnings, "security violation: file quarantined under the fallback directory")
		h.recordFallback()
		return result
	case CategoryDuplication:
		if p, berr := strategy.ConstructBasename(fctx.DestinationFolder, fctx.File); berr == nil {
			ext := path.Ext(p)
			stamped := p[:len(p)-len(ext)] + fmt.Sprintf("_%d", time.Now().Unix()) + ext
			if h.ValidateRecoveryPath(stamped) == nil {
				result.Path = stamped
				result.Warnings = append(result.Warnings, "duplication fallback: timestamp appended to filename")
				h.recordRecovery()
				return result
			}
		}
	case CategoryValidation:
		dest := pathutil.SanitizeRelPath(fctx.DestinationFolder)
		name := pathutil.SanitizeFileName(path.Base(pathutil.NormalizeSeparators(fctx.File.OriginalName)))
		candidate := name
		if dest != "" {
			candidate = dest + "/" + name
		}
		if candidate != "" && h.ValidateRecoveryPath(candidate) == nil {
			result.Path = candidate
			result.Warnings = append(result.Warnings, "destination and filename re-sanitized")
			h.recordRecovery()
			return result
		}
	}

	// Unknown category, or the category-specific builder came up empty
	result.Path = h.SafeFallbackPath(fctx.DestinationFolder, fctx.File.OriginalName)
	result.Warnings = append(result.Warnings, "safe fallback path generated")
	h.recordFallback()
	return result
}

// HandleFilesystemOperation runs op up to maxRetries+1 times with strictly
// sequential exponential backoff (retryDelay * 2^(attempt-1) between
// attempts). A negative maxRetries falls back to the handler's configured
// value. Context cancellation is honored between attempts.
func (h *Handler) HandleFilesystemOperation(ctx context.Context, op func(context.Context) (interface{}, error), maxRetries int) OperationResult {
	if maxRetries < 0 {
		maxRetries = h.maxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		value, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				h.recordRecovery()
			}
			return OperationResult{
				Success:   true,
				Result:    value,
				Attempts:  attempt,
				Recovered: attempt > 1,
			}
		}
		lastErr = err
		h.recordError(NewRecord(err, nil))

		if attempt > maxRetries {
			break
		}
		delay := h.retryDelay * (1 << (attempt - 1))
		log.Debugf("Filesystem operation failed (attempt %d/%d), retrying in %s: %v",
			attempt, maxRetries+1, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return OperationResult{
				Success:  false,
				Err:      ctx.Err(),
				Attempts: attempt,
			}
		}
	}
	return OperationResult{
		Success:  false,
		Err:      lastErr,
		Attempts: maxRetries + 1,
	}
}
