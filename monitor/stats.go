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

package monitor

import (
	"sort"
	"time"
)

// ringSize bounds the per-operation sample history used for percentile
// estimation; older samples age out as new ones arrive.
const ringSize = 1000

type (
	// Operation names an instrumented operation type.
	Operation string

	// rollingStats accumulates timing samples for one operation type. All
	// durations are tracked in milliseconds. Not safe for concurrent use on
	// its own; the monitor serializes access.
	rollingStats struct {
		count  int64
		sumMs  float64
		minMs  float64
		maxMs  float64
		ring   [ringSize]float64
		ringAt int
		filled int
	}

	// OperationStats is the exported snapshot for one operation type.
	OperationStats struct {
		Count   int64   `json:"count"`
		AvgMs   float64 `json:"avgMs"`
		MinMs   float64 `json:"minMs"`
		MaxMs   float64 `json:"maxMs"`
		P95Ms   float64 `json:"p95Ms"`
		P99Ms   float64 `json:"p99Ms"`
		SlowOps int64   `json:"slowOps"`
	}

	// Snapshot is the full exported metrics view.
	Snapshot struct {
		Operations  map[Operation]OperationStats `json:"operations"`
		CacheHits   int64                        `json:"cacheHits"`
		CacheMisses int64                        `json:"cacheMisses"`
		Taken       time.Time                    `json:"taken"`
	}

	// Benchmark reports one operation's percentile timings against its
	// configured threshold.
	Benchmark struct {
		Operation   Operation     `json:"operation"`
		AvgMs       float64       `json:"avgMs"`
		P95Ms       float64       `json:"p95Ms"`
		P99Ms       float64       `json:"p99Ms"`
		Threshold   time.Duration `json:"threshold"`
		MeetsTarget bool          `json:"meetsTarget"`
	}

	// AlertEvent is published when a single operation exceeds its threshold.
	AlertEvent struct {
		Operation Operation     `json:"operation"`
		Duration  time.Duration `json:"duration"`
		Threshold time.Duration `json:"threshold"`
		Timestamp time.Time     `json:"timestamp"`
	}

	// MetricsUpdateEvent is published on the periodic metrics interval.
	MetricsUpdateEvent struct {
		Snapshot  Snapshot  `json:"snapshot"`
		Timestamp time.Time `json:"timestamp"`
	}

	// CacheClearedEvent is published when a result cache is wiped.
	CacheClearedEvent struct {
		Cache     string    `json:"cache"`
		Timestamp time.Time `json:"timestamp"`
	}
)

const (
	OpPathResolution       Operation = "path_resolution"
	OpDuplicationDetection Operation = "duplication_detection"
	OpPathAnalysis         Operation = "path_analysis"
	OpStringOperations     Operation = "string_operations"
)

func (s *rollingStats) observe(ms float64) {
	if s.count == 0 || ms < s.minMs {
		s.minMs = ms
	}
	if ms > s.maxMs {
		s.maxMs = ms
	}
	s.count++
	s.sumMs += ms
	s.ring[s.ringAt] = ms
	s.ringAt = (s.ringAt + 1) % ringSize
	if s.filled < ringSize {
		s.filled++
	}
}

// percentiles sorts a copy of the retained samples and indexes into it. With
// no samples both results are zero.
func (s *rollingStats) percentiles() (p95, p99 float64) {
	if s.filled == 0 {
		return 0, 0
	}
	sorted := make([]float64, s.filled)
	copy(sorted, s.ring[:s.filled])
	sort.Float64s(sorted)
	idx95 := (95 * s.filled) / 100
	idx99 := (99 * s.filled) / 100
	if idx95 >= s.filled {
		idx95 = s.filled - 1
	}
	if idx99 >= s.filled {
		idx99 = s.filled - 1
	}
	return sorted[idx95], sorted[idx99]
}

func (s *rollingStats) snapshot(slow int64) OperationStats {
	p95, p99 := s.percentiles()
	avg := 0.0
	if s.count > 0 {
		avg = s.sumMs / float64(s.count)
	}
	return OperationStats{
		Count:   s.count,
		AvgMs:   avg,
		MinMs:   s.minMs,
		MaxMs:   s.maxMs,
		P95Ms:   p95,
		P99Ms:   p99,
		SlowOps: slow,
	}
}
