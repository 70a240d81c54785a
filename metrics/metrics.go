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

// Package metrics exports Prometheus instrumentation for the path
// resolution pipeline. The rolling in-process statistics (percentiles,
// ring buffers) live in the monitor package; this package is the external
// observability surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploadpath_resolutions_total",
		Help: "Number of path resolutions performed, by realized strategy",
	}, []string{"strategy"})

	DuplicationsPrevented = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uploadpath_duplications_prevented_total",
		Help: "Number of resolutions where a duplicated path segment was removed",
	})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploadpath_errors_total",
		Help: "Number of errors intercepted by the recovery handler",
	}, []string{"category", "severity"})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploadpath_cache_requests_total",
		Help: "Cache lookups performed by the performance monitor",
	}, []string{"cache", "outcome"})

	ResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "uploadpath_resolution_duration_seconds",
		Help:    "Wall time of a single path resolution",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	SlowOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploadpath_slow_operations_total",
		Help: "Operations that exceeded their configured latency threshold",
	}, []string{"operation"})
)
