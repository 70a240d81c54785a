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

// Package monitor wraps the analysis engine and duplication detector with
// timing instrumentation, TTL-bounded result caches, rolling percentile
// statistics, and threshold alerting. Each monitor instance owns its caches
// and counters; nothing here is process-global, and the background sweeper
// and metrics ticker only run between Start and Stop.
package monitor

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	log "github.com/sirupsen/logrus"

	"github.com/pelicanplatform/uploadpath/analysis"
	"github.com/pelicanplatform/uploadpath/duplication"
	"github.com/pelicanplatform/uploadpath/metrics"
	"github.com/pelicanplatform/uploadpath/pathutil"
	"github.com/pelicanplatform/uploadpath/structs"
)

type (
	// PerformanceMonitor is the cross-cutting instrumentation layer.
	PerformanceMonitor struct {
		cachingEnabled bool
		alertsEnabled  bool
		cacheTTL       time.Duration
		cacheCapacity  uint64
		metricsEvery   time.Duration
		thresholds     map[Operation]time.Duration

		analysisCache    *ttlcache.Cache[string, analysis.Result]
		duplicationCache *ttlcache.Cache[string, duplication.Result]

		// memo optimizes pure string operations independently of the TTL
		// caches; entries never expire.
		memo sync.Map

		mu          sync.Mutex
		stats       map[Operation]*rollingStats
		slowOps     map[Operation]int64
		cacheHits   int64
		cacheMisses int64

		subMu       sync.RWMutex
		onAlert     []func(AlertEvent)
		onUpdate    []func(MetricsUpdateEvent)
		onCacheWipe []func(CacheClearedEvent)

		lifecycleMu sync.Mutex
		cancel      context.CancelFunc
		done        chan struct{}
	}

	// MonitorOption configures a PerformanceMonitor.
	MonitorOption func(*PerformanceMonitor)
)

func WithCaching(enabled bool) MonitorOption {
	return func(m *PerformanceMonitor) { m.cachingEnabled = enabled }
}

func WithAlerts(enabled bool) MonitorOption {
	return func(m *PerformanceMonitor) { m.alertsEnabled = enabled }
}

func WithCacheTTL(ttl time.Duration) MonitorOption {
	return func(m *PerformanceMonitor) {
		if ttl > 0 {
			m.cacheTTL = ttl
		}
	}
}

func WithCacheMaxSize(n uint64) MonitorOption {
	return func(m *PerformanceMonitor) {
		if n > 0 {
			m.cacheCapacity = n
		}
	}
}

func WithThreshold(op Operation, threshold time.Duration) MonitorOption {
	return func(m *PerformanceMonitor) {
		if threshold > 0 {
			m.thresholds[op] = threshold
		}
	}
}

func WithMetricsInterval(every time.Duration) MonitorOption {
	return func(m *PerformanceMonitor) {
		if every > 0 {
			m.metricsEvery = every
		}
	}
}

func NewPerformanceMonitor(options ...MonitorOption) *PerformanceMonitor {
	m := &PerformanceMonitor{
		cachingEnabled: true,
		alertsEnabled:  true,
		cacheTTL:       5 * time.Minute,
		cacheCapacity:  1000,
		metricsEvery:   30 * time.Second,
		thresholds: map[Operation]time.Duration{
			OpPathResolution:       50 * time.Millisecond,
			OpDuplicationDetection: 10 * time.Millisecond,
			OpPathAnalysis:         25 * time.Millisecond,
			OpStringOperations:     5 * time.Millisecond,
		},
		stats:   make(map[Operation]*rollingStats),
		slowOps: make(map[Operation]int64),
	}
	for _, option := range options {
		option(m)
	}

	// Capacity eviction drops the entry closest to expiration; with a
	// uniform TTL and touch-on-hit disabled that is the oldest-inserted
	// entry, i.e. FIFO rather than LRU.
	m.analysisCache = ttlcache.New[string, analysis.Result](
		ttlcache.WithTTL[string, analysis.Result](m.cacheTTL),
		ttlcache.WithCapacity[string, analysis.Result](m.cacheCapacity),
		ttlcache.WithDisableTouchOnHit[string, analysis.Result](),
	)
	m.duplicationCache = ttlcache.New[string, duplication.Result](
		ttlcache.WithTTL[string, duplication.Result](m.cacheTTL),
		ttlcache.WithCapacity[string, duplication.Result](m.cacheCapacity),
		ttlcache.WithDisableTouchOnHit[string, duplication.Result](),
	)
	return m
}

// Start launches the cache sweepers and the periodic metrics emission.
// Stop (or ctx cancellation) shuts both down; the monitor remains usable
// without Start, falling back to purely lazy expiration.
func (m *PerformanceMonitor) Start(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.analysisCache.Start()
	go m.duplicationCache.Start()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.metricsEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.publishUpdate()
			case <-ctx.Done():
				m.analysisCache.Stop()
				m.duplicationCache.Stop()
				return
			}
		}
	}()
}

// Stop halts the background tasks started by Start and blocks until they
// have exited.
func (m *PerformanceMonitor) Stop() {
	m.lifecycleMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.lifecycleMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// OnAlert registers a callback for threshold-exceeded events.
func (m *PerformanceMonitor) OnAlert(fn func(AlertEvent)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.onAlert = append(m.onAlert, fn)
}

// OnMetricsUpdate registers a callback for the periodic metrics snapshot.
func (m *PerformanceMonitor) OnMetricsUpdate(fn func(MetricsUpdateEvent)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.onUpdate = append(m.onUpdate, fn)
}

// OnCacheCleared registers a callback for cache wipe events.
func (m *PerformanceMonitor) OnCacheCleared(fn func(CacheClearedEvent)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.onCacheWipe = append(m.onCacheWipe, fn)
}

func (m *PerformanceMonitor) publishUpdate() {
	event := MetricsUpdateEvent{Snapshot: m.Metrics(), Timestamp: time.Now()}
	m.subMu.RLock()
	subscribers := m.onUpdate
	m.subMu.RUnlock()
	for _, fn := range subscribers {
		fn(event)
	}
}

// ObserveDuration records one timing sample for the operation and fires an
// alert if the configured threshold was exceeded.
func (m *PerformanceMonitor) ObserveDuration(op Operation, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	threshold, hasThreshold := m.thresholds[op]
	slow := hasThreshold && d > threshold

	m.mu.Lock()
	s, ok := m.stats[op]
	if !ok {
		s = &rollingStats{}
		m.stats[op] = s
	}
	s.observe(ms)
	if slow {
		m.slowOps[op]++
	}
	m.mu.Unlock()

	if slow {
		metrics.SlowOperationsTotal.WithLabelValues(string(op)).Inc()
		log.Debugf("Slow %s operation: %s exceeds threshold %s", op, d, threshold)
		if m.alertsEnabled {
			event := AlertEvent{Operation: op, Duration: d, Threshold: threshold, Timestamp: time.Now()}
			m.subMu.RLock()
			subscribers := m.onAlert
			m.subMu.RUnlock()
			for _, fn := range subscribers {
				fn(event)
			}
		}
	}
}

// Time runs fn and records its wall time under the operation.
func (m *PerformanceMonitor) Time(op Operation, fn func()) {
	start := time.Now()
	fn()
	m.ObserveDuration(op, time.Since(start))
}

// cacheKey hashes the normalized inputs with FNV-1a. A structural key would
// also work; the fast hash keeps keys short, and collisions are tolerable
// because both caches store derived, recomputable values.
func cacheKey(parts ...string) string {
	h := fnv.New64a()
	for _, part := range parts {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func (m *PerformanceMonitor) recordLookup(cache string, hit bool) {
	m.mu.Lock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
	m.mu.Unlock()
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	metrics.CacheRequests.WithLabelValues(cache, outcome).Inc()
}

// AnalyzeUploadContext serves the batch classification from cache when
// possible, otherwise delegates to the engine and caches the outcome. The
// second return reports whether this was a cache hit.
func (m *PerformanceMonitor) AnalyzeUploadContext(engine *analysis.Engine, batch []structs.UploadFile, destFolder string) (analysis.Result, bool) {
	start := time.Now()
	defer func() { m.ObserveDuration(OpPathAnalysis, time.Since(start)) }()

	var key string
	if m.cachingEnabled {
		parts := make([]string, 0, 2*len(batch)+1)
		parts = append(parts, pathutil.NormalizeSeparators(destFolder))
		for _, file := range batch {
			parts = append(parts, file.OriginalName, pathutil.NormalizeSeparators(file.RelativePathHint))
		}
		key = cacheKey(parts...)
		if item := m.analysisCache.Get(key); item != nil {
			m.recordLookup("analysis", true)
			return item.Value(), true
		}
		m.recordLookup("analysis", false)
	}

	result := engine.AnalyzeUploadContext(batch, destFolder)
	if m.cachingEnabled {
		m.analysisCache.Set(key, result, ttlcache.DefaultTTL)
	}
	return result, false
}

// AnalyzePathDuplication serves the duplication analysis from cache when
// possible. The second return reports whether this was a cache hit.
func (m *PerformanceMonitor) AnalyzePathDuplication(detector *duplication.Detector, p string) (duplication.Result, bool) {
	start := time.Now()
	defer func() { m.ObserveDuration(OpDuplicationDetection, time.Since(start)) }()

	var key string
	if m.cachingEnabled {
		key = cacheKey(pathutil.NormalizeSeparators(p))
		if item := m.duplicationCache.Get(key); item != nil {
			m.recordLookup("duplication", true)
			return item.Value(), true
		}
		m.recordLookup("duplication", false)
	}

	result := detector.AnalyzePathDuplication(p)
	if m.cachingEnabled {
		m.duplicationCache.Set(key, result, ttlcache.DefaultTTL)
	}
	return result, false
}

// Segments memoizes the pure segment split. The memo map is unbounded and
// never expires, separate from the TTL caches by design: the domain of
// distinct paths a single resolver sees is small and the values are tiny.
func (m *PerformanceMonitor) Segments(p string) []string {
	if cached, ok := m.memo.Load(p); ok {
		return cached.([]string)
	}
	start := time.Now()
	segments := pathutil.Segments(p)
	m.ObserveDuration(OpStringOperations, time.Since(start))
	m.memo.Store(p, segments)
	return segments
}

// ClearCaches wipes both result caches and the string memo, then notifies
// subscribers.
func (m *PerformanceMonitor) ClearCaches() {
	m.analysisCache.DeleteAll()
	m.duplicationCache.DeleteAll()
	m.memo.Range(func(key, _ interface{}) bool {
		m.memo.Delete(key)
		return true
	})
	event := CacheClearedEvent{Cache: "all", Timestamp: time.Now()}
	m.subMu.RLock()
	subscribers := m.onCacheWipe
	m.subMu.RUnlock()
	for _, fn := range subscribers {
		fn(event)
	}
}

// Metrics returns a point-in-time snapshot of the rolling statistics.
func (m *PerformanceMonitor) Metrics() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := Snapshot{
		Operations:  make(map[Operation]OperationStats, len(m.stats)),
		CacheHits:   m.cacheHits,
		CacheMisses: m.cacheMisses,
		Taken:       time.Now(),
	}
	for op, s := range m.stats {
		snapshot.Operations[op] = s.snapshot(m.slowOps[op])
	}
	return snapshot
}

// Benchmarks reports each instrumented operation's percentiles against its
// configured threshold.
func (m *PerformanceMonitor) Benchmarks() []Benchmark {
	snapshot := m.Metrics()
	benchmarks := make([]Benchmark, 0, len(snapshot.Operations))
	for op, stats := range snapshot.Operations {
		threshold := m.thresholds[op]
		benchmarks = append(benchmarks, Benchmark{
			Operation:   op,
			AvgMs:       stats.AvgMs,
			P95Ms:       stats.P95Ms,
			P99Ms:       stats.P99Ms,
			Threshold:   threshold,
			MeetsTarget: threshold <= 0 || stats.P95Ms <= float64(threshold)/float64(time.Millisecond),
		})
	}
	return benchmarks
}

// ResetMetrics zeroes the rolling statistics and cache counters. Cached
// results are left in place; use ClearCaches for those.
func (m *PerformanceMonitor) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = make(map[Operation]*rollingStats)
	m.slowOps = make(map[Operation]int64)
	m.cacheHits = 0
	m.cacheMisses = 0
}
