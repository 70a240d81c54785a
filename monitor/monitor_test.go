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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelicanplatform/uploadpath/analysis"
	"github.com/pelicanplatform/uploadpath/duplication"
	"github.com/pelicanplatform/uploadpath/structs"
)

func TestAnalysisCaching(t *testing.T) {
	m := NewPerformanceMonitor()
	engine := analysis.NewEngine()
	batch := []structs.UploadFile{
		{OriginalName: "style.css", RelativePathHint: "site/css/style.css"},
		{OriginalName: "app.js", RelativePathHint: "site/js/app.js"},
	}

	first, hit := m.AnalyzeUploadContext(engine, batch, "projects")
	assert.False(t, hit)

	second, hit := m.AnalyzeUploadContext(engine, batch, "projects")
	assert.True(t, hit)
	assert.Equal(t, first, second)

	// A different destination is a different key
	_, hit = m.AnalyzeUploadContext(engine, batch, "other")
	assert.False(t, hit)

	snapshot := m.Metrics()
	assert.Equal(t, int64(1), snapshot.CacheHits)
	assert.Equal(t, int64(2), snapshot.CacheMisses)
}

func TestDuplicationCaching(t *testing.T) {
	m := NewPerformanceMonitor()
	detector := duplication.NewDetector()

	first, hit := m.AnalyzePathDuplication(detector, "documents/documents/rapport.pdf")
	assert.False(t, hit)
	assert.True(t, first.HasDuplication)

	second, hit := m.AnalyzePathDuplication(detector, "documents/documents/rapport.pdf")
	assert.True(t, hit)
	assert.Equal(t, first, second)
}

func TestCachingDisabled(t *testing.T) {
	m := NewPerformanceMonitor(WithCaching(false))
	detector := duplication.NewDetector()

	_, hit := m.AnalyzePathDuplication(detector, "a/b/c")
	assert.False(t, hit)
	_, hit = m.AnalyzePathDuplication(detector, "a/b/c")
	assert.False(t, hit)

	snapshot := m.Metrics()
	assert.Zero(t, snapshot.CacheHits)
	assert.Zero(t, snapshot.CacheMisses)
}

func TestClearCaches(t *testing.T) {
	m := NewPerformanceMonitor()
	detector := duplication.NewDetector()

	cleared := false
	m.OnCacheCleared(func(event CacheClearedEvent) {
		cleared = true
	})

	_, _ = m.AnalyzePathDuplication(detector, "a/b/c")
	m.ClearCaches()
	require.True(t, cleared)

	_, hit := m.AnalyzePathDuplication(detector, "a/b/c")
	assert.False(t, hit)
}

func TestSegmentsMemo(t *testing.T) {
	m := NewPerformanceMonitor()
	first := m.Segments("a/b/c")
	second := m.Segments("a/b/c")
	assert.Equal(t, []string{"a", "b", "c"}, first)
	assert.Equal(t, first, second)
}

func TestAlertOnSlowOperation(t *testing.T) {
	m := NewPerformanceMonitor(WithThreshold(OpStringOperations, time.Nanosecond))

	var mu sync.Mutex
	var fired []AlertEvent
	m.OnAlert(func(event AlertEvent) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, event)
	})

	m.ObserveDuration(OpStringOperations, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fired, 1)
	assert.Equal(t, OpStringOperations, fired[0].Operation)
	assert.Equal(t, time.Millisecond, fired[0].Duration)

	snapshot := m.Metrics()
	assert.Equal(t, int64(1), snapshot.Operations[OpStringOperations].SlowOps)
}

func TestAlertsDisabled(t *testing.T) {
	m := NewPerformanceMonitor(
		WithAlerts(false),
		WithThreshold(OpStringOperations, time.Nanosecond),
	)

	fired := false
	m.OnAlert(func(AlertEvent) { fired = true })
	m.ObserveDuration(OpStringOperations, time.Millisecond)
	assert.False(t, fired)

	// Slow-op counting still happens even with alerting off
	snapshot := m.Metrics()
	assert.Equal(t, int64(1), snapshot.Operations[OpStringOperations].SlowOps)
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewPerformanceMonitor()
	m.ObserveDuration(OpPathResolution, 2*time.Millisecond)
	m.ObserveDuration(OpPathResolution, 4*time.Millisecond)
	m.ObserveDuration(OpPathResolution, 6*time.Millisecond)

	snapshot := m.Metrics()
	stats, ok := snapshot.Operations[OpPathResolution]
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.Count)
	assert.InDelta(t, 4.0, stats.AvgMs, 1e-9)
	assert.InDelta(t, 2.0, stats.MinMs, 1e-9)
	assert.InDelta(t, 6.0, stats.MaxMs, 1e-9)
	assert.GreaterOrEqual(t, stats.P95Ms, stats.AvgMs)
}

func TestBenchmarks(t *testing.T) {
	m := NewPerformanceMonitor()
	m.ObserveDuration(OpDuplicationDetection, time.Millisecond)

	benchmarks := m.Benchmarks()
	require.Len(t, benchmarks, 1)
	b := benchmarks[0]
	assert.Equal(t, OpDuplicationDetection, b.Operation)
	assert.Equal(t, 10*time.Millisecond, b.Threshold)
	assert.True(t, b.MeetsTarget)

	m.ObserveDuration(OpDuplicationDetection, time.Second)
	benchmarks = m.Benchmarks()
	require.Len(t, benchmarks, 1)
	assert.False(t, benchmarks[0].MeetsTarget)
}

func TestResetMetrics(t *testing.T) {
	m := NewPerformanceMonitor()
	detector := duplication.NewDetector()
	_, _ = m.AnalyzePathDuplication(detector, "a/b")
	_, _ = m.AnalyzePathDuplication(detector, "a/b")

	snapshot := m.Metrics()
	require.NotEmpty(t, snapshot.Operations)
	require.Equal(t, int64(1), snapshot.CacheHits)

	m.ResetMetrics()
	snapshot = m.Metrics()
	assert.Empty(t, snapshot.Operations)
	assert.Zero(t, snapshot.CacheHits)
	assert.Zero(t, snapshot.CacheMisses)

	// Cached entries survive a metrics reset
	_, hit := m.AnalyzePathDuplication(detector, "a/b")
	assert.True(t, hit)
}

func TestStartStopPublishesUpdates(t *testing.T) {
	m := NewPerformanceMonitor(WithMetricsInterval(5 * time.Millisecond))

	var mu sync.Mutex
	updates := 0
	m.OnMetricsUpdate(func(MetricsUpdateEvent) {
		mu.Lock()
		defer mu.Unlock()
		updates++
	})

	m.Start(context.Background())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return updates > 0
	}, 2*time.Second, 5*time.Millisecond)
	m.Stop()

	// Stop is idempotent
	m.Stop()
}

func TestTimeRecordsSample(t *testing.T) {
	m := NewPerformanceMonitor()
	ran := false
	m.Time(OpPathResolution, func() { ran = true })
	assert.True(t, ran)
	assert.Equal(t, int64(1), m.Metrics().Operations[OpPathResolution].Count)
}
