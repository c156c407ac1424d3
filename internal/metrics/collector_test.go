package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/internal/cache"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.inboundDecisions)
	assert.NotNil(t, collector.outboundValidations)
	assert.NotNil(t, collector.violationsTotal)
	assert.NotNil(t, collector.activeSessions)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/v1/inbound", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("POST", "/v1/inbound", 201, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/v1/inbound", 429, time.Millisecond, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/v1/inbound", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/v1/inbound", "4xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_GuardrailMetrics(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordInboundDecision("blocked", "MEDIUM", 10*time.Millisecond)
	collector.RecordInboundDecision("educational", "MEDIUM", 20*time.Millisecond)
	collector.RecordInboundDecision("blocked", "MEDIUM", 5*time.Millisecond)
	collector.RecordOutboundValidation(false, true, "HIGH", 30*time.Millisecond)
	collector.RecordViolation("inbound", "toxicity", "toxic_input")
	collector.RecordViolation("outbound", "pii", "blocking_pii_in_output")
	collector.RecordDegradation("toxicity")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.inboundDecisions.WithLabelValues("blocked", "MEDIUM")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.outboundValidations.WithLabelValues("false", "true", "HIGH")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.violationsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.degradationsTotal.WithLabelValues("toxicity")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.pipelineDuration), "one series per direction")
}

func TestCollector_MoodAndSessions(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordMoodAnalysis("model", false)
	collector.RecordMoodAnalysis("fallback", true)
	collector.SetActiveSessions(7)
	collector.SetActiveSessions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.moodAnalyses.WithLabelValues("fallback", "true")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.activeSessions))
}

func TestCollector_RegisterCacheStats(t *testing.T) {
	ns := nextTestNamespace()
	collector := NewCollector(ns, zap.NewNop())

	var mu sync.Mutex
	current := cache.Stats{Hits: 3, Misses: 1, Errors: 2}
	collector.RegisterCacheStats("mood", func() cache.Stats {
		mu.Lock()
		defer mu.Unlock()
		return current
	})

	expected := fmt.Sprintf(`
# HELP %[1]s_cache_hits_total Total number of cache hits
# TYPE %[1]s_cache_hits_total counter
%[1]s_cache_hits_total{cache_type="mood"} 3
# HELP %[1]s_cache_misses_total Total number of cache misses
# TYPE %[1]s_cache_misses_total counter
%[1]s_cache_misses_total{cache_type="mood"} 1
# HELP %[1]s_cache_errors_total Total number of cache backend errors
# TYPE %[1]s_cache_errors_total counter
%[1]s_cache_errors_total{cache_type="mood"} 2
# HELP %[1]s_cache_hit_ratio Cache hit ratio since process start
# TYPE %[1]s_cache_hit_ratio gauge
%[1]s_cache_hit_ratio{cache_type="mood"} 0.75
`, ns)
	require.NoError(t, testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(expected),
		ns+"_cache_hits_total", ns+"_cache_misses_total", ns+"_cache_errors_total", ns+"_cache_hit_ratio"))

	// 导出值随缓存统计实时变化
	mu.Lock()
	current = cache.Stats{Hits: 4, Misses: 4}
	mu.Unlock()

	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, ns+"_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NoError(t, testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(fmt.Sprintf(`
# HELP %[1]s_cache_hit_ratio Cache hit ratio since process start
# TYPE %[1]s_cache_hit_ratio gauge
%[1]s_cache_hit_ratio{cache_type="mood"} 0.5
`, ns)), ns+"_cache_hit_ratio"))
}

func TestCollector_RegisterCacheStats_FromManager(t *testing.T) {
	mr := miniredis.RunT(t)
	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "m:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	ns := nextTestNamespace()
	collector := NewCollector(ns, zap.NewNop())
	collector.RegisterCacheStats("mood", manager.GetStats)

	ctx := context.Background()
	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	_, _ = manager.Get(ctx, "k")
	_, _ = manager.Get(ctx, "missing")

	require.NoError(t, testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(fmt.Sprintf(`
# HELP %[1]s_cache_hits_total Total number of cache hits
# TYPE %[1]s_cache_hits_total counter
%[1]s_cache_hits_total{cache_type="mood"} 1
# HELP %[1]s_cache_misses_total Total number of cache misses
# TYPE %[1]s_cache_misses_total counter
%[1]s_cache_misses_total{cache_type="mood"} 1
`, ns)), ns+"_cache_hits_total", ns+"_cache_misses_total"))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 64)
			collector.RecordInboundDecision("normal", "LOW", time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.inboundDecisions.WithLabelValues("normal", "LOW")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	require.NoError(t, registry.Register(collector.inboundDecisions))
	collector.RecordInboundDecision("normal", "LOW", time.Millisecond)

	count, err := testutil.GatherAndCount(registry)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(100))
}
