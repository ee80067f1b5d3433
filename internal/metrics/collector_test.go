package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
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
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.nodeExecutionsTotal)
	assert.NotNil(t, collector.turnOutcomes)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/api/v1/text2query", 200, 100*time.Millisecond, 2048)
	collector.RecordHTTPRequest("POST", "/api/v1/text2query", 200, 50*time.Millisecond, 1024)
	collector.RecordHTTPRequest("POST", "/api/v1/confirm_query", 409, time.Millisecond, 64)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestsTotal))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/text2query", "2xx")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/confirm_query", "4xx")))
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordLLMRequest("openai", "gpt-4o-mini", "success", 500*time.Millisecond, 100, 50)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "gpt-4o-mini", "success")))
	assert.Equal(t, float64(100),
		testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "prompt")))
	assert.Equal(t, float64(50),
		testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "completion")))
}

func TestCollector_RecordWorkflow(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordNodeExecution("generate", "success", 20*time.Millisecond)
	collector.RecordNodeExecution("validate", "success", time.Millisecond)
	collector.RecordNodeExecution("execute", "error", 5*time.Millisecond)
	collector.RecordTurnOutcome("success")
	collector.RecordTurnOutcome("terminal")

	assert.Equal(t, 3, testutil.CollectAndCount(collector.nodeExecutionsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.turnOutcomes.WithLabelValues("terminal")))

	collector.TurnStarted()
	collector.TurnStarted()
	collector.TurnFinished()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.sessionsActive))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("history")
	collector.RecordCacheMiss("history")
	collector.RecordCacheMiss("history")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheHits.WithLabelValues("history")))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.cacheMisses.WithLabelValues("history")))
}

func TestCollector_RecordStoreQuery(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordStoreQuery("Invoice", "success", 20*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(collector.storeQueryDuration))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 64)
			collector.RecordNodeExecution("start", "success", time.Millisecond)
			collector.RecordCacheHit("history")
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10),
		testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, float64(10),
		testutil.ToFloat64(collector.nodeExecutionsTotal.WithLabelValues("start", "success")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(201))
	assert.Equal(t, "3xx", statusCode(304))
	assert.Equal(t, "4xx", statusCode(410))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(100))
}
