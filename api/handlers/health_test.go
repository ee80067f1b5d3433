package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/queryflow/api"
	"github.com/BaSui01/queryflow/corpus"
	"github.com/BaSui01/queryflow/internal/cache"
	"github.com/BaSui01/queryflow/workflow"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// mockHealthCheck 模拟健康检查
type mockHealthCheck struct {
	name string
	err  error
}

func (m *mockHealthCheck) Name() string {
	return m.name
}

func (m *mockHealthCheck) Check(ctx context.Context) error {
	return m.err
}

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealth(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHealthHandler("1.0.0", logger)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)

	handler.HandleHealth(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var status api.ServiceHealthResponse
	err := json.NewDecoder(w.Body).Decode(&status)
	require.NoError(t, err)

	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleHealthz(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHealthHandler("1.0.0", logger)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	handler.HandleHealthz(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var status api.ServiceHealthResponse
	err := json.NewDecoder(w.Body).Decode(&status)
	require.NoError(t, err)

	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleReady(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		setupChecks    func(*HealthHandler)
		expectedStatus int
		checkStatus    func(*testing.T, *api.ServiceHealthResponse)
	}{
		{
			name:           "no checks - ready",
			setupChecks:    func(h *HealthHandler) {},
			expectedStatus: http.StatusOK,
			checkStatus: func(t *testing.T, status *api.ServiceHealthResponse) {
				assert.Equal(t, "healthy", status.Status)
			},
		},
		{
			name: "all checks pass",
			setupChecks: func(h *HealthHandler) {
				h.RegisterCheck(&mockHealthCheck{name: "test1", err: nil})
				h.RegisterCheck(&mockHealthCheck{name: "test2", err: nil})
			},
			expectedStatus: http.StatusOK,
			checkStatus: func(t *testing.T, status *api.ServiceHealthResponse) {
				assert.Equal(t, "healthy", status.Status)
				assert.Len(t, status.Checks, 2)
				assert.Equal(t, "pass", status.Checks["test1"].Status)
				assert.Equal(t, "pass", status.Checks["test2"].Status)
			},
		},
		{
			name: "one check fails",
			setupChecks: func(h *HealthHandler) {
				h.RegisterCheck(&mockHealthCheck{name: "test1", err: nil})
				h.RegisterCheck(&mockHealthCheck{name: "test2", err: errors.New("check failed")})
			},
			expectedStatus: http.StatusServiceUnavailable,
			checkStatus: func(t *testing.T, status *api.ServiceHealthResponse) {
				assert.Equal(t, "unhealthy", status.Status)
				assert.Len(t, status.Checks, 2)
				assert.Equal(t, "pass", status.Checks["test1"].Status)
				assert.Equal(t, "fail", status.Checks["test2"].Status)
				assert.Equal(t, "check failed", status.Checks["test2"].Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("1.0.0", logger)
			tt.setupChecks(h)

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/ready", nil)

			h.HandleReady(w, r)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var status api.ServiceHealthResponse
			err := json.NewDecoder(w.Body).Decode(&status)
			require.NoError(t, err)

			tt.checkStatus(t, &status)
		})
	}
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHealthHandler("1.0.0", logger)

	buildTime := "2024-01-01T00:00:00Z"
	gitCommit := "abc123"

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/version", nil)

	versionHandler := handler.HandleVersion(buildTime, gitCommit)
	versionHandler(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	err := json.NewDecoder(w.Body).Decode(&resp)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "1.0.0", data["version"])
	assert.Equal(t, buildTime, data["build_time"])
	assert.Equal(t, gitCommit, data["git_commit"])
}

func TestHealthHandler_RegisterCheck(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHealthHandler("1.0.0", logger)

	// 注册检查
	handler.RegisterCheck(&mockHealthCheck{name: "test", err: nil})

	// 验证检查已注册
	assert.Len(t, handler.checks, 1)
	assert.Equal(t, "test", handler.checks[0].Name())
}

func TestHealthHandler_ConcurrentChecks(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHealthHandler("1.0.0", logger)

	// 注册多个检查
	for i := 0; i < 10; i++ {
		name := string(rune('a' + i))
		handler.RegisterCheck(&mockHealthCheck{name: name, err: nil})
	}

	// 并发调用 HandleReady
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/ready", nil)
			handler.HandleReady(w, r)
			assert.Equal(t, http.StatusOK, w.Code)
			done <- true
		}()
	}

	// 等待所有 goroutine 完成
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestHealthHandler_ReadyWithStoreChecks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	handler := NewHealthHandler("1.0.0", nil)
	handler.RegisterCheck(NewRedisHealthCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	handler.RegisterCheck(NewDatabaseHealthCheck("mongodb", func(context.Context) error {
		return errors.New("server selection timeout")
	}))

	w := httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var status api.ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "pass", status.Checks["redis"].Status)
	assert.Equal(t, "fail", status.Checks["mongodb"].Status)
	assert.Equal(t, "1.0.0", status.Version)

	mr.SetError("LOADING redis is loading")
	w = httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "fail", status.Checks["redis"].Status)
}

// lossyCheckpointer 写入成功但读回的是别的会话
type lossyCheckpointer struct {
	*workflow.MemoryCheckpointer
}

func (l lossyCheckpointer) Load(ctx context.Context, sessionID string) (workflow.State, error) {
	return workflow.NewState("someone-else", ""), nil
}

func TestCheckpointHealthCheck_Memory(t *testing.T) {
	store := workflow.NewMemoryCheckpointer(time.Minute)
	check := NewCheckpointHealthCheck("memory", store)

	assert.Equal(t, "checkpoint", check.Name())
	require.NoError(t, check.Check(context.Background()))
	require.NoError(t, check.Check(context.Background()))
}

func TestCheckpointHealthCheck_RedisRoundTripLeavesNoKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mgr := cache.NewManagerWithClient(client, cache.Config{DefaultTTL: time.Minute}, zap.NewNop())
	check := NewCheckpointHealthCheck("redis", workflow.NewRedisCheckpointer(mgr, time.Hour, zap.NewNop()))

	require.NoError(t, check.Check(context.Background()))
	assert.Empty(t, mr.Keys(), "sentinel checkpoint is deleted after the check")

	mr.SetError("READONLY You can't write against a read only replica.")
	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis checkpoint save")
}

func TestCheckpointHealthCheck_DetectsWrongSession(t *testing.T) {
	check := NewCheckpointHealthCheck("memory", lossyCheckpointer{workflow.NewMemoryCheckpointer(time.Minute)})

	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `returned session "someone-else"`)
}

func TestCorpusHealthCheck(t *testing.T) {
	dir := t.TempDir()

	missing := NewCorpusHealthCheck(corpus.NewFileStore(filepath.Join(dir, "absent.json"), nil))
	assert.Equal(t, "corpus", missing.Name())
	assert.NoError(t, missing.Check(context.Background()), "a missing corpus file is an empty corpus")

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`[{"chunk_type":`), 0o644))
	err := NewCorpusHealthCheck(corpus.NewFileStore(broken, nil)).Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken)
}

func TestHealthHandler_ReadyReportsWorkflowChecks(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(broken, []byte("not json"), 0o644))

	handler := NewHealthHandler("1.0.0", zap.NewNop())
	handler.RegisterCheck(NewCheckpointHealthCheck("memory", workflow.NewMemoryCheckpointer(time.Minute)))
	handler.RegisterCheck(NewCorpusHealthCheck(corpus.NewFileStore(broken, nil)))

	w := httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var status api.ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "pass", status.Checks["checkpoint"].Status)
	assert.Equal(t, "fail", status.Checks["corpus"].Status)
}
