package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager_ConnectFailure(t *testing.T) {
	_, err := NewManager(Config{Addr: "127.0.0.1:1"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", time.Minute))

	value, err := manager.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)
}

func TestManager_GetMiss(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
	assert.True(t, IsCacheMiss(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, "", value)
}

func TestManager_DefaultTTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		SessionID string   `json:"session_id"`
		Turns     []string `json:"turns"`
	}
	in := payload{SessionID: "abc", Turns: []string{"q1", "q2"}}
	require.NoError(t, manager.SetJSON(ctx, "session:abc", in, 10*time.Minute))

	var out payload
	require.NoError(t, manager.GetJSON(ctx, "session:abc", &out))
	assert.Equal(t, in, out)

	ttl, err := manager.TTL(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, ttl)
}

func TestManager_GetJSON_Corrupt(t *testing.T) {
	mr, manager := setupTestRedis(t)
	require.NoError(t, mr.Set("bad", "{not json"))

	var out map[string]any
	err := manager.GetJSON(context.Background(), "bad", &out)
	require.Error(t, err)
	assert.False(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", 0))
	require.NoError(t, manager.Set(ctx, "b", "2", 0))
	require.NoError(t, manager.Delete(ctx, "a", "b", "missing"))
	require.NoError(t, manager.Delete(ctx))

	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestManager_Stats(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	_, _ = manager.Get(ctx, "k")
	_, _ = manager.Get(ctx, "k")
	_, _ = manager.Get(ctx, "nope")

	s := manager.Stats()
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	assert.ErrorIs(t, manager.Delete(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
}

func TestManager_RedisDown(t *testing.T) {
	mr, manager := setupTestRedis(t)
	mr.SetError("ERR injected failure")

	_, err := manager.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, IsCacheMiss(err))
}

func TestManager_HealthCheckStopsOnClose(t *testing.T) {
	mr := miniredis.RunT(t)
	manager, err := NewManager(Config{
		Addr:                mr.Addr(),
		HealthCheckInterval: 10 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, manager.Close())
}
