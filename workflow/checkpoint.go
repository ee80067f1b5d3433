package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/queryflow/internal/cache"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// ErrCheckpointNotFound 会话没有可恢复的 checkpoint
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// checkpointVersion 信封格式版本，State 字段不兼容变更时递增
const checkpointVersion = 1

// DefaultCheckpointTTL checkpoint 默认保留时间
const DefaultCheckpointTTL = 24 * time.Hour

// Checkpointer 按会话 ID 持久化 State，供下一次调用恢复
type Checkpointer interface {
	Save(ctx context.Context, s State) error
	Load(ctx context.Context, sessionID string) (State, error)
	Delete(ctx context.Context, sessionID string) error
}

type checkpointEnvelope struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	State   State     `json:"state"`
}

func encodeCheckpoint(s State, now time.Time) ([]byte, error) {
	data, err := json.Marshal(checkpointEnvelope{
		Version: checkpointVersion,
		SavedAt: now.UTC(),
		State:   s,
	})
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

func decodeCheckpoint(data []byte) (State, error) {
	var env checkpointEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return State{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	if env.Version != checkpointVersion {
		return State{}, fmt.Errorf("unsupported checkpoint version %d", env.Version)
	}
	return env.State, nil
}

func checkpointKey(sessionID string) string {
	return "checkpoint:" + sessionID
}

// =============================================================================
// 🗄️ Redis
// =============================================================================

// RedisCheckpointer 把 checkpoint 保存在 Redis，多实例共享
type RedisCheckpointer struct {
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCheckpointer 创建 Redis checkpoint 存储
func NewRedisCheckpointer(c *cache.Manager, ttl time.Duration, logger *zap.Logger) *RedisCheckpointer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultCheckpointTTL
	}
	return &RedisCheckpointer{
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "checkpointer"), zap.String("backend", "redis")),
	}
}

// Save 覆盖写入并刷新 TTL
func (r *RedisCheckpointer) Save(ctx context.Context, s State) error {
	data, err := encodeCheckpoint(s, time.Now())
	if err != nil {
		return err
	}
	if err := r.cache.Set(ctx, checkpointKey(s.SessionID), string(data), r.ttl); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	r.logger.Debug("checkpoint saved", zap.String("session_id", s.SessionID), zap.Int("bytes", len(data)))
	return nil
}

// Load 读取 checkpoint，不存在时返回 ErrCheckpointNotFound
func (r *RedisCheckpointer) Load(ctx context.Context, sessionID string) (State, error) {
	val, err := r.cache.Get(ctx, checkpointKey(sessionID))
	if cache.IsCacheMiss(err) {
		return State{}, ErrCheckpointNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return decodeCheckpoint([]byte(val))
}

// Delete 删除 checkpoint
func (r *RedisCheckpointer) Delete(ctx context.Context, sessionID string) error {
	if err := r.cache.Delete(ctx, checkpointKey(sessionID)); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// =============================================================================
// 🧠 进程内
// =============================================================================

// MemoryCheckpointer 进程内 checkpoint，用于本地开发与测试。
// 保存序列化后的字节，Load 得到的 State 与调用方不共享内存。
type MemoryCheckpointer struct {
	store *gocache.Cache
}

// NewMemoryCheckpointer 创建进程内 checkpoint 存储
func NewMemoryCheckpointer(ttl time.Duration) *MemoryCheckpointer {
	if ttl <= 0 {
		ttl = DefaultCheckpointTTL
	}
	return &MemoryCheckpointer{store: gocache.New(ttl, ttl/2)}
}

// Save 覆盖写入
func (m *MemoryCheckpointer) Save(ctx context.Context, s State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeCheckpoint(s, time.Now())
	if err != nil {
		return err
	}
	m.store.SetDefault(checkpointKey(s.SessionID), data)
	return nil
}

// Load 读取 checkpoint
func (m *MemoryCheckpointer) Load(ctx context.Context, sessionID string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	v, ok := m.store.Get(checkpointKey(sessionID))
	if !ok {
		return State{}, ErrCheckpointNotFound
	}
	return decodeCheckpoint(v.([]byte))
}

// Delete 删除 checkpoint
func (m *MemoryCheckpointer) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.store.Delete(checkpointKey(sessionID))
	return nil
}
