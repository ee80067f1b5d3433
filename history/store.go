package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/queryflow/internal/cache"
	"github.com/BaSui01/queryflow/types"
	"go.uber.org/zap"
)

// DefaultTTL 会话历史过期时间
const DefaultTTL = 600 * time.Second

const keyPrefix = "session:"

// Record 是写入 Redis 的完整历史文档
type Record struct {
	SessionID string       `json:"session_id"`
	History   []types.Turn `json:"history"`
}

// CacheMetrics 记录历史读取的命中情况
type CacheMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// RedisStore 以 session:<id> 为键保存会话历史，每次写入整体覆盖并刷新 TTL
type RedisStore struct {
	cache   *cache.Manager
	ttl     time.Duration
	metrics CacheMetrics
	logger  *zap.Logger
}

// NewRedisStore 创建历史存储，ttl<=0 时使用 DefaultTTL
func NewRedisStore(c *cache.Manager, ttl time.Duration, metrics CacheMetrics, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		cache:   c,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "history")),
	}
}

// Key 返回会话历史的 Redis 键
func Key(sessionID string) string {
	return keyPrefix + sessionID
}

// Load 读取会话历史，键不存在或内容损坏时返回空历史
func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]types.Turn, error) {
	var rec Record
	err := s.cache.GetJSON(ctx, Key(sessionID), &rec)
	switch {
	case err == nil:
		s.hit()
		if rec.History == nil {
			return []types.Turn{}, nil
		}
		return rec.History, nil
	case cache.IsCacheMiss(err):
		s.miss()
		return []types.Turn{}, nil
	case errors.Is(err, cache.ErrClosed):
		return nil, err
	default:
		if isDecodeError(err) {
			s.logger.Warn("discarding unreadable history",
				zap.String("session_id", sessionID),
				zap.Error(err))
			s.miss()
			return []types.Turn{}, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}
}

// Append 追加一轮对话并整体回写
func (s *RedisStore) Append(ctx context.Context, sessionID, user, bot string) error {
	turns, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	rec := Record{
		SessionID: sessionID,
		History:   append(turns, types.Turn{User: user, Bot: bot}),
	}
	if err := s.cache.SetJSON(ctx, Key(sessionID), rec, s.ttl); err != nil {
		return fmt.Errorf("save history: %w", err)
	}

	s.logger.Debug("history appended",
		zap.String("session_id", sessionID),
		zap.Int("turns", len(rec.History)))
	return nil
}

// Clear 删除会话历史
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.cache.Delete(ctx, Key(sessionID)); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *RedisStore) hit() {
	if s.metrics != nil {
		s.metrics.RecordCacheHit("history")
	}
}

func (s *RedisStore) miss() {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss("history")
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
