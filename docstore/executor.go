package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/queryflow/internal/database"
	"github.com/BaSui01/queryflow/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// ErrEmptyCollection 集合名为空
var ErrEmptyCollection = errors.New("collection name is empty")

// Aggregator 是执行聚合所需的集合操作，*mongo.Collection 满足该接口
type Aggregator interface {
	Aggregate(ctx context.Context, pipeline any, opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error)
}

// CollectionSource 按集合名返回 Aggregator
type CollectionSource func(name string) Aggregator

// MetricsRecorder 记录查询耗时
type MetricsRecorder interface {
	RecordStoreQuery(collection, status string, duration time.Duration)
}

// Config 执行器配置
type Config struct {
	Database     string        `json:"database"`
	Timeout      time.Duration `json:"timeout"`
	MaxRetries   int           `json:"max_retries"`
	AllowDiskUse bool          `json:"allow_disk_use"`
}

// DefaultConfig 返回默认执行器配置
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRetries:   2,
		AllowDiskUse: true,
	}
}

// Executor 在业务库上执行聚合管道
type Executor struct {
	source  CollectionSource
	config  Config
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewExecutor 基于共享的 ClientManager 创建执行器
func NewExecutor(cm *database.ClientManager, config Config, metrics MetricsRecorder, logger *zap.Logger) *Executor {
	source := func(name string) Aggregator {
		return cm.Collection(config.Database, name)
	}
	return NewExecutorWithSource(source, config, metrics, logger)
}

// NewExecutorWithSource 使用自定义集合来源创建执行器
func NewExecutorWithSource(source CollectionSource, config Config, metrics MetricsRecorder, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		source:  source,
		config:  config,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "docstore")),
	}
}

// Aggregate 在 collection 上执行 stages。
// 数据库报告的失败包装为 STORE_EXECUTION，其余错误原样返回。
func (e *Executor) Aggregate(ctx context.Context, collection string, stages []bson.D) ([]bson.D, error) {
	if collection == "" {
		return nil, ErrEmptyCollection
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	pipeline := make(mongo.Pipeline, len(stages))
	copy(pipeline, stages)

	opts := options.Aggregate().SetAllowDiskUse(e.config.AllowDiskUse)

	start := time.Now()
	var docs []bson.D
	err := database.WithRetry(ctx, e.logger, e.config.MaxRetries, func(ctx context.Context) error {
		cursor, err := e.source(collection).Aggregate(ctx, pipeline, opts)
		if err != nil {
			return err
		}
		docs = nil
		return cursor.All(ctx, &docs)
	})
	duration := time.Since(start)

	if err != nil {
		e.record(collection, "error", duration)
		e.logger.Warn("aggregate failed",
			zap.String("collection", collection),
			zap.Int("stages", len(stages)),
			zap.Duration("duration", duration),
			zap.Error(err))

		if database.IsStoreError(err) {
			return nil, types.NewError(types.ErrStoreExecution, err.Error()).
				WithCause(err).
				WithProvider("mongodb")
		}
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}

	e.record(collection, "success", duration)
	e.logger.Debug("aggregate finished",
		zap.String("collection", collection),
		zap.Int("documents", len(docs)),
		zap.Duration("duration", duration))

	if docs == nil {
		docs = []bson.D{}
	}
	return docs, nil
}

func (e *Executor) record(collection, status string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordStoreQuery(collection, status, d)
	}
}
