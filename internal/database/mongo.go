package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

// =============================================================================
// 🗄️ MongoDB 客户端管理器
// =============================================================================

// ErrClosed 管理器已关闭
var ErrClosed = errors.New("mongo client manager is closed")

// ClientManager 持有共享的 mongo.Client，业务查询与向量检索共用同一连接池
type ClientManager struct {
	client *mongo.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
}

// Config 连接配置
type Config struct {
	URI         string        `yaml:"uri" json:"uri"`
	AppName     string        `yaml:"app_name" json:"app_name"`
	MaxPoolSize uint64        `yaml:"max_pool_size" json:"max_pool_size"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`

	// 服务器选择超时，连接不可达时 Ping 的最长等待
	ServerSelectionTimeout time.Duration `yaml:"server_selection_timeout" json:"server_selection_timeout"`

	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认连接配置
func DefaultConfig() Config {
	return Config{
		URI:                    "mongodb://localhost:27017",
		AppName:                "queryflow",
		MaxPoolSize:            50,
		Timeout:                30 * time.Second,
		ServerSelectionTimeout: 5 * time.Second,
		HealthCheckInterval:    30 * time.Second,
	}
}

// clientOptions 由配置构建驱动选项
func clientOptions(config Config) *options.ClientOptions {
	opts := options.Client().ApplyURI(config.URI)
	if config.AppName != "" {
		opts.SetAppName(config.AppName)
	}
	if config.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(config.MaxPoolSize)
	}
	if config.Timeout > 0 {
		opts.SetTimeout(config.Timeout)
	}
	if config.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(config.ServerSelectionTimeout)
	}
	return opts
}

// NewClientManager 建立连接并 Ping 主节点
func NewClientManager(ctx context.Context, config Config, logger *zap.Logger) (*ClientManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(clientOptions(config))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	cm := &ClientManager{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "mongo")),
		stopCh: make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go cm.healthCheckLoop()
	}

	logger.Info("mongo client initialized",
		zap.Uint64("max_pool_size", config.MaxPoolSize),
		zap.Duration("timeout", config.Timeout),
	)

	return cm, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Client 返回底层客户端
func (cm *ClientManager) Client() *mongo.Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client
}

// Database 返回指定数据库句柄
func (cm *ClientManager) Database(name string) *mongo.Database {
	return cm.Client().Database(name)
}

// Collection 返回指定集合句柄
func (cm *ClientManager) Collection(db, name string) *mongo.Collection {
	return cm.Client().Database(db).Collection(name)
}

// Ping 检查主节点连通性
func (cm *ClientManager) Ping(ctx context.Context) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.closed {
		return ErrClosed
	}

	return cm.client.Ping(ctx, readpref.Primary())
}

// Close 断开连接
func (cm *ClientManager) Close(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil
	}

	cm.closed = true
	close(cm.stopCh)
	cm.logger.Info("closing mongo client")

	return cm.client.Disconnect(ctx)
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (cm *ClientManager) healthCheckLoop() {
	ticker := time.NewTicker(cm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.stopCh:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := cm.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
			cm.logger.Error("mongo health check failed", zap.Error(err))
		}
		cancel()
	}
}

// =============================================================================
// 🔄 重试
// =============================================================================

// WithRetry 对瞬时错误按指数退避重试 fn
func WithRetry(ctx context.Context, logger *zap.Logger, maxRetries int, fn func(ctx context.Context) error) error {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}

		logger.Warn("mongo operation failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)

		backoff := time.Duration(1<<uint(i)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("mongo operation failed after %d retries: %w", maxRetries, lastErr)
}

// IsTransient 判断错误是否为网络抖动或可重试的服务端错误
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsNetworkError(err) {
		return true
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel("RetryableWriteError") ||
			se.HasErrorLabel("TransientTransactionError")
	}
	return false
}

// IsStoreError 判断错误是否来自数据库本身（服务端拒绝、网络、超时）
func IsStoreError(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return true
	}
	return errors.Is(err, mongo.ErrClientDisconnected)
}
