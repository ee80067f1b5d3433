package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/queryflow/api"
	"github.com/BaSui01/queryflow/corpus"
	"github.com/BaSui01/queryflow/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version string
	logger  *zap.Logger
	checks  []HealthCheck
	mu      sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version string, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		version: version,
		logger:  logger.With(zap.String("component", "health_handler")),
		checks:  make([]HealthCheck, 0),
	}
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求（简单健康检查）
// @Summary 健康检查
// @Description 简单的健康检查端点
// @Tags 健康
// @Produce json
// @Success 200 {object} api.ServiceHealthResponse "服务正常"
// @Failure 503 {object} api.ServiceHealthResponse "服务不健康"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := api.ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 风格）
// @Summary Kubernetes 活跃度探针
// @Description Kubernetes 的活跃度探针
// @Tags 健康
// @Produce json
// @Success 200 {object} api.ServiceHealthResponse "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	// Liveness：只检查进程是否存活，不访问外部依赖
	status := api.ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleReady 处理 /ready 或 /readyz 请求（就绪检查）
// @Summary 准备情况检查
// @Description 检查服务是否准备好接受流量
// @Tags 健康
// @Produce json
// @Success 200 {object} api.ServiceHealthResponse "服务已准备就绪"
// @Failure 503 {object} api.ServiceHealthResponse "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := api.ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
		Checks:    make(map[string]api.CheckResult),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := api.CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}

		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false

			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Description 返回版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := map[string]string{
			"version":    h.version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		}

		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// DatabaseHealthCheck 文档库（MongoDB）健康检查
type DatabaseHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewDatabaseHealthCheck 创建数据库健康检查
func NewDatabaseHealthCheck(name string, ping func(ctx context.Context) error) *DatabaseHealthCheck {
	return &DatabaseHealthCheck{
		name: name,
		ping: ping,
	}
}

func (c *DatabaseHealthCheck) Name() string {
	return c.name
}

func (c *DatabaseHealthCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}

// RedisHealthCheck Redis 健康检查
type RedisHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewRedisHealthCheck 创建 Redis 健康检查
func NewRedisHealthCheck(name string, ping func(ctx context.Context) error) *RedisHealthCheck {
	return &RedisHealthCheck{
		name: name,
		ping: ping,
	}
}

func (c *RedisHealthCheck) Name() string {
	return c.name
}

func (c *RedisHealthCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}

// =============================================================================
// 🔁 工作流依赖检查
// =============================================================================

// readinessSessionPrefix 就绪检查写入的哨兵会话前缀，不会与 uuid 会话冲突
const readinessSessionPrefix = "readiness-"

// CheckpointHealthCheck 对 checkpoint 后端做一次 Save/Load/Delete 往返。
// Confirm 依赖上一轮的 checkpoint，后端只读或丢写时 /ready 应该失败。
type CheckpointHealthCheck struct {
	backend string
	store   workflow.Checkpointer
}

// NewCheckpointHealthCheck 创建 checkpoint 健康检查，backend 为 redis 或 memory
func NewCheckpointHealthCheck(backend string, store workflow.Checkpointer) *CheckpointHealthCheck {
	return &CheckpointHealthCheck{backend: backend, store: store}
}

func (c *CheckpointHealthCheck) Name() string {
	return "checkpoint"
}

func (c *CheckpointHealthCheck) Check(ctx context.Context) error {
	sessionID := readinessSessionPrefix + uuid.NewString()
	if err := c.store.Save(ctx, workflow.NewState(sessionID, "readiness")); err != nil {
		return fmt.Errorf("%s checkpoint save: %w", c.backend, err)
	}
	defer func() { _ = c.store.Delete(context.WithoutCancel(ctx), sessionID) }()

	got, err := c.store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%s checkpoint load: %w", c.backend, err)
	}
	if got.SessionID != sessionID {
		return fmt.Errorf("%s checkpoint returned session %q", c.backend, got.SessionID)
	}
	return nil
}

// CorpusLoader 语料文件读取
type CorpusLoader interface {
	Load(ctx context.Context) ([]corpus.Record, error)
	Path() string
}

// CorpusHealthCheck 语料文件必须可解析，否则 Confirm 追加会失败
type CorpusHealthCheck struct {
	store CorpusLoader
}

// NewCorpusHealthCheck 创建语料健康检查
func NewCorpusHealthCheck(store CorpusLoader) *CorpusHealthCheck {
	return &CorpusHealthCheck{store: store}
}

func (c *CorpusHealthCheck) Name() string {
	return "corpus"
}

func (c *CorpusHealthCheck) Check(ctx context.Context) error {
	if _, err := c.store.Load(ctx); err != nil {
		return fmt.Errorf("corpus %s: %w", c.store.Path(), err)
	}
	return nil
}
